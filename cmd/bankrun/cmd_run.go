package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/simulation"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single simulation and print its trajectory",
		Long: `Run one simulation until the bank defaults or the turn ceiling is reached.

Parameters come from the config file and can be overridden with flags.
The same --seed and --stream always reproduce the same trajectory.

Examples:
  bankrun run                                # Reference calibration
  bankrun run --news-score 0.9 --seed 42     # Harsher news, fixed seed
  bankrun run --json                         # Records and headline as JSON`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			turns := newTurnLogger(cfg)
			defer turns.Close()

			params := paramsFromFlags(cmd, cfg.Simulation.Params())
			seed := seedFromFlags(cmd, cfg.Batch.Seed)
			stream, _ := cmd.Flags().GetUint64("stream")

			e, err := simulation.New(params, seed, stream)
			if err != nil {
				return err
			}
			e.SetLogger(logger, turns, fmt.Sprintf("run-%d-%d", seed, stream))

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			res, err := e.Run(ctx, nil)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			snap := e.Snapshot()

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"params":   params,
					"seed":     seed,
					"stream":   stream,
					"result":   res,
					"headline": snap.Headline,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%5s %14s %14s %9s %14s %15s\n",
				"turn", "liquidity", "withdrawn", "informed", "customers out", "alert non-cust")
			for _, r := range res.Records {
				fmt.Fprintf(out, "%5d %14.2f %14.2f %9d %14d %15d\n",
					r.Turn, r.Liquidity, r.Withdrawn, r.Informed, r.WithdrawnCustomers, r.AlertNonCustomers)
			}

			fmt.Fprintln(out)
			printHeadline(cmd, snap.Headline)
			if res.Defaulted {
				fmt.Fprintf(out, "Bank DEFAULTED at turn %d.\n", res.CollapseTurn)
			} else {
				fmt.Fprintf(out, "Bank survived %d turns.\n", len(res.Records))
			}
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().Uint64("seed", 0, "Random seed (default: batch seed from config)")
	cmd.Flags().Uint64("stream", 0, "Stream index under the seed")
	return cmd
}

func printHeadline(cmd *cobra.Command, h simulation.Headline) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Withdrawal rate:      %6.1f%%\n", 100*h.WithdrawalRate)
	fmt.Fprintf(out, "News reach:           %6.1f%%\n", 100*h.NewsReach)
	fmt.Fprintf(out, "Liquidity remaining:  %6.1f%%\n", 100*h.LiquidityRemaining)
	fmt.Fprintf(out, "Customers withdrawn:  %d / %d\n", h.CustomersWithdrawn, h.Customers)
	fmt.Fprintf(out, "Active propagators:   %d / %d\n", h.ActivePropagators, h.NonCustomers)
}
