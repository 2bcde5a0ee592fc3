package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/export"
	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/store"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run a Monte-Carlo batch and store the report",
		Long: `Run many independent simulations in parallel and aggregate them into a
default probability, a collapse-turn distribution, mean trajectories and a
per-segment withdrawal breakdown.

The report is saved to the history store unless --no-save is given.
--arrow writes <prefix>-mean.arrow, <prefix>-summary.arrow and
<prefix>-runs.arrow (Apache Arrow IPC files).

Examples:
  bankrun batch --runs 500 --seed 7
  bankrun batch --news-score 0.8 --label "harsh news"
  bankrun batch --arrow out/harsh --no-save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg)
			turns := newTurnLogger(cfg)
			defer turns.Close()

			params := paramsFromFlags(cmd, cfg.Simulation.Params())
			opts := cfg.Batch
			if cmd.Flags().Changed("runs") {
				opts.Runs, _ = cmd.Flags().GetInt("runs")
			}
			if cmd.Flags().Changed("workers") {
				opts.Workers, _ = cmd.Flags().GetInt("workers")
			}
			opts.Seed = seedFromFlags(cmd, opts.Seed)
			if cmd.Flags().Changed("scope") {
				scope, _ := cmd.Flags().GetString("scope")
				opts.SegmentScope = constants.SegmentScope(scope)
			}
			arrowPrefix, _ := cmd.Flags().GetString("arrow")
			if arrowPrefix != "" {
				opts.KeepSeries = true
			}
			label, _ := cmd.Flags().GetString("label")
			noSave, _ := cmd.Flags().GetBool("no-save")

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			h := montecarlo.New()
			h.SetLogger(logger, turns)
			res, err := h.Run(ctx, params, opts)
			if err != nil {
				return fmt.Errorf("batch: %w", err)
			}

			report := store.NewReport(label, res)
			if !noSave {
				s, err := openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer s.Close()
				if err := s.Save(ctx, report); err != nil {
					return fmt.Errorf("save report: %w", err)
				}
				logger.Info("report saved", "id", report.ID)
			}

			var written []string
			if arrowPrefix != "" {
				written, err = writeArrowFiles(arrowPrefix, res)
				if err != nil {
					return err
				}
			}

			if jsonOutput(cmd) {
				// Per-run series can be large; they are only exported via Arrow.
				summary := *res
				summary.RunSeries = nil
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"id":          report.ID,
					"saved":       !noSave,
					"arrow_files": written,
					"result":      summary,
				})
			}

			printBatch(cmd.OutOrStdout(), report)
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().Int("runs", 0, "Number of runs (default from config)")
	cmd.Flags().Int("workers", 0, "Parallel workers (default: GOMAXPROCS)")
	cmd.Flags().Uint64("seed", 0, "Batch seed (default from config)")
	cmd.Flags().String("scope", "", "Runs feeding the segment breakdown: last or all")
	cmd.Flags().String("label", "", "Label stored with the report")
	cmd.Flags().String("arrow", "", "Write Arrow IPC files with this path prefix")
	cmd.Flags().Bool("no-save", false, "Do not store the report in the history")
	return cmd
}

// writeArrowFiles writes the three Arrow exports of a batch.
func writeArrowFiles(prefix string, res *montecarlo.BatchResult) ([]string, error) {
	files := []struct {
		suffix string
		write  func(io.WriteSeeker, *montecarlo.BatchResult) error
	}{
		{"-mean.arrow", export.WriteMean},
		{"-summary.arrow", export.WriteSummaries},
		{"-runs.arrow", export.WriteRuns},
	}

	var written []string
	for _, f := range files {
		path := prefix + f.suffix
		if err := writeFile(path, func(out *os.File) error { return f.write(out, res) }); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// writeFile creates path with 0600 permissions and hands it to fill.
func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printBatch(out io.Writer, r *store.Report) {
	res := r.Result
	fmt.Fprintf(out, "Batch %s", r.ID)
	if r.Label != "" {
		fmt.Fprintf(out, " (%s)", r.Label)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  runs:                %d (seed %d)\n", res.Options.Runs, res.Options.Seed)
	fmt.Fprintf(out, "  nodes:               %d\n", res.Params.Nodes)
	fmt.Fprintf(out, "  default probability: %.3f\n", res.DefaultProbability)
	if res.MeanCollapseTurn != nil {
		fmt.Fprintf(out, "  mean collapse turn:  %.2f\n", *res.MeanCollapseTurn)
	} else {
		fmt.Fprintf(out, "  mean collapse turn:  n/a\n")
	}
	if c := res.Collapse; c.P50 != nil {
		fmt.Fprintf(out, "  collapse p10/p50/p90: %.1f / %.1f / %.1f\n", *c.P10, *c.P50, *c.P90)
	}
	fmt.Fprintf(out, "  final liquidity:     %.2f ± %.2f\n", res.FinalLiquidityMean, res.FinalLiquidityStdDev)
	fmt.Fprintf(out, "  elapsed:             %v\n", res.Elapsed)

	if segs := res.Segment(montecarlo.DimensionSegment); len(segs) > 0 {
		fmt.Fprintln(out, "  withdrawal by segment:")
		for _, s := range segs {
			fmt.Fprintf(out, "    %-12s %5.1f%% withdrawn (%d agents)\n", s.Value, 100*s.MeanFraction, s.Agents)
		}
	}
}
