package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render a run's social network",
		Long: `Output a run's social network in DOT (Graphviz) or JSON format.

Nodes are coloured by alert state and sized by PageRank. --turns advances
the run before rendering.

Examples:
  bankrun graph --format dot | neato -Tsvg > network.svg
  bankrun graph --turns 10 --format json -o network.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			formatFlag, _ := cmd.Flags().GetString("format")
			format, err := visualization.ParseFormat(formatFlag)
			if err != nil {
				return err
			}
			turns, _ := cmd.Flags().GetInt("turns")
			if turns < 0 {
				return fmt.Errorf("--turns must be non-negative, got %d", turns)
			}
			output, _ := cmd.Flags().GetString("output")

			params := paramsFromFlags(cmd, cfg.Simulation.Params())
			stream, _ := cmd.Flags().GetUint64("stream")
			e, err := simulation.New(params, seedFromFlags(cmd, cfg.Batch.Seed), stream)
			if err != nil {
				return err
			}
			e.SetLogger(newLogger(cmd, cfg), nil, "graph")
			for i := 0; i < turns && !e.Done(); i++ {
				if _, err := e.Step(); err != nil {
					return err
				}
			}

			doc, err := visualization.Build(e.Snapshot(), e.Graph())
			if err != nil {
				return fmt.Errorf("build graph: %w", err)
			}

			render := func(w io.Writer) error {
				if format == visualization.FormatDOT {
					_, err := io.WriteString(w, visualization.RenderDOT(doc))
					return err
				}
				return writeJSON(w, doc)
			}

			if output == "" {
				return render(cmd.OutOrStdout())
			}
			if err := writeFile(output, func(f *os.File) error { return render(f) }); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)
			return nil
		},
	}

	addParamFlags(cmd)
	cmd.Flags().Uint64("seed", 0, "Random seed (default: batch seed from config)")
	cmd.Flags().Uint64("stream", 0, "Stream index under the seed")
	cmd.Flags().Int("turns", 0, "Turns to run before rendering")
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	return cmd
}
