package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/store"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse stored batch reports",
		Long: `List, show, export and import the batch reports kept in the history store.

The store is selected by store.driver / store.dsn in the config
(default: SQLite at ~/.bankrun/history.db).

Examples:
  bankrun history list --limit 10
  bankrun history show <id>
  bankrun history export -o reports.jsonl
  bankrun history import reports.jsonl`,
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryDeleteCmd(),
		newHistoryExportCmd(),
		newHistoryImportCmd(),
	)
	return cmd
}

// withStore loads the config, opens the store and runs fn.
func withStore(cmd *cobra.Command, fn func(s store.ResultStore) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	s, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withStore(cmd, func(s store.ResultStore) error {
				summaries, err := s.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list reports: %w", err)
				}

				if jsonOutput(cmd) {
					if summaries == nil {
						summaries = []store.Summary{}
					}
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"reports": summaries,
						"count":   len(summaries),
					})
				}

				out := cmd.OutOrStdout()
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No reports stored yet. Run `bankrun batch` to create one.")
					return nil
				}
				for _, sum := range summaries {
					collapse := "n/a"
					if sum.MeanCollapseTurn != nil {
						collapse = fmt.Sprintf("%.1f", *sum.MeanCollapseTurn)
					}
					fmt.Fprintf(out, "%s  %s  runs=%-5d nodes=%-5d news=%.2f  P(default)=%.3f  collapse=%s",
						sum.ID, sum.CreatedAt.Local().Format(time.DateTime), sum.Runs, sum.Nodes,
						sum.NewsScore, sum.DefaultProbability, collapse)
					if sum.Label != "" {
						fmt.Fprintf(out, "  %q", sum.Label)
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum reports to list (0 = all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.ResultStore) error {
				report, err := s.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), report)
				}
				printBatch(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one stored report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(s store.ResultStore) error {
				if err := s.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every report as JSON Lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			return withStore(cmd, func(s store.ResultStore) error {
				if output == "" {
					_, err := store.ExportJSONL(cmd.Context(), s, cmd.OutOrStdout())
					return err
				}
				var n int
				err := writeFile(output, func(w *os.File) error {
					var err error
					n, err = store.ExportJSONL(cmd.Context(), s, w)
					return err
				})
				if err != nil {
					return fmt.Errorf("export to %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d reports to %s\n", n, output)
				return nil
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newHistoryImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import reports from a JSON Lines export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			return withStore(cmd, func(s store.ResultStore) error {
				n, err := store.ImportJSONL(cmd.Context(), s, f)
				if err != nil {
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				if jsonOutput(cmd) {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"imported": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d reports\n", n)
				return nil
			})
		},
	}
}
