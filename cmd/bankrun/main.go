package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/config"
	"github.com/nvandessel/bankrun/internal/constants"
	"github.com/nvandessel/bankrun/internal/logging"
	"github.com/nvandessel/bankrun/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bankrun",
		Short: "Agent-based bank-run contagion simulator",
		Long: `bankrun simulates how negative news about a bank spreads through a
social network of customers and non-customers, and whether the resulting
withdrawals drain the bank's liquidity.

Single runs can be stepped, rendered and served over HTTP; Monte-Carlo
batches estimate the probability and timing of default and are kept in a
history store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.bankrun/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug or trace (overrides config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newBatchCmd(),
		newGraphCmd(),
		newHistoryCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// loadConfig reads --config when given, or the layered default config,
// and applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.BankrunConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.BankrunConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the operational logger. Logs go to stderr so that
// stdout stays clean for results.
func newLogger(cmd *cobra.Command, cfg *config.BankrunConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// newTurnLogger opens the turn trace under the configured trace directory.
// Returns nil at info level.
func newTurnLogger(cfg *config.BankrunConfig) *logging.TurnLogger {
	dir := cfg.Logging.TraceDir
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return nil
		}
		dir = d
	}
	return logging.NewTurnLogger(dir, cfg.Logging.Level)
}

// openStore opens the configured report store. An empty sqlite DSN means
// ~/.bankrun/history.db.
func openStore(ctx context.Context, cfg *config.BankrunConfig) (store.ResultStore, error) {
	dsn := cfg.Store.DSN
	if dsn == "" && (cfg.Store.Driver == constants.DriverSQLite || cfg.Store.Driver == "") {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, "history.db")
	}
	s, err := store.Open(ctx, cfg.Store.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.RedactedDSN(), err)
	}
	return s, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return nil
}
