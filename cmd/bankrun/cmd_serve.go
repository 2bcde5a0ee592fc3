package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Start the HTTP API for step-by-step runs, snapshots, network documents
and Monte-Carlo batches. Blocks until Ctrl-C.

Endpoints live under /api: runs, runs/:id/step, runs/:id/snapshot,
runs/:id/graph, batches, config and health.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr := cfg.Server.Addr
			if cmd.Flags().Changed("addr") {
				addr, _ = cmd.Flags().GetString("addr")
			}
			logger := newLogger(cmd, cfg)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			srv := api.New(api.Options{
				Defaults:          cfg.Simulation.Params(),
				Batch:             cfg.Batch,
				Store:             s,
				RequestsPerSecond: cfg.Server.RequestsPerSecond,
				Burst:             cfg.Server.Burst,
				MaxSessions:       cfg.Server.MaxSessions,
				Logger:            logger,
			})

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving bankrun API on http://%s (Ctrl-C to stop)\n", addr)
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config: 127.0.0.1:8080)")
	return cmd
}
