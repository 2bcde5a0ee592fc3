package main

import (
	"github.com/spf13/cobra"

	"github.com/nvandessel/bankrun/internal/config"
	"github.com/nvandessel/bankrun/internal/mcp"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Expose bankrun to MCP clients over stdio.

Tools: bankrun_simulate, bankrun_batch, bankrun_history, bankrun_network.
Resource: bankrun://config/default.

Tool calls are audited to ~/.bankrun/audit.jsonl. Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			// Auditing is skipped when the home directory is unknown.
			auditDir, _ := config.Dir()

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "bankrun",
				Version:  version,
				Defaults: cfg.Simulation.Params(),
				Batch:    cfg.Batch,
				Store:    s,
				AuditDir: auditDir,
				Logger:   newLogger(cmd, cfg),
			})
			if err != nil {
				s.Close()
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
