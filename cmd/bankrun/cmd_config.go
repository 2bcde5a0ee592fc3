package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/bankrun/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bankrun configuration",
		Long: `View, validate and initialize bankrun configuration.

Configuration is stored in ~/.bankrun/config.yaml. A .env file in the
working directory and BANKRUN_* environment variables override it.

Examples:
  bankrun config list                 # Effective settings as YAML
  bankrun config validate my.yaml     # Check a config file
  bankrun config init                 # Write the defaults to ~/.bankrun/config.yaml`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigValidateCmd(),
		newConfigInitCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Redact the DSN before printing to prevent leaking credentials.
			redacted := *cfg
			redacted.Store.DSN = cfg.Store.RedactedDSN()

			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), redacted)
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("encode YAML: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a config file (default: the effective configuration)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.BankrunConfig
			var err error
			if len(args) == 1 {
				cfg, err = config.LoadFromFile(args[0])
				if err == nil {
					err = cfg.Validate()
				}
			} else {
				cfg, err = loadConfig(cmd)
			}

			if jsonOutput(cmd) {
				result := map[string]any{"valid": err == nil}
				if err != nil {
					result["error"] = err.Error()
				}
				if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
					return werr
				}
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			force, _ := cmd.Flags().GetBool("force")
			if path == "" {
				p, err := config.DefaultPath()
				if err != nil {
					return err
				}
				path = p
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", path, err)
			}

			if err := config.Default().Save(path); err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"path": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("path", "", "Destination (default: ~/.bankrun/config.yaml)")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	return cmd
}
