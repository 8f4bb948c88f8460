package main

import (
	"github.com/spf13/cobra"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/config"
	_ "github.com/cloudagrapher/fancy-planties-sub010/internal/core/kinds" // Register entity kinds
	"github.com/cloudagrapher/fancy-planties-sub010/internal/logging"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:          "importctl",
		Short:        "Import session tools: mapping checks, dry-run parsing, migrations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.LoadEnv(".env", ".env.local"); err != nil {
				return err
			}
			logging.Setup(logLevel, "text")
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newParseCmd(), newMappingsCmd(), newKindsCmd(), newMigrateCmd())
	return cmd
}
