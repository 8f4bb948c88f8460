package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudagrapher/fancy-planties-sub010/internal/config"
	"github.com/cloudagrapher/fancy-planties-sub010/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the entity and audit tables",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(postgres.Up), string(postgres.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				databaseURL = cfg.Database.URL
			}
			if databaseURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}

			dir := postgres.Direction(args[0])
			if err := postgres.Migrate(databaseURL, dir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: done\n", dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default DATABASE_URL)")
	return cmd
}
