package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Vovarama1992/telegram-relay/internal/config"
	"github.com/Vovarama1992/telegram-relay/internal/database"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the message log schema",
		Example: `  telegram-relay migrate up
  telegram-relay migrate down --steps 1`,
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := databaseConfig()
			if err != nil {
				return err
			}
			if err := database.Migrate(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := databaseConfig()
			if err != nil {
				return err
			}
			if err := database.Rollback(cmd.Context(), cfg.DatabaseDriver, cfg.DatabaseURL, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(upCmd, downCmd)

	return cmd
}

func databaseConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	return cfg, nil
}
