package main

import (
	"fmt"

	"RoiLedger/internal/config"
	"RoiLedger/internal/persistence"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the feed archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres DSN not configured (set ROI_POSTGRES_DSN)")
	}
	log := newLogger("migrate", cfg.LogLevel)

	db, err := persistence.Open(cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, log)
	if down {
		return migrator.Down(cmd.Context())
	}
	return migrator.Up(cmd.Context())
}
