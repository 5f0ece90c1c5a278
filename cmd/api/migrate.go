package main

import (
	"errors"

	"github.com/spf13/cobra"

	"hfcloud/console/internal/config"
	"hfcloud/console/internal/database"
)

var steps int

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *database.Migrator) error { return m.Down(steps) })
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to roll back (0 rolls back all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(m *database.Migrator) error { return m.Up() })
			},
		},
		down,
	)
	return cmd
}

func withMigrator(fn func(*database.Migrator) error) (err error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Datastore.Driver != config.DriverPostgres {
		return errors.New("migrations only apply to the postgres datastore")
	}

	m, err := database.NewMigrator(cfg.Postgres.DSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, m.Close())
	}()

	return fn(m)
}
