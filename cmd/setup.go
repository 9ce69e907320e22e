package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/histx/internal/pgstore"
	"github.com/desertthunder/histx/internal/shared"
)

// SetupDatabase writes a config file if none exists, then initializes the
// database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err := shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			} else {
				r.config = config
			}
		}
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if r.config.Database.Driver == "postgres" {
		r.logger.Info("applying postgres schema")
		pg, err := pgstore.Open(ctx, r.config.Database.DSN)
		if err != nil {
			return err
		}
		pg.Close()
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return nil
}

// SetupConfig writes the example configuration to the given path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	return r.writePlain("Configuration written to %s\n", path)
}

// Migrations prints which migrations have been applied.
func (r *Runner) Migrations(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	statuses, err := shared.ListMigrations(db)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, true)
	}

	w := tabwriter.NewWriter(r.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED")
	for _, s := range statuses {
		fmt.Fprintf(w, "%04d\t%t\n", s.Version, s.Applied)
	}
	return w.Flush()
}

// Rollback reverts the most recent migration.
func (r *Runner) Rollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.logger.Info("rolled back latest migration", "path", r.config.Database.Path)
	return nil
}
