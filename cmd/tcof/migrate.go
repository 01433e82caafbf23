package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Strob0t/tcof/internal/adapter/postgres"
	"github.com/Strob0t/tcof/internal/adapter/sqlite"
	"github.com/Strob0t/tcof/internal/config"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(m migrator) error {
				return m.down(cmd.Context(), steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(m migrator) error {
					return m.up(cmd.Context())
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd.Context(), func(m migrator) error {
					v, err := m.version(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), v)
					return nil
				})
			},
		},
	)
	return cmd
}

type migrator struct {
	up      func(ctx context.Context) error
	down    func(ctx context.Context, steps int) error
	version func(ctx context.Context) (int64, error)
}

func withMigrator(ctx context.Context, fn func(migrator) error) error {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if cfg.Database.Driver == "postgres" {
		dsn := cfg.Postgres.DSN
		return fn(migrator{
			up:      func(ctx context.Context) error { return postgres.RunMigrations(ctx, dsn) },
			down:    func(ctx context.Context, steps int) error { return postgres.RollbackMigrations(ctx, dsn, steps) },
			version: func(ctx context.Context) (int64, error) { return postgres.MigrationVersion(ctx, dsn) },
		})
	}

	db, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(migrator{
		up:      func(ctx context.Context) error { return sqlite.RunMigrations(ctx, db) },
		down:    func(ctx context.Context, steps int) error { return sqlite.RollbackMigrations(ctx, db, steps) },
		version: func(ctx context.Context) (int64, error) { return sqlite.MigrationVersion(ctx, db) },
	})
}
