package admin

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docuhub/internal/config"
	"github.com/cloo-solutions/docuhub/internal/logging"
)

const defaultMigrationsDir = "migrations"

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply or roll back the document_chunks schema migrations",
	}
	cmd.PersistentFlags().String("migrations", defaultMigrationsDir, "Directory holding the SQL migrations")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := migrateConfig(cmd)
			if err != nil {
				return err
			}
			return runMigrations(cfg.DatabaseURL, dir)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := migrateConfig(cmd)
			if err != nil {
				return err
			}
			return withMigrator(cfg.DatabaseURL, dir, func(m *migrate.Migrate) error {
				if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("failed to roll back: %w", err)
				}
				log.Info().Msg("migrations: rolled back one step")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, err := migrateConfig(cmd)
			if err != nil {
				return err
			}
			return withMigrator(cfg.DatabaseURL, dir, func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			})
		},
	})

	return cmd
}

func migrateConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.Debug)
	dir, _ := cmd.Flags().GetString("migrations")
	return cfg, dir, nil
}

func withMigrator(databaseURL, dir string, fn func(m *migrate.Migrate) error) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return fn(m)
}

func runMigrations(databaseURL, dir string) error {
	return withMigrator(databaseURL, dir, func(m *migrate.Migrate) error {
		err := m.Up()
		noChange := errors.Is(err, migrate.ErrNoChange)
		if err != nil && !noChange {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}

		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("migrations: no migrations found")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get migration version: %w", err)
		}
		if dirty {
			return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
		}

		if noChange {
			log.Info().Uint("version", version).Msg("migrations: database is up to date")
		} else {
			log.Info().Uint("version", version).Msg("migrations: applied successfully")
		}
		return nil
	})
}
