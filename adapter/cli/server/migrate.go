package server

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/spf13/cobra"
)

// MigrateCmd applies pending schema migrations.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending migrations to the PostgreSQL database in DATABASE_URL,
or to the SQLite file it names (SQLITE_PATH when no URL is set).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if database.DetectDriver(cfg.DatabaseURL) == database.DriverPostgres {
			applied, err := migrations.RunPostgres(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		}

		handle, err := database.Open(ctx, database.Config{
			Driver:     database.DriverSQLite,
			URL:        cfg.DatabaseURL,
			SQLitePath: cfg.SQLitePath,
		})
		if err != nil {
			return err
		}
		defer handle.Close()
		if handle.SQL == nil {
			return errors.New("sqlite database not available")
		}
		if err := migrations.RunSQLite(ctx, handle.SQL); err != nil {
			return err
		}
		fmt.Fprintln(out, "SQLite database is up to date.")
		return nil
	},
}
