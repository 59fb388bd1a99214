// Package migrations applies the embedded schema for both database drivers.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

//go:embed sqlite/*.sql postgres/*.sql
var schemaFS embed.FS

// RunSQLite executes all SQLite migrations in order.
// Every statement is written with IF NOT EXISTS so re-running is harmless.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	files, err := upFiles("sqlite")
	if err != nil {
		return err
	}
	for _, file := range files {
		migration, err := schemaFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", file, err)
		}
	}
	return nil
}

// RunPostgres applies pending PostgreSQL migrations through lib/pq and records
// each applied file in schema_migrations.
func RunPostgres(ctx context.Context, databaseURL string) (applied []string, err error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	files, err := upFiles("postgres")
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		version := versionOf(file)

		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		migration, err := schemaFS.ReadFile(file)
		if err != nil {
			return applied, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return applied, err
		}
		if _, err := tx.ExecContext(ctx, string(migration)); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to execute migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
			_ = tx.Rollback()
			return applied, fmt.Errorf("failed to record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}

	return applied, nil
}

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			files = append(files, dir+"/"+entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func versionOf(file string) string {
	name := file[strings.LastIndex(file, "/")+1:]
	return strings.TrimSuffix(name, ".up.sql")
}
