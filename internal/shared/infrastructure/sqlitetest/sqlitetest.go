// Package sqlitetest opens migrated in-memory SQLite databases for tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/migrations"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Open returns a fresh in-memory database with the full schema applied.
// The pool is pinned to one connection so every query sees the same database.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.RunSQLite(context.Background(), db))
	return db
}
