package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	return db
}

func countNotes(t *testing.T, db *sql.DB, value string) int {
	t.Helper()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM notes WHERE value = ?`, value).Scan(&count))
	return count
}

func TestSQLiteUnitOfWork_CommitPersists(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	_, err = SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO notes (value) VALUES ('kept')`)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(txCtx))

	assert.Equal(t, 1, countNotes(t, db, "kept"))
}

func TestSQLiteUnitOfWork_RollbackDiscards(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	txCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)

	_, err = SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO notes (value) VALUES ('dropped')`)
	require.NoError(t, err)
	require.NoError(t, uow.Rollback(txCtx))

	assert.Equal(t, 0, countNotes(t, db, "dropped"))
}

func TestSQLiteUnitOfWork_NestedBeginJoinsOuter(t *testing.T) {
	db := setupTestDB(t)
	uow := NewSQLiteUnitOfWork(db)

	outerCtx, err := uow.Begin(context.Background())
	require.NoError(t, err)
	innerCtx, err := uow.Begin(outerCtx)
	require.NoError(t, err)

	outer, ok := SQLiteTxInfoFromContext(outerCtx)
	require.True(t, ok)
	inner, ok := SQLiteTxInfoFromContext(innerCtx)
	require.True(t, ok)

	assert.True(t, outer.Owned)
	assert.False(t, inner.Owned)
	assert.Same(t, outer.Tx, inner.Tx)

	// Inner commit is a no-op; the outer rollback still discards the write.
	_, err = SQLiteExecutor(innerCtx, db).ExecContext(innerCtx, `INSERT INTO notes (value) VALUES ('nested')`)
	require.NoError(t, err)
	require.NoError(t, uow.Commit(innerCtx))
	require.NoError(t, uow.Rollback(outerCtx))

	assert.Equal(t, 0, countNotes(t, db, "nested"))
}

func TestSQLiteUnitOfWork_WithoutTransaction(t *testing.T) {
	uow := NewSQLiteUnitOfWork(setupTestDB(t))

	assert.ErrorIs(t, uow.Commit(context.Background()), ErrNoTransaction)
	assert.ErrorIs(t, uow.Rollback(context.Background()), ErrNoTransaction)
}

func TestSQLiteExecutor_FallsBackToDB(t *testing.T) {
	db := setupTestDB(t)

	assert.Same(t, db, SQLiteExecutor(context.Background(), db))

	_, ok := SQLiteTxInfoFromContext(WithSQLiteTx(context.Background(), nil, true))
	assert.False(t, ok)
}

func TestRunInSQLiteTx(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, RunInSQLiteTx(ctx, db, func(txCtx context.Context) error {
		_, err := SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO notes (value) VALUES ('kept')`)
		return err
	}))
	assert.Equal(t, 1, countNotes(t, db, "kept"))

	boom := errors.New("boom")
	err := RunInSQLiteTx(ctx, db, func(txCtx context.Context) error {
		if _, err := SQLiteExecutor(txCtx, db).ExecContext(txCtx, `INSERT INTO notes (value) VALUES ('dropped')`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countNotes(t, db, "dropped"))
}
