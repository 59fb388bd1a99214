package persistence_test

import (
	"context"
	"testing"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/sqlitetest"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteTokenRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	repo := persistence.NewSQLiteTokenRepository(db)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	scope, err := entitlements.Resource("album-1")
	require.NoError(t, err)
	tok, err := domain.NewShareToken("hash-1", "press", scope,
		[]domain.DeclaredGrant{{Key: entitlements.KeyPlayAlbum}}, "admin", now)
	require.NoError(t, err)
	expires := now.Add(time.Hour)
	limit := 2
	tok.ExpiresAt = &expires
	tok.MaxRedemptions = &limit
	require.NoError(t, repo.Create(ctx, tok))

	var locked *domain.ShareToken
	require.NoError(t, sharedPersistence.RunInSQLiteTx(ctx, db, func(txCtx context.Context) error {
		var err error
		locked, err = repo.LockByHash(txCtx, "hash-1")
		return err
	}))
	assert.Equal(t, tok.ID, locked.ID)
	assert.Equal(t, scope, locked.Scope)
	assert.Equal(t, 2, *locked.MaxRedemptions)
	assert.True(t, expires.Equal(*locked.ExpiresAt))
	require.Len(t, locked.Grants, 1)

	_, err = repo.LockByHash(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)

	require.NoError(t, repo.AppendRedemption(ctx, domain.NewRedemption(tok.ID, "m1", "", "album-1", "redeem", now)))
	require.NoError(t, repo.AppendRedemption(ctx, domain.NewRedemption(tok.ID, "", "anon-1", "album-1", "listen", now)))
	require.NoError(t, repo.AppendRedemption(ctx, domain.NewRedemption(tok.ID, "", "anon-2", "album-1", "listen", now)))

	n, err := repo.CountRedemptions(ctx, tok.ID, "listen")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	usage, err := repo.Usage(ctx, tok.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"listen": 2, "redeem": 1}, usage)

	changed, err := repo.Revoke(ctx, tok.ID, "admin", now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = repo.Revoke(ctx, tok.ID, "admin", now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	found, err := repo.FindByID(ctx, tok.ID)
	require.NoError(t, err)
	require.NotNil(t, found.RevokedAt)
	assert.True(t, now.Equal(*found.RevokedAt))
	assert.Equal(t, "admin", found.RevokedBy)
}

func TestSQLiteTokenRepository_MalformedDeclaredGrantsAreDropped(t *testing.T) {
	ctx := context.Background()
	db := sqlitetest.Open(t)
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO share_tokens (id, token_hash, kind, declared_grants, created_by, created_at)
		VALUES (?, 'h', 'promo', '[{"key":"play_album"},{"key":"??"},{"nope":1}]', 'admin', '2026-04-01T12:00:00.000000000Z')`,
		id.String())
	require.NoError(t, err)

	tok, err := persistence.NewSQLiteTokenRepository(db).FindByID(ctx, id)
	require.NoError(t, err)
	require.Len(t, tok.Grants, 1)
	assert.Equal(t, entitlements.KeyPlayAlbum, tok.Grants[0].Key)
	assert.True(t, tok.Scope.IsGlobal())
	assert.Nil(t, tok.MaxRedemptions)
}
