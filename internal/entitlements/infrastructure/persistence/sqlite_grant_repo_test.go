package persistence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/entitlements/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/sqlitetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGrant(t *testing.T, member string, key domain.Key, scope domain.Scope, at time.Time) *domain.Grant {
	t.Helper()
	g, err := domain.NewGrant(member, key, scope, at)
	require.NoError(t, err)
	g.Source = domain.SourceAdmin
	g.GrantedBy = "ops"
	return g
}

func TestSQLiteGrantRepository_InsertIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLiteGrantRepository(sqlitetest.Open(t))
	now := time.Now()

	first := newGrant(t, "m1", domain.KeyPatron, domain.Global(), now)
	first.ScopeMeta = map[string]any{"campaign": "spring"}
	stored, created, err := repo.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, first.ID, stored.ID)

	second := newGrant(t, "m1", domain.KeyPatron, domain.Global(), now.Add(time.Second))
	stored, created, err = repo.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, "spring", stored.ScopeMeta["campaign"])

	active, err := repo.ListActive(ctx, "m1", now.Add(2*time.Second))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLiteGrantRepository_ScopesAreDistinct(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLiteGrantRepository(sqlitetest.Open(t))
	now := time.Now()
	r1, _ := domain.Resource("album-1")
	r2, _ := domain.Resource("album-2")

	for _, scope := range []domain.Scope{domain.Global(), r1, r2} {
		_, created, err := repo.InsertIfAbsent(ctx, newGrant(t, "m1", domain.KeyPlayAlbum, scope, now))
		require.NoError(t, err)
		assert.True(t, created, scope.String())
	}

	active, err := repo.ListActive(ctx, "m1", now)
	require.NoError(t, err)
	require.Len(t, active, 3)

	var scopes []string
	for _, g := range active {
		scopes = append(scopes, g.Scope.String())
	}
	assert.ElementsMatch(t, []string{"global", "resource:album-1", "resource:album-2"}, scopes)
}

func TestSQLiteGrantRepository_ExpiredGrantAllowsNewOne(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLiteGrantRepository(sqlitetest.Open(t))
	now := time.Now()

	expiring := newGrant(t, "m1", domain.KeyFriend, domain.Global(), now.Add(-time.Hour))
	expiry := now.Add(-time.Minute)
	expiring.ExpiresAt = &expiry
	_, created, err := repo.InsertIfAbsent(ctx, expiring)
	require.NoError(t, err)
	require.True(t, created)

	active, err := repo.ListActive(ctx, "m1", now)
	require.NoError(t, err)
	assert.Empty(t, active, "expired grants are not listed")

	_, created, err = repo.InsertIfAbsent(ctx, newGrant(t, "m1", domain.KeyFriend, domain.Global(), now))
	require.NoError(t, err)
	assert.True(t, created)

	history, err := repo.History(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSQLiteGrantRepository_Revoke(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLiteGrantRepository(sqlitetest.Open(t))
	now := time.Now()
	r1, _ := domain.Resource("album-1")

	g := newGrant(t, "m1", domain.KeyPlayAlbum, r1, now)
	_, _, err := repo.InsertIfAbsent(ctx, g)
	require.NoError(t, err)
	other := newGrant(t, "m1", domain.KeyPlayAlbum, domain.Global(), now)
	_, _, err = repo.InsertIfAbsent(ctx, other)
	require.NoError(t, err)

	rev := domain.Revocation{At: now.Add(time.Second), By: "ops", Reason: "refund"}
	revoked, err := repo.RevokeActive(ctx, "m1", domain.KeyPlayAlbum, r1, rev)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, g.ID, revoked[0].ID)
	require.NotNil(t, revoked[0].RevokedAt)
	assert.Equal(t, "refund", revoked[0].RevokeReason)

	again, err := repo.RevokeActive(ctx, "m1", domain.KeyPlayAlbum, r1, rev)
	require.NoError(t, err)
	assert.Empty(t, again, "revoking twice is a no-op")

	active, err := repo.ListActive(ctx, "m1", now.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].Scope.IsGlobal())

	byID, err := repo.RevokeByID(ctx, other.ID, rev)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ops", byID.RevokedBy)

	missing, err := repo.RevokeByID(ctx, uuid.New(), rev)
	require.NoError(t, err)
	assert.Nil(t, missing)

	history, err := repo.History(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, history, 2, "revoked rows are kept")
}

func TestSQLiteGrantRepository_ConcurrentInsertConverges(t *testing.T) {
	ctx := context.Background()
	repo := persistence.NewSQLiteGrantRepository(sqlitetest.Open(t))
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inserts int
	)
	grants := make([]*domain.Grant, 8)
	for i := range grants {
		grants[i] = newGrant(t, "m1", domain.KeyPartner, domain.Global(), now)
	}
	for _, g := range grants {
		wg.Add(1)
		go func(g *domain.Grant) {
			defer wg.Done()
			_, created, err := repo.InsertIfAbsent(ctx, g)
			assert.NoError(t, err)
			if created {
				mu.Lock()
				inserts++
				mu.Unlock()
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 1, inserts)
	active, err := repo.ListActive(ctx, "m1", now)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
