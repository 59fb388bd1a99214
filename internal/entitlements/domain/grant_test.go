package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGrant(t *testing.T) {
	now := time.Now()
	g, err := domain.NewGrant(" member-1 ", domain.KeyPatron, domain.Global(), now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, g.ID)
	assert.Equal(t, "member-1", g.MemberID)
	assert.True(t, g.IsActive(now))

	_, err = domain.NewGrant("", domain.KeyPatron, domain.Global(), now)
	assert.ErrorIs(t, err, domain.ErrMemberRequired)

	_, err = domain.NewGrant("m", domain.Key("gold"), domain.Global(), now)
	assert.ErrorIs(t, err, domain.ErrUnknownKey)
}

func TestGrant_IsActive(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	g, err := domain.NewGrant("m", domain.KeyFriend, domain.Global(), now)
	require.NoError(t, err)

	g.ExpiresAt = &future
	assert.True(t, g.IsActive(now))

	g.ExpiresAt = &past
	assert.False(t, g.IsActive(now))

	g.ExpiresAt = &now
	assert.False(t, g.IsActive(now), "expiry at now is inactive")

	g.ExpiresAt = nil
	g.Revoke(domain.Revocation{At: now, By: "admin", Reason: "refund"})
	assert.False(t, g.IsActive(now))
	assert.Equal(t, "admin", g.RevokedBy)

	g.Revoke(domain.Revocation{At: future, By: "other"})
	assert.Equal(t, "admin", g.RevokedBy, "first revocation wins")
}

func TestKeysCovering(t *testing.T) {
	now := time.Now()
	r1, _ := domain.Resource("r1")
	r2, _ := domain.Resource("r2")

	global, _ := domain.NewGrant("m", domain.KeyPatron, domain.Global(), now)
	play, _ := domain.NewGrant("m", domain.KeyPlayAlbum, r1, now)
	other, _ := domain.NewGrant("m", domain.KeyAlbumShareGrant, r2, now)
	revoked, _ := domain.NewGrant("m", domain.KeyAdmin, domain.Global(), now)
	revoked.Revoke(domain.Revocation{At: now})

	grants := []*domain.Grant{global, play, other, revoked}

	assert.ElementsMatch(t, []domain.Key{domain.KeyPatron, domain.KeyPlayAlbum}, domain.KeysCovering(grants, r1, now).Sorted())
	assert.ElementsMatch(t, []domain.Key{domain.KeyPatron}, domain.KeysCovering(grants, domain.Global(), now).Sorted())
	assert.ElementsMatch(t,
		[]domain.Key{domain.KeyPatron, domain.KeyPlayAlbum, domain.KeyAlbumShareGrant},
		domain.ActiveKeys(grants, now).Sorted())
}

func TestParseKeys(t *testing.T) {
	keys, err := domain.ParseKeys([]string{"play_album", " friend"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Key{domain.KeyPlayAlbum, domain.KeyFriend}, keys)

	_, err = domain.ParseKeys([]string{"friend", "vip"})
	assert.ErrorIs(t, err, domain.ErrUnknownKey)

	assert.Len(t, domain.AllKeys(), 6)
	for _, k := range domain.AllKeys() {
		assert.True(t, k.Valid())
	}
}

func TestKeySet_Strings(t *testing.T) {
	s := domain.NewKeySet(domain.KeyPatron, domain.KeyAdmin)
	assert.Equal(t, []string{"admin", "patron"}, s.Strings())
	assert.True(t, s.HasAny([]domain.Key{domain.KeyFriend, domain.KeyAdmin}))
	assert.False(t, s.HasAny(nil))
}

func TestGrantEvents(t *testing.T) {
	r1, _ := domain.Resource("r1")
	g, _ := domain.NewGrant("m", domain.KeyPlayAlbum, r1, time.Now())
	g.Source = domain.SourceAdmin

	created := domain.NewGrantCreated(g)
	assert.Equal(t, g.ID, created.AggregateID())
	assert.Equal(t, domain.RoutingKeyGrantCreated, created.RoutingKey())
	assert.Equal(t, "resource:r1", created.Scope)

	g.Revoke(domain.Revocation{At: time.Now(), By: "ops", Reason: "chargeback"})
	revoked := domain.NewGrantRevoked(g)
	assert.Equal(t, domain.RoutingKeyGrantRevoked, revoked.RoutingKey())
	assert.Equal(t, "chargeback", revoked.Reason)
}
