package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_EmbargoedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	release := now.Add(time.Hour)
	p := domain.Policy{ResourceID: "album-1", ReleaseAt: &release}

	assert.True(t, p.EmbargoedAt(now))
	assert.False(t, p.EmbargoedAt(release))
	assert.False(t, p.EmbargoedAt(release.Add(time.Second)))
	assert.False(t, domain.Policy{}.EmbargoedAt(now))
}

func TestPolicy_EarlyAccess(t *testing.T) {
	p := domain.Policy{
		ResourceID:       "album-1",
		EarlyAccess:      true,
		EarlyAccessTiers: []entitlements.Tier{entitlements.TierPatron, entitlements.TierPartner},
	}
	assert.True(t, p.HasEarlyAccess())
	assert.True(t, p.AllowsEarlyAccess(entitlements.TierPatron))
	assert.False(t, p.AllowsEarlyAccess(entitlements.TierFriend))
	assert.Equal(t, []string{"patron", "partner"}, p.TierNames())

	p.EarlyAccess = false
	assert.False(t, p.HasEarlyAccess())
	assert.False(t, p.AllowsEarlyAccess(entitlements.TierPatron))

	patronOnly := domain.Policy{
		ResourceID:       "album-1",
		EarlyAccess:      true,
		EarlyAccessTiers: []entitlements.Tier{entitlements.TierPatron},
	}
	assert.True(t, patronOnly.AllowsEarlyAccess(entitlements.TierPartner), "higher tiers qualify")
	assert.True(t, patronOnly.AllowsEarlyAccess(entitlements.TierPatron))
	assert.False(t, patronOnly.AllowsEarlyAccess(entitlements.TierFriend))
	assert.False(t, patronOnly.AllowsEarlyAccess(entitlements.TierNone))

	flagOnly := domain.Policy{ResourceID: "album-1", EarlyAccess: true}
	assert.False(t, flagOnly.HasEarlyAccess())
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, domain.Policy{ResourceID: "album-1", MinTier: entitlements.TierFriend}.Validate())
	assert.ErrorIs(t, domain.Policy{}.Validate(), domain.ErrInvalidPolicy)
	assert.ErrorIs(t, domain.Policy{
		ResourceID:       "album-1",
		EarlyAccessTiers: []entitlements.Tier{entitlements.TierNone},
	}.Validate(), domain.ErrInvalidPolicy)
	assert.ErrorIs(t, domain.Policy{ResourceID: "album-1", MinTier: entitlements.Tier(9)}.Validate(), domain.ErrInvalidPolicy)
}

func TestParseTierNames(t *testing.T) {
	tiers, err := domain.ParseTierNames([]string{"friend", "none", "partner"})
	require.NoError(t, err)
	assert.Equal(t, []entitlements.Tier{entitlements.TierFriend, entitlements.TierPartner}, tiers)

	_, err = domain.ParseTierNames([]string{"gold"})
	assert.Error(t, err)
}
