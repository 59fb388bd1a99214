package domain

import (
	"context"
	"strings"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
)

// Policy is a read-only snapshot of a resource's release configuration.
// The zero value has no embargo and no minimum tier.
type Policy struct {
	ResourceID       string
	ReleaseAt        *time.Time
	EarlyAccess      bool
	EarlyAccessTiers []entitlements.Tier
	MinTier          entitlements.Tier
}

// Validate checks the policy can be stored.
func (p Policy) Validate() error {
	if strings.TrimSpace(p.ResourceID) == "" {
		return ErrInvalidPolicy
	}
	for _, t := range p.EarlyAccessTiers {
		if t <= entitlements.TierNone || t > entitlements.TierPartner {
			return ErrInvalidPolicy
		}
	}
	if p.MinTier < entitlements.TierNone || p.MinTier > entitlements.TierPartner {
		return ErrInvalidPolicy
	}
	return nil
}

// EmbargoedAt reports whether the resource is unreleased at now.
func (p Policy) EmbargoedAt(now time.Time) bool {
	return p.ReleaseAt != nil && now.Before(*p.ReleaseAt)
}

// HasEarlyAccess reports whether any tier may bypass the embargo.
func (p Policy) HasEarlyAccess() bool {
	return p.EarlyAccess && len(p.EarlyAccessTiers) > 0
}

// AllowsEarlyAccess reports whether tier is at or above any tier on the
// early-access list. TierNone never qualifies.
func (p Policy) AllowsEarlyAccess(tier entitlements.Tier) bool {
	if !p.HasEarlyAccess() || tier == entitlements.TierNone {
		return false
	}
	for _, t := range p.EarlyAccessTiers {
		if t != entitlements.TierNone && tier.AtLeast(t) {
			return true
		}
	}
	return false
}

// TierNames returns the early-access tiers as names.
func (p Policy) TierNames() []string {
	names := make([]string, len(p.EarlyAccessTiers))
	for i, t := range p.EarlyAccessTiers {
		names[i] = t.String()
	}
	return names
}

// ParseTierNames reads tier names, rejecting unknown ones.
func ParseTierNames(names []string) ([]entitlements.Tier, error) {
	tiers := make([]entitlements.Tier, 0, len(names))
	for _, n := range names {
		t, err := entitlements.ParseTier(n)
		if err != nil {
			return nil, err
		}
		if t != entitlements.TierNone {
			tiers = append(tiers, t)
		}
	}
	return tiers, nil
}

// PolicyProvider supplies policy snapshots. A resource without a policy
// yields nil and no error.
type PolicyProvider interface {
	Get(ctx context.Context, resourceID string) (*Policy, error)
}

// PolicyStore is a provider that can also be written.
type PolicyStore interface {
	PolicyProvider
	Put(ctx context.Context, p Policy) error
	Delete(ctx context.Context, resourceID string) error
}
