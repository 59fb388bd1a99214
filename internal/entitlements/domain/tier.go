package domain

import (
	"fmt"
	"strings"
)

// Tier is a membership rank derived from tier marker keys.
type Tier int

const (
	TierNone Tier = iota
	TierFriend
	TierPatron
	TierPartner
)

var tierMarkers = map[Tier]Key{
	TierFriend:  KeyFriend,
	TierPatron:  KeyPatron,
	TierPartner: KeyPartner,
}

// rankedTiers lists the tiers with a marker, highest first.
var rankedTiers = []Tier{TierPartner, TierPatron, TierFriend}

// ParseTier reads a tier name. "" and "none" are TierNone.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TierNone, nil
	case string(KeyFriend):
		return TierFriend, nil
	case string(KeyPatron):
		return TierPatron, nil
	case string(KeyPartner):
		return TierPartner, nil
	}
	return TierNone, fmt.Errorf("%w: %q", ErrUnknownTier, s)
}

// String returns the tier name.
func (t Tier) String() string {
	if k, ok := tierMarkers[t]; ok {
		return string(k)
	}
	return "none"
}

// AtLeast reports whether t ranks at or above min.
func (t Tier) AtLeast(min Tier) bool { return t >= min }

// MarkerKey returns the key that marks t, if any.
func (t Tier) MarkerKey() (Key, bool) {
	k, ok := tierMarkers[t]
	return k, ok
}

// MarshalText encodes the tier name.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a tier name.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// DeriveTier returns the highest tier whose marker is in keys.
func DeriveTier(keys KeySet) Tier {
	for _, tier := range rankedTiers {
		if keys.Has(tierMarkers[tier]) {
			return tier
		}
	}
	return TierNone
}

// TierKeysAtOrAbove returns the marker keys of every tier satisfying min.
// TierNone yields nil: there is nothing to satisfy.
func TierKeysAtOrAbove(min Tier) []Key {
	if min <= TierNone {
		return nil
	}
	var keys []Key
	for t := min; t <= TierPartner; t++ {
		keys = append(keys, tierMarkers[t])
	}
	return keys
}
