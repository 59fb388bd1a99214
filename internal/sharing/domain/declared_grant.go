package domain

import (
	"encoding/json"
	"fmt"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
)

// DeclaredGrant is a grant a token materializes into the ledger on redemption.
// A nil Scope inherits the token's scope.
type DeclaredGrant struct {
	Key       entitlements.Key
	Scope     *entitlements.Scope
	Meta      map[string]any
	ExpiresAt *time.Time
}

// ResolveScope returns the scope the grant applies to for a token scoped at tokenScope.
func (g DeclaredGrant) ResolveScope(tokenScope entitlements.Scope) entitlements.Scope {
	if g.Scope != nil {
		return *g.Scope
	}
	return tokenScope
}

type declaredGrantJSON struct {
	Key       string         `json:"key"`
	Scope     *string        `json:"scope,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	ExpiresAt *string        `json:"expires_at,omitempty"`
}

// MarshalDeclaredGrants encodes grants in their stored form.
func MarshalDeclaredGrants(grants []DeclaredGrant) ([]byte, error) {
	out := make([]declaredGrantJSON, 0, len(grants))
	for _, g := range grants {
		entry := declaredGrantJSON{Key: string(g.Key), Meta: g.Meta}
		if g.Scope != nil {
			s := g.Scope.String()
			entry.Scope = &s
		}
		if g.ExpiresAt != nil {
			ts := g.ExpiresAt.UTC().Format(time.RFC3339Nano)
			entry.ExpiresAt = &ts
		}
		out = append(out, entry)
	}
	return json.Marshal(out)
}

// ParseDeclaredGrants reads stored grants. Entries with an unknown key, an
// unparsable scope or an unparsable expiry are dropped, as is anything that is
// not an array of objects, so redemption never fails on old rows.
func ParseDeclaredGrants(data []byte) []DeclaredGrant {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	grants := make([]DeclaredGrant, 0, len(raw))
	for _, item := range raw {
		g, err := decodeDeclaredGrant(item)
		if err != nil {
			continue
		}
		grants = append(grants, g)
	}
	return grants
}

// DecodeDeclaredGrants reads grants supplied by a caller at mint time. Unlike
// ParseDeclaredGrants it rejects the whole list on the first bad entry.
func DecodeDeclaredGrants(data []byte) ([]DeclaredGrant, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("declared grants: %w", err)
	}
	grants := make([]DeclaredGrant, 0, len(raw))
	for i, item := range raw {
		g, err := decodeDeclaredGrant(item)
		if err != nil {
			return nil, fmt.Errorf("declared grant %d: %w", i, err)
		}
		grants = append(grants, g)
	}
	return grants, nil
}

func decodeDeclaredGrant(item json.RawMessage) (DeclaredGrant, error) {
	var entry declaredGrantJSON
	if err := json.Unmarshal(item, &entry); err != nil {
		return DeclaredGrant{}, err
	}
	key, err := entitlements.ParseKey(entry.Key)
	if err != nil {
		return DeclaredGrant{}, err
	}
	g := DeclaredGrant{Key: key, Meta: entry.Meta}
	if entry.Scope != nil {
		scope, err := entitlements.ParseScope(*entry.Scope)
		if err != nil {
			return DeclaredGrant{}, err
		}
		g.Scope = &scope
	}
	if entry.ExpiresAt != nil {
		ts, err := time.Parse(time.RFC3339Nano, *entry.ExpiresAt)
		if err != nil {
			return DeclaredGrant{}, fmt.Errorf("expires_at: %w", err)
		}
		ts = ts.UTC()
		g.ExpiresAt = &ts
	}
	return g, nil
}
