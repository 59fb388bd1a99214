package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Grant sources recorded for audit.
const (
	SourceAdmin      = "admin"
	SourceSystem     = "system"
	SourceShareToken = "share_token"
)

// Grant records that a member was given a key at a scope.
// Rows are never deleted; revocation is the only mutation.
type Grant struct {
	ID        uuid.UUID
	MemberID  string
	Key       Key
	Scope     Scope
	ScopeMeta map[string]any
	GrantedBy string
	Reason    string
	Source    string
	ExpiresAt *time.Time
	CreatedAt time.Time

	RevokedAt    *time.Time
	RevokedBy    string
	RevokeReason string
}

// NewGrant creates an unsaved grant.
func NewGrant(memberID string, key Key, scope Scope, now time.Time) (*Grant, error) {
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return nil, ErrMemberRequired
	}
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return &Grant{
		ID:        uuid.New(),
		MemberID:  memberID,
		Key:       key,
		Scope:     scope,
		CreatedAt: now.UTC(),
	}, nil
}

// IsActive reports whether the grant is unrevoked and unexpired at now.
func (g *Grant) IsActive(now time.Time) bool {
	if g.RevokedAt != nil {
		return false
	}
	return g.ExpiresAt == nil || g.ExpiresAt.After(now)
}

// Matches reports whether g is for the given triple.
func (g *Grant) Matches(memberID string, key Key, scope Scope) bool {
	return g.MemberID == memberID && g.Key == key && g.Scope == scope
}

// Revoke sets the revocation fields. Revoking twice keeps the first values.
func (g *Grant) Revoke(rev Revocation) {
	if g.RevokedAt != nil {
		return
	}
	at := rev.At.UTC()
	g.RevokedAt = &at
	g.RevokedBy = rev.By
	g.RevokeReason = rev.Reason
}

// Revocation describes who revoked a grant and when.
type Revocation struct {
	At     time.Time
	By     string
	Reason string
}

// ActiveKeys collects the keys of grants active at now.
func ActiveKeys(grants []*Grant, now time.Time) KeySet {
	keys := make(KeySet)
	for _, g := range grants {
		if g.IsActive(now) {
			keys.Add(g.Key)
		}
	}
	return keys
}

// KeysCovering collects the keys of active grants that apply at target.
func KeysCovering(grants []*Grant, target Scope, now time.Time) KeySet {
	keys := make(KeySet)
	for _, g := range grants {
		if g.IsActive(now) && g.Scope.Covers(target) {
			keys.Add(g.Key)
		}
	}
	return keys
}
