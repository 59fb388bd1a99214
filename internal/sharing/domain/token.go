package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
)

// ShareToken is a bearer capability. Only the hash of its secret is stored.
// A global Scope means the token is not bound to a resource.
type ShareToken struct {
	ID             uuid.UUID
	Hash           string
	Kind           string
	Scope          entitlements.Scope
	Grants         []DeclaredGrant
	ExpiresAt      *time.Time
	MaxRedemptions *int
	RevokedAt      *time.Time
	RevokedBy      string
	CreatedBy      string
	CreatedAt      time.Time
}

// NewShareToken creates an unsaved token for hash.
func NewShareToken(hash, kind string, scope entitlements.Scope, grants []DeclaredGrant, createdBy string, now time.Time) (*ShareToken, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, ErrKindRequired
	}
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return nil, ErrCreatorRequired
	}
	return &ShareToken{
		ID:        uuid.New(),
		Hash:      hash,
		Kind:      kind,
		Scope:     scope,
		Grants:    grants,
		CreatedBy: createdBy,
		CreatedAt: now.UTC(),
	}, nil
}

// IsRevoked reports whether the token was revoked.
func (t *ShareToken) IsRevoked() bool { return t.RevokedAt != nil }

// IsExpired reports whether the token's absolute expiry has passed at now.
func (t *ShareToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// ScopeMismatch reports whether expected and the token's scope are both set and differ.
func (t *ShareToken) ScopeMismatch(expected entitlements.Scope) bool {
	return !expected.IsGlobal() && !t.Scope.IsGlobal() && expected != t.Scope
}

// CapReached reports whether used redemptions exhaust the cap.
func (t *ShareToken) CapReached(used int) bool {
	return t.MaxRedemptions != nil && used >= *t.MaxRedemptions
}

// Remaining returns the redemptions left after used, or nil without a cap.
func (t *ShareToken) Remaining(used int) *int {
	if t.MaxRedemptions == nil {
		return nil
	}
	left := *t.MaxRedemptions - used
	if left < 0 {
		left = 0
	}
	return &left
}

// Check runs the lifecycle checks that precede the cap check.
func (t *ShareToken) Check(expected entitlements.Scope, now time.Time) ResultCode {
	switch {
	case t.IsRevoked():
		return ResultRevoked
	case t.IsExpired(now):
		return ResultExpired
	case t.ScopeMismatch(expected):
		return ResultScopeMismatch
	}
	return ResultOK
}

// Revoke marks the token revoked. The first revocation wins.
func (t *ShareToken) Revoke(by string, at time.Time) bool {
	if t.IsRevoked() {
		return false
	}
	at = at.UTC()
	t.RevokedAt = &at
	t.RevokedBy = by
	return true
}

// Redemption is one row of the append-only redemption log.
// Exactly one of MemberID and AnonID is set.
type Redemption struct {
	ID        uuid.UUID
	TokenID   uuid.UUID
	MemberID  string
	AnonID    string
	Resource  string
	Action    string
	CreatedAt time.Time
}

// NewRedemption creates a log row.
func NewRedemption(tokenID uuid.UUID, memberID, anonID, resource, action string, now time.Time) *Redemption {
	return &Redemption{
		ID:        uuid.New(),
		TokenID:   tokenID,
		MemberID:  memberID,
		AnonID:    anonID,
		Resource:  resource,
		Action:    action,
		CreatedAt: now.UTC(),
	}
}
