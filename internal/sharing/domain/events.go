package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gatehouse/internal/shared/domain"
)

const (
	AggregateType = "ShareToken"

	RoutingKeyTokenMinted   = "sharing.token.minted"
	RoutingKeyTokenRedeemed = "sharing.token.redeemed"
	RoutingKeyTokenRevoked  = "sharing.token.revoked"
)

// TokenMinted is emitted when a token is created. It never carries the secret.
type TokenMinted struct {
	sharedDomain.BaseEvent
	Kind           string     `json:"kind"`
	Scope          string     `json:"scope"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxRedemptions *int       `json:"max_redemptions,omitempty"`
	CreatedBy      string     `json:"created_by"`
}

// NewTokenMinted creates a TokenMinted event.
func NewTokenMinted(t *ShareToken) *TokenMinted {
	return &TokenMinted{
		BaseEvent:      sharedDomain.NewBaseEvent(t.ID, AggregateType, RoutingKeyTokenMinted),
		Kind:           t.Kind,
		Scope:          t.Scope.String(),
		ExpiresAt:      t.ExpiresAt,
		MaxRedemptions: t.MaxRedemptions,
		CreatedBy:      t.CreatedBy,
	}
}

// TokenRedeemed is emitted for every successful validate or redeem.
type TokenRedeemed struct {
	sharedDomain.BaseEvent
	MemberID string   `json:"member_id,omitempty"`
	AnonID   string   `json:"anon_id,omitempty"`
	Resource string   `json:"resource"`
	Action   string   `json:"action"`
	Granted  []string `json:"granted,omitempty"`
}

// NewTokenRedeemed creates a TokenRedeemed event.
func NewTokenRedeemed(t *ShareToken, r *Redemption, granted []string) *TokenRedeemed {
	return &TokenRedeemed{
		BaseEvent: sharedDomain.NewBaseEvent(t.ID, AggregateType, RoutingKeyTokenRedeemed),
		MemberID:  r.MemberID,
		AnonID:    r.AnonID,
		Resource:  r.Resource,
		Action:    r.Action,
		Granted:   granted,
	}
}

// TokenRevoked is emitted when a token is revoked.
type TokenRevoked struct {
	sharedDomain.BaseEvent
	RevokedBy string `json:"revoked_by"`
}

// NewTokenRevoked creates a TokenRevoked event.
func NewTokenRevoked(t *ShareToken) *TokenRevoked {
	return &TokenRevoked{
		BaseEvent: sharedDomain.NewBaseEvent(t.ID, AggregateType, RoutingKeyTokenRevoked),
		RevokedBy: t.RevokedBy,
	}
}
