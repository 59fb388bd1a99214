package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/gatehouse/internal/shared/domain"
)

const (
	AggregateType = "Grant"

	RoutingKeyGrantCreated = "entitlements.grant.created"
	RoutingKeyGrantRevoked = "entitlements.grant.revoked"
)

// GrantCreated is emitted when a grant row is inserted.
type GrantCreated struct {
	sharedDomain.BaseEvent
	MemberID  string     `json:"member_id"`
	Key       string     `json:"key"`
	Scope     string     `json:"scope"`
	Source    string     `json:"source"`
	GrantedBy string     `json:"granted_by"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewGrantCreated creates a GrantCreated event.
func NewGrantCreated(g *Grant) *GrantCreated {
	return &GrantCreated{
		BaseEvent: sharedDomain.NewBaseEvent(g.ID, AggregateType, RoutingKeyGrantCreated),
		MemberID:  g.MemberID,
		Key:       string(g.Key),
		Scope:     g.Scope.String(),
		Source:    g.Source,
		GrantedBy: g.GrantedBy,
		ExpiresAt: g.ExpiresAt,
	}
}

// GrantRevoked is emitted for every grant a revoke touched.
type GrantRevoked struct {
	sharedDomain.BaseEvent
	MemberID  string `json:"member_id"`
	Key       string `json:"key"`
	Scope     string `json:"scope"`
	RevokedBy string `json:"revoked_by"`
	Reason    string `json:"reason,omitempty"`
}

// NewGrantRevoked creates a GrantRevoked event.
func NewGrantRevoked(g *Grant) *GrantRevoked {
	return &GrantRevoked{
		BaseEvent: sharedDomain.NewBaseEvent(g.ID, AggregateType, RoutingKeyGrantRevoked),
		MemberID:  g.MemberID,
		Key:       string(g.Key),
		Scope:     g.Scope.String(),
		RevokedBy: g.RevokedBy,
		Reason:    g.RevokeReason,
	}
}
