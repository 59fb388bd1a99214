package api

import (
	"encoding/json"
	"time"

	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/google/uuid"
)

type grantView struct {
	ID           uuid.UUID                `json:"id"`
	MemberID     string                   `json:"member_id"`
	Key          entitlementsDomain.Key   `json:"key"`
	Scope        entitlementsDomain.Scope `json:"scope"`
	ScopeMeta    map[string]any           `json:"scope_meta,omitempty"`
	GrantedBy    string                   `json:"granted_by,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	Source       string                   `json:"source"`
	ExpiresAt    *time.Time               `json:"expires_at,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	RevokedAt    *time.Time               `json:"revoked_at,omitempty"`
	RevokedBy    string                   `json:"revoked_by,omitempty"`
	RevokeReason string                   `json:"revoke_reason,omitempty"`
	Active       bool                     `json:"active"`
}

func toGrantView(g *entitlementsDomain.Grant, now time.Time) grantView {
	return grantView{
		ID:           g.ID,
		MemberID:     g.MemberID,
		Key:          g.Key,
		Scope:        g.Scope,
		ScopeMeta:    g.ScopeMeta,
		GrantedBy:    g.GrantedBy,
		Reason:       g.Reason,
		Source:       g.Source,
		ExpiresAt:    g.ExpiresAt,
		CreatedAt:    g.CreatedAt,
		RevokedAt:    g.RevokedAt,
		RevokedBy:    g.RevokedBy,
		RevokeReason: g.RevokeReason,
		Active:       g.IsActive(now),
	}
}

func toGrantViews(grants []*entitlementsDomain.Grant, now time.Time) []grantView {
	out := make([]grantView, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantView(g, now))
	}
	return out
}

type tokenView struct {
	ID             uuid.UUID                `json:"id"`
	Kind           string                   `json:"kind"`
	Scope          entitlementsDomain.Scope `json:"scope"`
	Grants         json.RawMessage          `json:"grants"`
	ExpiresAt      *time.Time               `json:"expires_at,omitempty"`
	MaxRedemptions *int                     `json:"max_redemptions,omitempty"`
	CreatedBy      string                   `json:"created_by"`
	CreatedAt      time.Time                `json:"created_at"`
}

func toTokenView(t *sharingDomain.ShareToken) (tokenView, error) {
	grants, err := sharingDomain.MarshalDeclaredGrants(t.Grants)
	if err != nil {
		return tokenView{}, err
	}
	return tokenView{
		ID:             t.ID,
		Kind:           t.Kind,
		Scope:          t.Scope,
		Grants:         grants,
		ExpiresAt:      t.ExpiresAt,
		MaxRedemptions: t.MaxRedemptions,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
	}, nil
}
