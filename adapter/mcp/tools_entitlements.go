package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type memberInput struct {
	MemberID string `json:"member_id" jsonschema:"required"`
	History  bool   `json:"history,omitempty"`
}

type grantInput struct {
	MemberID  string `json:"member_id" jsonschema:"required"`
	Key       string `json:"key" jsonschema:"required"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type revokeInput struct {
	GrantID  string `json:"grant_id,omitempty"`
	MemberID string `json:"member_id,omitempty"`
	Key      string `json:"key,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type grantDTO struct {
	ID        string     `json:"id"`
	Key       string     `json:"key"`
	Scope     string     `json:"scope"`
	Source    string     `json:"source"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type entitlementsDTO struct {
	MemberID string     `json:"member_id"`
	Tier     string     `json:"tier"`
	Keys     []string   `json:"keys"`
	Grants   []grantDTO `json:"grants"`
}

func toGrantDTOs(grants []*entitlements.Grant, now time.Time) []grantDTO {
	out := make([]grantDTO, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantDTO{
			ID:        g.ID.String(),
			Key:       string(g.Key),
			Scope:     g.Scope.String(),
			Source:    g.Source,
			Active:    g.IsActive(now),
			ExpiresAt: g.ExpiresAt,
			RevokedAt: g.RevokedAt,
			CreatedAt: g.CreatedAt,
		})
	}
	return out
}

func registerEntitlementTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("entitlements.list").
		Description("List a member's active entitlements and tier, or the full history").
		Handler(func(ctx context.Context, input memberInput) (entitlementsDTO, error) {
			return listEntitlements(ctx, app, input)
		})

	srv.Tool("entitlements.grant").
		Description("Grant an entitlement key to a member. Repeating an active grant changes nothing.").
		Handler(func(ctx context.Context, input grantInput) (map[string]any, error) {
			return grantEntitlement(ctx, app, deps.actor(), input)
		})

	srv.Tool("entitlements.revoke").
		Description("Revoke grants by grant_id, or by member_id, key and scope").
		Handler(func(ctx context.Context, input revokeInput) (map[string]any, error) {
			return revokeEntitlement(ctx, app, deps.actor(), input)
		})
}

func ledgerOf(app *cli.App) (*entitlementsApp.Ledger, error) {
	if app == nil || app.Ledger == nil {
		return nil, errors.New("entitlements require database connection")
	}
	return app.Ledger, nil
}

func listEntitlements(ctx context.Context, app *cli.App, input memberInput) (entitlementsDTO, error) {
	ledger, err := ledgerOf(app)
	if err != nil {
		return entitlementsDTO{}, err
	}
	if input.MemberID == "" {
		return entitlementsDTO{}, entitlements.ErrMemberRequired
	}

	active, err := ledger.ListActive(ctx, input.MemberID)
	if err != nil {
		return entitlementsDTO{}, err
	}
	now := time.Now()
	shown := active
	if input.History {
		if shown, err = ledger.History(ctx, input.MemberID); err != nil {
			return entitlementsDTO{}, err
		}
	}
	return entitlementsDTO{
		MemberID: input.MemberID,
		Tier:     entitlements.DeriveTier(entitlements.KeysCovering(active, entitlements.Global(), now)).String(),
		Keys:     entitlements.ActiveKeys(active, now).Strings(),
		Grants:   toGrantDTOs(shown, now),
	}, nil
}

func grantEntitlement(ctx context.Context, app *cli.App, actor string, input grantInput) (map[string]any, error) {
	ledger, err := ledgerOf(app)
	if err != nil {
		return nil, err
	}
	key, err := entitlements.ParseKey(input.Key)
	if err != nil {
		return nil, err
	}
	scope, err := entitlements.ParseScope(input.Scope)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	expires, err := parseOptionalTime(input.ExpiresAt, now)
	if err != nil {
		return nil, err
	}

	result, err := ledger.Grant(ctx, entitlementsApp.GrantCommand{
		MemberID:  input.MemberID,
		Key:       key,
		Scope:     scope,
		ExpiresAt: expires,
		GrantedBy: actor,
		Reason:    input.Reason,
		Source:    entitlements.SourceAdmin,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"created": result.Created,
		"grant":   toGrantDTOs([]*entitlements.Grant{result.Grant}, now)[0],
	}, nil
}

func revokeEntitlement(ctx context.Context, app *cli.App, actor string, input revokeInput) (map[string]any, error) {
	ledger, err := ledgerOf(app)
	if err != nil {
		return nil, err
	}

	var revoked int
	if input.GrantID != "" {
		id, perr := parseUUID(input.GrantID)
		if perr != nil {
			return nil, perr
		}
		revoked, err = ledger.RevokeByID(ctx, id, actor, input.Reason)
	} else {
		key, kerr := entitlements.ParseKey(input.Key)
		if kerr != nil {
			return nil, kerr
		}
		scope, serr := entitlements.ParseScope(input.Scope)
		if serr != nil {
			return nil, serr
		}
		revoked, err = ledger.Revoke(ctx, entitlementsApp.RevokeCommand{
			MemberID:  input.MemberID,
			Key:       key,
			Scope:     scope,
			RevokedBy: actor,
			Reason:    input.Reason,
		})
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"revoked": revoked}, nil
}
