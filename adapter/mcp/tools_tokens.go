package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/mcp-go"
)

type declaredGrantInput struct {
	Key       string `json:"key" jsonschema:"required"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type mintInput struct {
	Kind           string               `json:"kind" jsonschema:"required"`
	Scope          string               `json:"scope,omitempty"`
	Grants         []declaredGrantInput `json:"grants,omitempty"`
	ExpiresAt      string               `json:"expires_at,omitempty"`
	MaxRedemptions *int                 `json:"max_redemptions,omitempty"`
}

type tokenCheckInput struct {
	Secret   string `json:"secret" jsonschema:"required"`
	Scope    string `json:"scope,omitempty"`
	MemberID string `json:"member_id,omitempty"`
	AnonID   string `json:"anon_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

type mintDTO struct {
	TokenID        string     `json:"token_id"`
	Kind           string     `json:"kind"`
	Scope          string     `json:"scope"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxRedemptions *int       `json:"max_redemptions,omitempty"`
	Secret         string     `json:"secret"`
}

func registerTokenTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("tokens.mint").
		Description("Mint a share token. The secret is returned once.").
		Handler(func(ctx context.Context, input mintInput) (mintDTO, error) {
			return mintToken(ctx, app, deps.actor(), input)
		})

	srv.Tool("tokens.validate").
		Description("Check a token for an anonymous request. Nothing is granted.").
		Handler(func(ctx context.Context, input tokenCheckInput) (domain.Result, error) {
			return validateToken(ctx, app, input)
		})

	srv.Tool("tokens.redeem").
		Description("Redeem a token for a member, granting its declared entitlements").
		Handler(func(ctx context.Context, input tokenCheckInput) (domain.Result, error) {
			return redeemToken(ctx, app, input)
		})
}

func tokensOf(app *cli.App) (*sharingApp.Service, error) {
	if app == nil || app.Tokens == nil {
		return nil, errors.New("tokens require database connection")
	}
	return app.Tokens, nil
}

func mintToken(ctx context.Context, app *cli.App, actor string, input mintInput) (mintDTO, error) {
	tokens, err := tokensOf(app)
	if err != nil {
		return mintDTO{}, err
	}
	scope, err := entitlements.ParseScope(input.Scope)
	if err != nil {
		return mintDTO{}, err
	}
	now := time.Now()
	expires, err := parseOptionalTime(input.ExpiresAt, now)
	if err != nil {
		return mintDTO{}, err
	}

	grants := make([]domain.DeclaredGrant, 0, len(input.Grants))
	for _, in := range input.Grants {
		key, err := entitlements.ParseKey(in.Key)
		if err != nil {
			return mintDTO{}, err
		}
		g := domain.DeclaredGrant{Key: key}
		if in.Scope != "" {
			s, err := entitlements.ParseScope(in.Scope)
			if err != nil {
				return mintDTO{}, err
			}
			g.Scope = &s
		}
		if g.ExpiresAt, err = parseOptionalTime(in.ExpiresAt, now); err != nil {
			return mintDTO{}, err
		}
		grants = append(grants, g)
	}

	minted, err := tokens.Mint(ctx, sharingApp.MintCommand{
		Kind:           input.Kind,
		Scope:          scope,
		Grants:         grants,
		ExpiresAt:      expires,
		MaxRedemptions: input.MaxRedemptions,
		CreatedBy:      actor,
	})
	if err != nil {
		return mintDTO{}, err
	}
	t := minted.Token
	return mintDTO{
		TokenID:        t.ID.String(),
		Kind:           t.Kind,
		Scope:          t.Scope.String(),
		ExpiresAt:      t.ExpiresAt,
		MaxRedemptions: t.MaxRedemptions,
		Secret:         minted.Secret,
	}, nil
}

func validateToken(ctx context.Context, app *cli.App, input tokenCheckInput) (domain.Result, error) {
	tokens, err := tokensOf(app)
	if err != nil {
		return domain.Result{}, err
	}
	scope, err := entitlements.ParseScope(input.Scope)
	if err != nil {
		return domain.Result{}, err
	}
	if input.Action == "" {
		input.Action = "stream"
	}
	return tokens.Validate(ctx, sharingApp.ValidateCommand{
		Secret:        input.Secret,
		ExpectedScope: scope,
		AnonID:        input.AnonID,
		Resource:      input.Resource,
		Action:        input.Action,
	})
}

func redeemToken(ctx context.Context, app *cli.App, input tokenCheckInput) (domain.Result, error) {
	tokens, err := tokensOf(app)
	if err != nil {
		return domain.Result{}, err
	}
	scope, err := entitlements.ParseScope(input.Scope)
	if err != nil {
		return domain.Result{}, err
	}
	if input.Action == "" {
		input.Action = "redeem"
	}
	return tokens.Redeem(ctx, sharingApp.RedeemCommand{
		Secret:        input.Secret,
		MemberID:      input.MemberID,
		ExpectedScope: scope,
		Resource:      input.Resource,
		Action:        input.Action,
	})
}
