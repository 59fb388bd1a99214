package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/felixgeelhaar/mcp-go"
)

type decideInput struct {
	MemberID     string   `json:"member_id,omitempty"`
	ResourceID   string   `json:"resource_id,omitempty"`
	RequiredKeys []string `json:"required_keys,omitempty"`
	Action       string   `json:"action,omitempty"`
}

func registerAccessTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("access.decide").
		Description("Decide whether a member may access a resource or hold global keys. An empty member_id is anonymous.").
		Handler(func(ctx context.Context, input decideInput) (domain.Decision, error) {
			return decide(ctx, app, input)
		})
}

func decide(ctx context.Context, app *cli.App, input decideInput) (domain.Decision, error) {
	if app == nil || app.Engine == nil {
		return domain.Decision{}, errors.New("decisions require database connection")
	}
	keys := parseKeys(input.RequiredKeys)
	req := domain.GlobalRequirement(keys...)
	if input.ResourceID != "" {
		req = domain.ResourceRequirement(input.ResourceID, keys...)
	}
	return app.Engine.Decide(ctx, input.MemberID, req, domain.DecisionContext{
		Action:        input.Action,
		CorrelationID: observability.CorrelationIDFromContext(ctx),
	})
}
