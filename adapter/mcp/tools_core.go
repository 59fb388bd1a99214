package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

func registerCoreTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("cli.health").
		Description("Check CLI wiring health").
		Handler(func(ctx context.Context, input struct{}) (map[string]string, error) {
			if app == nil || app.Ledger == nil || app.Engine == nil || app.Tokens == nil {
				return nil, errors.New("app not initialized")
			}
			return map[string]string{"status": "ok"}, nil
		})

	srv.Tool("cli.version").
		Description("Get CLI version information").
		Handler(func(ctx context.Context, input struct{}) (map[string]string, error) {
			return map[string]string{
				"version":    cli.Version,
				"commit":     cli.Commit,
				"build_date": cli.BuildDate,
			}, nil
		})
}
