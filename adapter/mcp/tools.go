package mcp

import (
	"errors"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

// ToolDependencies provides handlers and context for MCP tools.
type ToolDependencies struct {
	App *cli.App

	// Actor is recorded on grants, revocations and tokens written through MCP.
	Actor string
}

func (d ToolDependencies) actor() string {
	if d.Actor != "" {
		return d.Actor
	}
	return "mcp"
}

// RegisterCLITools registers MCP tools that mirror CLI functionality.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}

	registerCoreTools(srv, deps)
	registerAccessTools(srv, deps)
	registerEntitlementTools(srv, deps)
	registerTokenTools(srv, deps)
	return nil
}
