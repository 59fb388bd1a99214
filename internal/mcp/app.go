package mcp

import (
	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/internal/app"
)

// NewCLIApp creates a CLI application instance backed by the provided container.
func NewCLIApp(container *app.Container) *cli.App {
	cliApp := cli.NewApp(
		container.Ledger,
		container.Engine,
		container.Sharing,
		container.PolicyStore,
	)
	cliApp.SetActor("mcp")
	return cliApp
}
