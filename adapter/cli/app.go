package cli

import (
	accessApp "github.com/felixgeelhaar/gatehouse/internal/access/application"
	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
)

// App holds the CLI application dependencies.
type App struct {
	Ledger *entitlementsApp.Ledger
	Engine *accessApp.Engine
	Tokens *sharingApp.Service

	// Policies is nil when policies come from a read-only file.
	Policies accessDomain.PolicyStore

	// Actor is the default operator written to audit fields.
	Actor string
}

// NewApp creates a new CLI application with the given services.
func NewApp(
	ledger *entitlementsApp.Ledger,
	engine *accessApp.Engine,
	tokens *sharingApp.Service,
	policies accessDomain.PolicyStore,
) *App {
	return &App{
		Ledger:   ledger,
		Engine:   engine,
		Tokens:   tokens,
		Policies: policies,
	}
}

// SetActor updates the default operator.
func (a *App) SetActor(actor string) {
	a.Actor = actor
}

// app is the global CLI application instance
var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
