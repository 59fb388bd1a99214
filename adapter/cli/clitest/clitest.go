// Package clitest builds a SQLite-backed CLI App for command tests.
package clitest

import (
	"bytes"
	"context"
	"testing"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	accessApp "github.com/felixgeelhaar/gatehouse/internal/access/application"
	"github.com/felixgeelhaar/gatehouse/internal/access/infrastructure/policy"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlementsPersistence "github.com/felixgeelhaar/gatehouse/internal/entitlements/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/sqlitetest"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	sharingPersistence "github.com/felixgeelhaar/gatehouse/internal/sharing/infrastructure/persistence"
	"github.com/spf13/cobra"
)

// NewApp returns an App over a fresh in-memory database, installs it as the
// global CLI app and clears it when the test ends.
func NewApp(t testing.TB) *cli.App {
	t.Helper()
	db := sqlitetest.Open(t)
	uow := sharedPersistence.NewSQLiteUnitOfWork(db)
	ob := outbox.NewSQLiteRepository(db)
	ledger := entitlementsApp.NewLedger(entitlementsPersistence.NewSQLiteGrantRepository(db), ob, uow)
	policies := policy.NewSQLiteStore(db)
	engine := accessApp.NewEngine(ledger, policies)
	tokens := sharingApp.NewService(sharingPersistence.NewSQLiteTokenRepository(db), ledger, uow,
		sharingApp.WithOutbox(ob))

	app := cli.NewApp(ledger, engine, tokens, policies)
	app.SetActor("tester")
	cli.SetApp(app)
	t.Cleanup(func() { cli.SetApp(nil) })
	return app
}

// Run executes cmd.RunE with args and returns what it printed.
func Run(t testing.TB, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)
	err := cmd.RunE(cmd, args)
	return out.String(), err
}
