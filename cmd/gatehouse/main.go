package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/gatehouse/adapter/cli"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/access"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/ledger"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/mcp"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/server"
	"github.com/felixgeelhaar/gatehouse/adapter/cli/token"
	"github.com/felixgeelhaar/gatehouse/internal/app"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
)

// Commands that build their own container from config.
var selfContained = map[string]bool{"serve": true, "migrate": true, "mcp": true, "version": true}

func main() {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{AppEnv: "development"}
	}
	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat))
	cli.SetLogger(logger)

	if len(os.Args) > 1 && !selfContained[os.Args[1]] {
		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
		defer container.Close()

		cliApp := cli.NewApp(container.Ledger, container.Engine, container.Sharing, container.PolicyStore)
		cli.SetApp(cliApp)
	}

	// Register commands
	cli.AddCommand(ledger.GrantCmd)
	cli.AddCommand(ledger.RevokeCmd)
	cli.AddCommand(ledger.EntitlementsCmd)
	cli.AddCommand(ledger.HistoryCmd)
	cli.AddCommand(access.DecideCmd)
	cli.AddCommand(access.PolicyCmd)
	cli.AddCommand(token.Cmd)
	cli.AddCommand(server.ServeCmd)
	cli.AddCommand(server.MigrateCmd)
	cli.AddCommand(mcp.Cmd)

	// Execute CLI
	cli.ExecuteContext(ctx)
}
