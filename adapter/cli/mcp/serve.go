package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/gatehouse/internal/app"
	mcpinternal "github.com/felixgeelhaar/gatehouse/internal/mcp"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logCfg := observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
		logCfg.Output = cmd.ErrOrStderr()
		logger := observability.NewLogger(logCfg)

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		cliApp := mcpinternal.NewCLIApp(container)
		err = mcpinternal.Serve(ctx, cfg, cliApp, logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}
