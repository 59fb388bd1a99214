// Package server holds the commands that run long-lived processes and
// maintain the database.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/gatehouse/adapter/api"
	"github.com/felixgeelhaar/gatehouse/internal/app"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr   string
	serveOutbox bool
)

// ServeCmd runs the HTTP decision API.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP decision API",
	Long: `Start the HTTP decision API. The outbox processor runs in the same
process when --outbox is set or OUTBOX_PROCESSOR_ENABLED is true.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newServerLogger(cmd.ErrOrStderr(), cfg)

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer container.Close()

		addr := cfg.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		return run(ctx, container, addr, serveOutbox || cfg.OutboxProcessorEnabled)
	},
}

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	ServeCmd.Flags().BoolVar(&serveOutbox, "outbox", false, "also run the outbox processor")
}

// NewServer builds the API server over a container.
func NewServer(c *app.Container, addr string) *api.Server {
	cfg := api.DefaultServerConfig()
	if addr != "" {
		cfg.Addr = addr
	}
	return api.NewServer(cfg, api.Deps{
		Engine:      c.Engine,
		Ledger:      c.Ledger,
		Tokens:      c.Sharing,
		Limiter:     c.RateLimiter,
		Health:      c.Health,
		Metrics:     c.Metrics,
		AdminSecret: c.Config.AdminSecret,
		JWTSecret:   c.Config.IdentityJWTSecret,
		JWTIssuer:   c.Config.IdentityJWTIssuer,
	}, c.Logger)
}

// run serves until ctx is canceled or the listener fails.
func run(ctx context.Context, c *app.Container, addr string, withOutbox bool) error {
	if withOutbox {
		if err := c.OutboxProcessor.Start(ctx); err != nil {
			return err
		}
	}

	srv := NewServer(c, addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServerLogger(out io.Writer, cfg *config.Config) *slog.Logger {
	logCfg := observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat)
	logCfg.Output = out
	return observability.NewLogger(logCfg)
}
