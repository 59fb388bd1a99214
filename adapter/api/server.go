// Package api serves the decision engine and share-token service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/ratelimit"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Decider evaluates access requirements.
type Decider interface {
	Decide(ctx context.Context, memberID string, req accessDomain.Requirement, dc accessDomain.DecisionContext) (accessDomain.Decision, error)
}

// Ledger reads and writes entitlement grants.
type Ledger interface {
	Grant(ctx context.Context, cmd entitlementsApp.GrantCommand) (entitlementsApp.GrantResult, error)
	Revoke(ctx context.Context, cmd entitlementsApp.RevokeCommand) (int, error)
	RevokeByID(ctx context.Context, id uuid.UUID, revokedBy, reason string) (int, error)
	ListActive(ctx context.Context, memberID string) ([]*entitlementsDomain.Grant, error)
	History(ctx context.Context, memberID string) ([]*entitlementsDomain.Grant, error)
}

// Tokens mints and checks share tokens.
type Tokens interface {
	Mint(ctx context.Context, cmd sharingApp.MintCommand) (sharingApp.MintResult, error)
	Validate(ctx context.Context, cmd sharingApp.ValidateCommand) (sharingDomain.Result, error)
	Redeem(ctx context.Context, cmd sharingApp.RedeemCommand) (sharingDomain.Result, error)
	Revoke(ctx context.Context, tokenID uuid.UUID, revokedBy string) (bool, error)
	Usage(ctx context.Context, tokenID uuid.UUID) (map[string]int, error)
}

// Deps are the collaborators and secrets the server is built from.
type Deps struct {
	Engine  Decider
	Ledger  Ledger
	Tokens  Tokens
	Limiter ratelimit.Limiter
	Health  *observability.HealthRegistry
	Metrics observability.Metrics

	AdminSecret string
	JWTSecret   string
	JWTIssuer   string
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
	deps   Deps
}

// NewServer creates the server and registers every route.
func NewServer(cfg ServerConfig, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestContext(logger))

	s := &Server{
		router: router,
		logger: logger,
		deps:   deps,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	identity := identityMiddleware(s.deps.JWTSecret, s.deps.JWTIssuer)
	limited := rateLimitMiddleware(s.deps.Limiter, s.deps.Metrics, s.logger)

	v1 := s.router.Group("/v1", identity)
	v1.POST("/decisions", s.handleDecide)
	v1.GET("/members/me/entitlements", s.handleMyEntitlements)
	v1.POST("/tokens/validate", limited, s.handleValidateToken)
	v1.POST("/tokens/redeem", limited, s.handleRedeemToken)

	admin := s.router.Group("/v1/admin", adminMiddleware(s.deps.AdminSecret))
	admin.POST("/grants", s.handleGrant)
	admin.POST("/grants/revoke", s.handleRevokeGrant)
	admin.GET("/members/:id/grants", s.handleHistory)
	admin.POST("/tokens", s.handleMintToken)
	admin.POST("/tokens/:id/revoke", s.handleRevokeToken)
	admin.GET("/tokens/:id/usage", s.handleTokenUsage)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": observability.HealthStatusHealthy,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Health != nil {
		health := s.deps.Health.Check(c.Request.Context())
		body["status"] = health.Status
		body["checks"] = health.Checks
		if health.Status == observability.HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
