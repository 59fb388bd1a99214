package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	accessApp "github.com/felixgeelhaar/gatehouse/internal/access/application"
	accessDomain "github.com/felixgeelhaar/gatehouse/internal/access/domain"
	"github.com/felixgeelhaar/gatehouse/internal/access/infrastructure/policy"
	entitlementsApp "github.com/felixgeelhaar/gatehouse/internal/entitlements/application"
	entitlementsDomain "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedApplication "github.com/felixgeelhaar/gatehouse/internal/shared/application"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/crypto"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/ratelimit"
	sharingApp "github.com/felixgeelhaar/gatehouse/internal/sharing/application"
	sharingDomain "github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/felixgeelhaar/gatehouse/pkg/config"
	"github.com/felixgeelhaar/gatehouse/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics observability.Metrics

	// Database
	DB *database.Handle

	// Redis
	RedisClient *redis.Client

	// Repositories
	GrantRepo  entitlementsDomain.GrantRepository
	TokenRepo  sharingDomain.TokenRepository
	OutboxRepo outbox.Repository
	UnitOfWork sharedApplication.UnitOfWork

	// Policies is the breaker-wrapped provider the engine reads.
	// PolicyStore is set only when POLICY_SOURCE=db.
	Policies    *policy.BreakerProvider
	PolicyStore accessDomain.PolicyStore

	// Services
	Ledger  *entitlementsApp.Ledger
	Engine  *accessApp.Engine
	Sharing *sharingApp.Service

	RateLimiter ratelimit.Limiter
	Health      *observability.HealthRegistry

	// Publishers
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor

	closePolicies func() error
}

// Option customizes container construction.
type Option func(*Container)

// WithMetrics replaces the no-op metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(c *Container) { c.Metrics = m }
}

// NewContainer creates a new container with all dependencies wired.
// SQLite databases are migrated on open; PostgreSQL is migrated by the
// migrate command.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NoopMetrics{},
		Health:  observability.NewHealthRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}

	handle, err := database.Open(ctx, database.Config{
		URL:        cfg.DatabaseURL,
		SQLitePath: cfg.SQLitePath,
		MaxConns:   cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = handle
	c.Health.Register("database", observability.PingChecker("database", true, handle.Ping))
	logger.Info("connected to database", "driver", handle.Driver)

	if handle.Driver == database.DriverSQLite {
		if err := migrations.RunSQLite(ctx, handle.SQL); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if err := c.wireRepositories(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.wireRedis(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.wirePublisher(); err != nil {
		c.Close()
		return nil, err
	}

	c.Ledger = entitlementsApp.NewLedger(c.GrantRepo, c.OutboxRepo, c.UnitOfWork,
		entitlementsApp.WithLedgerLogger(logger),
		entitlementsApp.WithLedgerMetrics(c.Metrics),
	)
	c.Engine = accessApp.NewEngine(c.Ledger, c.Policies,
		accessApp.WithEngineLogger(logger),
		accessApp.WithEngineMetrics(c.Metrics),
	)
	c.Sharing = sharingApp.NewService(c.TokenRepo, c.Ledger, c.UnitOfWork,
		sharingApp.WithLogger(logger),
		sharingApp.WithMetrics(c.Metrics),
		sharingApp.WithOutbox(c.OutboxRepo),
		sharingApp.WithSecretHasher(crypto.NewSecretHasher(sharingApp.SecretPrefix, cfg.ShareTokenPepper)),
	)

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		MaxRetries:       cfg.OutboxMaxRetries,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}, logger, outbox.WithProcessorMetrics(c.Metrics))

	return c, nil
}

func (c *Container) wireRepositories(ctx context.Context) error {
	factory := NewRepositoryFactory(c.DB)

	var err error
	if c.GrantRepo, err = factory.GrantRepository(); err != nil {
		return fmt.Errorf("failed to create grant repository: %w", err)
	}
	if c.TokenRepo, err = factory.TokenRepository(); err != nil {
		return fmt.Errorf("failed to create token repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return fmt.Errorf("failed to create outbox repository: %w", err)
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return fmt.Errorf("failed to create unit of work: %w", err)
	}

	var provider accessDomain.PolicyProvider
	switch c.Config.PolicySource {
	case config.PolicySourceFile:
		fp, err := policy.NewFileProvider(c.Config.PolicyFile)
		if err != nil {
			return fmt.Errorf("failed to load policy file: %w", err)
		}
		c.Logger.Info("loaded policy file", "path", c.Config.PolicyFile, "policies", fp.Len())
		provider = fp
	default:
		store, closer, err := factory.PolicyStore(ctx, c.Config.DatabaseURL, c.Config.DatabaseMaxConns)
		if err != nil {
			return fmt.Errorf("failed to open policy store: %w", err)
		}
		c.PolicyStore = store
		c.closePolicies = closer
		provider = store
	}

	c.Policies = policy.NewBreakerProvider(provider, policy.BreakerConfig{
		FailureThreshold: uint32(max(c.Config.PolicyBreakerFailures, 1)),
		Timeout:          c.Config.PolicyBreakerTimeout,
		MaxRequests:      1,
	}, c.Logger, c.Metrics)
	return nil
}

// wireRedis connects the token rate limiter. Redis is optional: without it,
// or when it is unreachable in development, limits are kept in memory.
func (c *Container) wireRedis(ctx context.Context) error {
	limit := ratelimit.Limit{Max: c.Config.TokenRateLimit, Window: c.Config.TokenRateWindow}
	c.RateLimiter = ratelimit.NewMemoryLimiter(limit)

	if c.Config.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		c.Logger.Warn("invalid Redis URL, rate limits stay in memory", "error", err)
		return nil
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, rate limits stay in memory", "error", err)
		return nil
	}

	c.RedisClient = client
	limiter := ratelimit.NewRedisLimiter(client, "gatehouse:ratelimit:", limit)
	c.RateLimiter = limiter
	c.Health.Register("redis", observability.PingChecker("redis", false, limiter.Ping))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) wirePublisher() error {
	if c.Config.RabbitMQURL == "" {
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to create event publisher: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}
	c.EventPublisher = publisher
	return nil
}

// Close releases all resources held by the container.
func (c *Container) Close() {
	if c.OutboxProcessor != nil && c.OutboxProcessor.IsRunning() {
		c.OutboxProcessor.Stop()
		c.Logger.Info("outbox processor stopped")
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}

	if c.closePolicies != nil {
		if err := c.closePolicies(); err != nil {
			c.Logger.Warn("error closing policy store", "error", err)
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("error closing database", "error", err)
		} else {
			c.Logger.Info("database connection closed")
		}
	}
}
