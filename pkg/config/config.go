package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Policy sources.
const (
	PolicySourceDB   = "db"
	PolicySourceFile = "file"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv    string
	LogLevel  string
	LogFormat string

	// Database. An empty DatabaseURL selects SQLite at SQLitePath.
	DatabaseURL      string
	SQLitePath       string
	DatabaseMaxConns int

	// Redis. Empty disables the shared rate limiter.
	RedisURL string

	// RabbitMQ. Empty disables publishing.
	RabbitMQURL string

	// Outbox
	OutboxPollInterval     time.Duration
	OutboxBatchSize        int
	OutboxMaxRetries       int
	OutboxRetentionDays    int
	OutboxCleanupSchedule  string
	OutboxProcessorEnabled bool

	// HTTP
	HTTPAddr string

	// Secrets
	AdminSecret       string
	IdentityJWTSecret string
	IdentityJWTIssuer string
	ShareTokenPepper  string

	// Policy
	PolicySource          string
	PolicyFile            string
	PolicyBreakerFailures int
	PolicyBreakerTimeout  time.Duration

	// Rate limiting for token endpoints
	TokenRateLimit  int
	TokenRateWindow time.Duration

	// MCP
	MCPAddr      string
	MCPAuthToken string

	// Worker
	WorkerHealthAddr string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", ""),

		DatabaseURL:      getEnv("DATABASE_URL", ""),
		SQLitePath:       getEnv("GATEHOUSE_SQLITE_PATH", ""),
		DatabaseMaxConns: getIntEnv("DATABASE_MAX_CONNS", 10),

		RedisURL:    getEnv("REDIS_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),

		OutboxPollInterval:     getDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:        getIntEnv("OUTBOX_BATCH_SIZE", 100),
		OutboxMaxRetries:       getIntEnv("OUTBOX_MAX_RETRIES", 5),
		OutboxRetentionDays:    getIntEnv("OUTBOX_RETENTION_DAYS", 14),
		OutboxCleanupSchedule:  getEnv("OUTBOX_CLEANUP_SCHEDULE", "@daily"),
		OutboxProcessorEnabled: getBoolEnv("OUTBOX_PROCESSOR_ENABLED", true),

		HTTPAddr: getEnv("HTTP_ADDR", "0.0.0.0:8080"),

		AdminSecret:       getEnv("ADMIN_SECRET", ""),
		IdentityJWTSecret: getEnv("IDENTITY_JWT_SECRET", ""),
		IdentityJWTIssuer: getEnv("IDENTITY_JWT_ISSUER", ""),
		ShareTokenPepper:  getEnv("SHARE_TOKEN_PEPPER", ""),

		PolicySource:          getEnv("POLICY_SOURCE", PolicySourceDB),
		PolicyFile:            getEnv("POLICY_FILE", "policies.yaml"),
		PolicyBreakerFailures: getIntEnv("POLICY_BREAKER_FAILURES", 5),
		PolicyBreakerTimeout:  getDurationEnv("POLICY_BREAKER_TIMEOUT", 30*time.Second),

		TokenRateLimit:  getIntEnv("TOKEN_RATE_LIMIT", 30),
		TokenRateWindow: getDurationEnv("TOKEN_RATE_WINDOW", time.Minute),

		MCPAddr:      getEnv("MCP_ADDR", "0.0.0.0:8082"),
		MCPAuthToken: getEnv("MCP_AUTH_TOKEN", ""),

		WorkerHealthAddr: getEnv("WORKER_HEALTH_ADDR", ""),
	}

	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.PolicySource {
	case PolicySourceDB:
	case PolicySourceFile:
		if c.PolicyFile == "" {
			errs = append(errs, errors.New("POLICY_FILE is required when POLICY_SOURCE=file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown POLICY_SOURCE %q", c.PolicySource))
	}
	if c.TokenRateLimit <= 0 || c.TokenRateWindow <= 0 {
		errs = append(errs, errors.New("TOKEN_RATE_LIMIT and TOKEN_RATE_WINDOW must be positive"))
	}
	if c.IsProduction() {
		if c.AdminSecret == "" {
			errs = append(errs, errors.New("ADMIN_SECRET is required in production"))
		}
		if c.IdentityJWTSecret == "" {
			errs = append(errs, errors.New("IDENTITY_JWT_SECRET is required in production"))
		}
	}
	return errors.Join(errs...)
}

// LocalMode reports whether the SQLite backend is selected.
func (c *Config) LocalMode() bool {
	return c.DatabaseURL == ""
}

// OutboxRetention returns the outbox retention as a duration.
func (c *Config) OutboxRetention() time.Duration {
	return time.Duration(c.OutboxRetentionDays) * 24 * time.Hour
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
