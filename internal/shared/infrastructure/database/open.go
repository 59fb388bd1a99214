package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/convert"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Config holds database configuration.
type Config struct {
	// Driver selects the backend. Empty means detect from URL.
	Driver Driver
	// URL is the PostgreSQL connection string, or a sqlite:// URL.
	URL string
	// SQLitePath is used when the driver is SQLite and URL is empty.
	SQLitePath string
	// MaxConns caps the PostgreSQL pool size.
	MaxConns int
}

// Handle is an open database. Exactly one of Pool and SQL is set.
type Handle struct {
	Driver Driver
	Pool   *pgxpool.Pool
	SQL    *sql.DB
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (*Handle, error) {
	driver := cfg.Driver
	if driver == "" || driver == "auto" {
		driver = DetectDriver(cfg.URL)
	}

	switch driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg)
	case DriverSQLite:
		return openSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Ping verifies the connection is alive.
func (h *Handle) Ping(ctx context.Context) error {
	if h.Pool != nil {
		return h.Pool.Ping(ctx)
	}
	return h.SQL.PingContext(ctx)
}

// Close releases the connection.
func (h *Handle) Close() error {
	if h.Pool != nil {
		h.Pool.Close()
		return nil
	}
	if h.SQL != nil {
		return h.SQL.Close()
	}
	return nil
}

func openPostgres(ctx context.Context, cfg Config) (*Handle, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = convert.ClampInt32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &Handle{Driver: DriverPostgres, Pool: pool}, nil
}

func openSQLite(ctx context.Context, cfg Config) (*Handle, error) {
	path := cfg.SQLitePath
	if cfg.URL != "" {
		path = SQLitePathFromURL(cfg.URL)
	}
	if path == "" {
		path = DefaultSQLitePath()
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := EnsureDirectory(path); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL for concurrent readers, a busy timeout instead of immediate lock errors.
	dsn := path
	if strings.Contains(dsn, "?") {
		dsn += "&"
	} else {
		dsn += "?"
	}
	dsn += "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// A single connection serializes writers, which the token redemption lock relies on.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &Handle{Driver: DriverSQLite, SQL: db}, nil
}

// DefaultSQLitePath returns the default local database path.
func DefaultSQLitePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".gatehouse", "gatehouse.db")
}

// EnsureDirectory creates the parent directory for path if it does not exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
