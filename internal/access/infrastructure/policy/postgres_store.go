package policy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	"github.com/lib/pq"
)

// PostgresStore implements PolicyStore on a lib/pq connection.
// Early-access tiers live in a TEXT[] column.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on a database/sql handle opened with the "postgres" driver.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgresStore opens a dedicated lib/pq connection for policy reads.
func OpenPostgresStore(ctx context.Context, databaseURL string, maxConns int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping policy store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the policy for resourceID, or nil when none is configured.
func (s *PostgresStore) Get(ctx context.Context, resourceID string) (*domain.Policy, error) {
	var (
		releaseAt sql.NullTime
		tiers     []string
		minTier   string
	)
	p := &domain.Policy{ResourceID: resourceID}
	err := s.db.QueryRowContext(ctx, `
		SELECT release_at, early_access, early_access_tiers, min_tier
		FROM access_policies WHERE resource_id = $1`, resourceID,
	).Scan(&releaseAt, &p.EarlyAccess, pq.Array(&tiers), &minTier)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	if releaseAt.Valid {
		t := releaseAt.Time.UTC()
		p.ReleaseAt = &t
	}
	if p.EarlyAccessTiers, err = domain.ParseTierNames(tiers); err != nil {
		return nil, fmt.Errorf("policy %s: %w", resourceID, err)
	}
	if p.MinTier, err = entitlements.ParseTier(minTier); err != nil {
		return nil, fmt.Errorf("policy %s: %w", resourceID, err)
	}
	return p, nil
}

// Put inserts or replaces a policy.
func (s *PostgresStore) Put(ctx context.Context, p domain.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	var releaseAt sql.NullTime
	if p.ReleaseAt != nil {
		releaseAt = sql.NullTime{Time: p.ReleaseAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_policies (resource_id, release_at, early_access, early_access_tiers, min_tier, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (resource_id) DO UPDATE SET
			release_at = EXCLUDED.release_at,
			early_access = EXCLUDED.early_access,
			early_access_tiers = EXCLUDED.early_access_tiers,
			min_tier = EXCLUDED.min_tier,
			updated_at = NOW()`,
		p.ResourceID, releaseAt, p.EarlyAccess, pq.Array(p.TierNames()), minTierColumn(p.MinTier),
	)
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}

// Delete removes a policy. Missing rows are ignored.
func (s *PostgresStore) Delete(ctx context.Context, resourceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM access_policies WHERE resource_id = $1`, resourceID); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}
