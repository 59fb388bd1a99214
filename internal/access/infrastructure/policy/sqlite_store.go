// Package policy provides the resource access policy sources: SQL stores,
// a YAML file and a circuit breaker that guards any of them.
package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/access/domain"
	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
)

// SQLiteStore implements PolicyStore with SQLite. Early-access tiers are a JSON array of names.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the policy for resourceID, or nil when none is configured.
func (s *SQLiteStore) Get(ctx context.Context, resourceID string) (*domain.Policy, error) {
	var (
		releaseAt sql.NullString
		early     bool
		tiersJSON string
		minTier   string
	)
	err := sharedPersistence.SQLiteExecutor(ctx, s.db).QueryRowContext(ctx, `
		SELECT release_at, early_access, early_access_tiers, min_tier
		FROM access_policies WHERE resource_id = ?`, resourceID,
	).Scan(&releaseAt, &early, &tiersJSON, &minTier)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	p := &domain.Policy{ResourceID: resourceID, EarlyAccess: early}
	if p.ReleaseAt, err = sharedPersistence.ParseNullSQLiteTime(releaseAt); err != nil {
		return nil, fmt.Errorf("policy %s release_at: %w", resourceID, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(tiersJSON), &names); err != nil {
		return nil, fmt.Errorf("policy %s early_access_tiers: %w", resourceID, err)
	}
	if p.EarlyAccessTiers, err = domain.ParseTierNames(names); err != nil {
		return nil, fmt.Errorf("policy %s: %w", resourceID, err)
	}
	if p.MinTier, err = entitlements.ParseTier(minTier); err != nil {
		return nil, fmt.Errorf("policy %s: %w", resourceID, err)
	}
	return p, nil
}

// Put inserts or replaces a policy.
func (s *SQLiteStore) Put(ctx context.Context, p domain.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	tiers, err := json.Marshal(p.TierNames())
	if err != nil {
		return err
	}
	_, err = sharedPersistence.SQLiteExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO access_policies (resource_id, release_at, early_access, early_access_tiers, min_tier, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (resource_id) DO UPDATE SET
			release_at = excluded.release_at,
			early_access = excluded.early_access,
			early_access_tiers = excluded.early_access_tiers,
			min_tier = excluded.min_tier,
			updated_at = excluded.updated_at`,
		p.ResourceID, sharedPersistence.NullSQLiteTime(p.ReleaseAt), p.EarlyAccess, string(tiers),
		minTierColumn(p.MinTier), sharedPersistence.FormatSQLiteTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}

// Delete removes a policy. Missing rows are ignored.
func (s *SQLiteStore) Delete(ctx context.Context, resourceID string) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM access_policies WHERE resource_id = ?`, resourceID)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}

func minTierColumn(t entitlements.Tier) string {
	if t == entitlements.TierNone {
		return ""
	}
	return t.String()
}
