package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresGrantColumns = `id, member_id, entitlement, scope_id, scope_meta, granted_by, reason, source,
	expires_at, created_at, revoked_at, revoked_by, revoke_reason`

// PostgresGrantRepository implements GrantRepository with PostgreSQL.
type PostgresGrantRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresGrantRepository creates a new repository.
func NewPostgresGrantRepository(pool *pgxpool.Pool) *PostgresGrantRepository {
	return &PostgresGrantRepository{pool: pool}
}

// InsertIfAbsent inserts g unless an active grant exists for its triple.
// Concurrent callers for the same triple serialize on a transaction-scoped
// advisory lock, so exactly one of them inserts.
func (r *PostgresGrantRepository) InsertIfAbsent(ctx context.Context, g *domain.Grant) (*domain.Grant, bool, error) {
	meta, err := marshalMeta(g.ScopeMeta)
	if err != nil {
		return nil, false, err
	}

	var (
		stored  *domain.Grant
		created bool
	)
	err = sharedPersistence.RunInTx(ctx, r.pool, func(txCtx context.Context) error {
		exec := sharedPersistence.Executor(txCtx, r.pool)

		lockKey := g.MemberID + "\x00" + string(g.Key) + "\x00" + g.Scope.String()
		if _, err := exec.Exec(txCtx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("lock grant triple: %w", err)
		}

		tag, err := exec.Exec(txCtx, `
			INSERT INTO entitlement_grants (`+postgresGrantColumns+`)
			SELECT $1::uuid, $2::text, $3::text, $4::text, $5::jsonb, $6::text, $7::text, $8::text,
			       $9::timestamptz, $10::timestamptz, NULL, NULL, NULL
			WHERE NOT EXISTS (
				SELECT 1 FROM entitlement_grants
				WHERE member_id = $2 AND entitlement = $3 AND scope_id IS NOT DISTINCT FROM $4
				  AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $10)
			)`,
			g.ID, g.MemberID, string(g.Key), g.Scope.Column(), meta,
			g.GrantedBy, g.Reason, g.Source, g.ExpiresAt, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
		if tag.RowsAffected() == 1 {
			stored, created = g, true
			return nil
		}

		rows, err := exec.Query(txCtx, `
			SELECT `+postgresGrantColumns+` FROM entitlement_grants
			WHERE member_id = $1 AND entitlement = $2 AND scope_id IS NOT DISTINCT FROM $3
			  AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $4)
			ORDER BY created_at DESC LIMIT 1`,
			g.MemberID, string(g.Key), g.Scope.Column(), g.CreatedAt)
		if err != nil {
			return err
		}
		existing, err := collectPostgresGrants(rows)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			return fmt.Errorf("grant for %s/%s neither inserted nor found", g.MemberID, g.Key)
		}
		stored = existing[0]
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// RevokeActive revokes every active grant for the triple.
func (r *PostgresGrantRepository) RevokeActive(ctx context.Context, memberID string, key domain.Key, scope domain.Scope, rev domain.Revocation) ([]*domain.Grant, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		UPDATE entitlement_grants
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE member_id = $4 AND entitlement = $5 AND scope_id IS NOT DISTINCT FROM $6
		  AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $1)
		RETURNING `+postgresGrantColumns,
		rev.At, rev.By, rev.Reason, memberID, string(key), scope.Column())
	if err != nil {
		return nil, fmt.Errorf("revoke grants: %w", err)
	}
	return collectPostgresGrants(rows)
}

// RevokeByID revokes one active grant.
func (r *PostgresGrantRepository) RevokeByID(ctx context.Context, id uuid.UUID, rev domain.Revocation) (*domain.Grant, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		UPDATE entitlement_grants
		SET revoked_at = $1, revoked_by = $2, revoke_reason = $3
		WHERE id = $4 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $1)
		RETURNING `+postgresGrantColumns,
		rev.At, rev.By, rev.Reason, id)
	if err != nil {
		return nil, fmt.Errorf("revoke grant: %w", err)
	}
	grants, err := collectPostgresGrants(rows)
	if err != nil || len(grants) == 0 {
		return nil, err
	}
	return grants[0], nil
}

// ListActive returns the member's grants active at now.
func (r *PostgresGrantRepository) ListActive(ctx context.Context, memberID string, now time.Time) ([]*domain.Grant, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		SELECT `+postgresGrantColumns+` FROM entitlement_grants
		WHERE member_id = $1 AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at, id`, memberID, now)
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return collectPostgresGrants(rows)
}

// History returns every grant for the member, newest first.
func (r *PostgresGrantRepository) History(ctx context.Context, memberID string) ([]*domain.Grant, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx, `
		SELECT `+postgresGrantColumns+` FROM entitlement_grants
		WHERE member_id = $1
		ORDER BY created_at DESC, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("grant history: %w", err)
	}
	return collectPostgresGrants(rows)
}

func collectPostgresGrants(rows pgx.Rows) ([]*domain.Grant, error) {
	defer rows.Close()

	grants := make([]*domain.Grant, 0)
	for rows.Next() {
		var (
			g                       domain.Grant
			key                     string
			scopeID                 *string
			meta                    []byte
			revokedBy, revokeReason *string
		)
		if err := rows.Scan(&g.ID, &g.MemberID, &key, &scopeID, &meta, &g.GrantedBy, &g.Reason, &g.Source,
			&g.ExpiresAt, &g.CreatedAt, &g.RevokedAt, &revokedBy, &revokeReason); err != nil {
			return nil, err
		}

		g.Key = domain.Key(key)
		g.Scope = domain.ScopeFromColumn(scopeID)

		var err error
		if g.ScopeMeta, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		if revokedBy != nil {
			g.RevokedBy = *revokedBy
		}
		if revokeReason != nil {
			g.RevokeReason = *revokeReason
		}
		grants = append(grants, &g)
	}
	return grants, rows.Err()
}

var _ domain.GrantRepository = (*PostgresGrantRepository)(nil)
