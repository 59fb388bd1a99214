package persistence

import (
	"context"
	"fmt"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTokenRepository implements TokenRepository with PostgreSQL.
type PostgresTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTokenRepository creates a new repository.
func NewPostgresTokenRepository(pool *pgxpool.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

// Create inserts a token.
func (r *PostgresTokenRepository) Create(ctx context.Context, t *domain.ShareToken) error {
	grants, err := domain.MarshalDeclaredGrants(t.Grants)
	if err != nil {
		return err
	}
	var revokedBy *string
	if t.RevokedBy != "" {
		revokedBy = &t.RevokedBy
	}
	_, err = sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO share_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.Hash, t.Kind, t.Scope.Column(), grants,
		t.ExpiresAt, t.MaxRedemptions, t.RevokedAt, revokedBy, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	return nil
}

// LockByHash reads the token with SELECT ... FOR UPDATE. Outside a transaction
// the lock is released as soon as the statement ends.
func (r *PostgresTokenRepository) LockByHash(ctx context.Context, hash string) (*domain.ShareToken, error) {
	return scanPostgresToken(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM share_tokens WHERE token_hash = $1 FOR UPDATE`, hash))
}

// FindByID returns a token by id.
func (r *PostgresTokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ShareToken, error) {
	return scanPostgresToken(sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM share_tokens WHERE id = $1`, id))
}

// Revoke sets the revocation fields unless already set.
func (r *PostgresTokenRepository) Revoke(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	tag, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE share_tokens SET revoked_at = $2, revoked_by = $3
		WHERE id = $1 AND revoked_at IS NULL`, id, at, by)
	if err != nil {
		return false, fmt.Errorf("revoke share token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountRedemptions counts log rows for (token, action).
func (r *PostgresTokenRepository) CountRedemptions(ctx context.Context, tokenID uuid.UUID, action string) (int, error) {
	var n int
	err := sharedPersistence.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM token_redemptions WHERE token_id = $1 AND action = $2`, tokenID, action).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

// AppendRedemption inserts a log row.
func (r *PostgresTokenRepository) AppendRedemption(ctx context.Context, red *domain.Redemption) error {
	_, err := sharedPersistence.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO token_redemptions (id, token_id, member_id, anon_id, resource, action, created_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)`,
		red.ID, red.TokenID, red.MemberID, red.AnonID, red.Resource, red.Action, red.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append redemption: %w", err)
	}
	return nil
}

// Usage returns redemption counts per action.
func (r *PostgresTokenRepository) Usage(ctx context.Context, tokenID uuid.UUID) (map[string]int, error) {
	rows, err := sharedPersistence.Executor(ctx, r.pool).Query(ctx,
		`SELECT action, COUNT(*) FROM token_redemptions WHERE token_id = $1 GROUP BY action`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("token usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		usage[action] = n
	}
	return usage, rows.Err()
}

func scanPostgresToken(row pgx.Row) (*domain.ShareToken, error) {
	var (
		t         domain.ShareToken
		scopeID   *string
		grants    []byte
		revokedBy *string
	)
	err := row.Scan(&t.ID, &t.Hash, &t.Kind, &scopeID, &grants, &t.ExpiresAt, &t.MaxRedemptions,
		&t.RevokedAt, &revokedBy, &t.CreatedBy, &t.CreatedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan share token: %w", err)
	}
	t.Scope = entitlements.ScopeFromColumn(scopeID)
	t.Grants = domain.ParseDeclaredGrants(grants)
	if revokedBy != nil {
		t.RevokedBy = *revokedBy
	}
	return &t, nil
}

var _ domain.TokenRepository = (*PostgresTokenRepository)(nil)
