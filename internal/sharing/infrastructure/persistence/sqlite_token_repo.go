package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entitlements "github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	"github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/database"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/felixgeelhaar/gatehouse/internal/sharing/domain"
	"github.com/google/uuid"
)

const tokenColumns = `id, token_hash, kind, scope_id, declared_grants, expires_at, max_redemptions,
	revoked_at, revoked_by, created_by, created_at`

// SQLiteTokenRepository implements TokenRepository with SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewSQLiteTokenRepository creates a new repository.
func NewSQLiteTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// Create inserts a token.
func (r *SQLiteTokenRepository) Create(ctx context.Context, t *domain.ShareToken) error {
	grants, err := domain.MarshalDeclaredGrants(t.Grants)
	if err != nil {
		return err
	}
	var maxRedemptions sql.NullInt64
	if t.MaxRedemptions != nil {
		maxRedemptions = sql.NullInt64{Int64: int64(*t.MaxRedemptions), Valid: true}
	}
	_, err = sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO share_tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Hash, t.Kind, scopeColumn(t.Scope), string(grants),
		sharedPersistence.NullSQLiteTime(t.ExpiresAt), maxRedemptions,
		sharedPersistence.NullSQLiteTime(t.RevokedAt), sql.NullString{String: t.RevokedBy, Valid: t.RevokedBy != ""},
		t.CreatedBy, sharedPersistence.FormatSQLiteTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert share token: %w", err)
	}
	return nil
}

// LockByHash takes the database write lock with a no-op update before reading,
// so a second transaction on another connection waits until this one ends.
func (r *SQLiteTokenRepository) LockByHash(ctx context.Context, hash string) (*domain.ShareToken, error) {
	q := sharedPersistence.SQLiteExecutor(ctx, r.db)
	if _, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		if _, err := q.ExecContext(ctx,
			`UPDATE share_tokens SET token_hash = token_hash WHERE token_hash = ?`, hash); err != nil {
			return nil, fmt.Errorf("lock share token: %w", err)
		}
	}
	return scanSQLiteToken(q.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM share_tokens WHERE token_hash = ?`, hash))
}

// FindByID returns a token by id.
func (r *SQLiteTokenRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.ShareToken, error) {
	return scanSQLiteToken(sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM share_tokens WHERE id = ?`, id.String()))
}

// Revoke sets the revocation fields unless already set.
func (r *SQLiteTokenRepository) Revoke(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error) {
	res, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		UPDATE share_tokens SET revoked_at = ?, revoked_by = ?
		WHERE id = ? AND revoked_at IS NULL`,
		sharedPersistence.FormatSQLiteTime(at), by, id.String())
	if err != nil {
		return false, fmt.Errorf("revoke share token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountRedemptions counts log rows for (token, action).
func (r *SQLiteTokenRepository) CountRedemptions(ctx context.Context, tokenID uuid.UUID, action string) (int, error) {
	var n int
	err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM token_redemptions WHERE token_id = ? AND action = ?`,
		tokenID.String(), action).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

// AppendRedemption inserts a log row.
func (r *SQLiteTokenRepository) AppendRedemption(ctx context.Context, red *domain.Redemption) error {
	_, err := sharedPersistence.SQLiteExecutor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO token_redemptions (id, token_id, member_id, anon_id, resource, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		red.ID.String(), red.TokenID.String(), nullString(red.MemberID), nullString(red.AnonID),
		red.Resource, red.Action, sharedPersistence.FormatSQLiteTime(red.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append redemption: %w", err)
	}
	return nil
}

// Usage returns redemption counts per action.
func (r *SQLiteTokenRepository) Usage(ctx context.Context, tokenID uuid.UUID) (map[string]int, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx,
		`SELECT action, COUNT(*) FROM token_redemptions WHERE token_id = ? GROUP BY action`, tokenID.String())
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

func scanSQLiteToken(row *sql.Row) (*domain.ShareToken, error) {
	var (
		t                             domain.ShareToken
		id, grants, createdAt         string
		scopeID, expiresAt, revokedAt sql.NullString
		revokedBy                     sql.NullString
		maxRedemptions                sql.NullInt64
	)
	err := row.Scan(&id, &t.Hash, &t.Kind, &scopeID, &grants, &expiresAt, &maxRedemptions,
		&revokedAt, &revokedBy, &t.CreatedBy, &createdAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan share token: %w", err)
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("share token id %q: %w", id, err)
	}
	if scopeID.Valid {
		t.Scope = entitlements.ScopeFromColumn(&scopeID.String)
	}
	t.Grants = domain.ParseDeclaredGrants([]byte(grants))
	if maxRedemptions.Valid {
		n := int(maxRedemptions.Int64)
		t.MaxRedemptions = &n
	}
	if t.ExpiresAt, err = sharedPersistence.ParseNullSQLiteTime(expiresAt); err != nil {
		return nil, err
	}
	if t.RevokedAt, err = sharedPersistence.ParseNullSQLiteTime(revokedAt); err != nil {
		return nil, err
	}
	t.RevokedBy = revokedBy.String
	if t.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func scopeColumn(s entitlements.Scope) sql.NullString {
	if id, ok := s.ResourceID(); ok {
		return sql.NullString{String: id, Valid: true}
	}
	return sql.NullString{}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.TokenRepository = (*SQLiteTokenRepository)(nil)
