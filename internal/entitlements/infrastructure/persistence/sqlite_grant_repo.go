package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/gatehouse/internal/entitlements/domain"
	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

const sqliteGrantColumns = `id, member_id, entitlement, scope_id, scope_meta, granted_by, reason, source,
	expires_at, created_at, revoked_at, revoked_by, revoke_reason`

// activeTripleSQLite matches active rows for (member, key, scope) at a moment.
// scope_id IS ? matches NULL for the global scope.
const activeTripleSQLite = `member_id = ? AND entitlement = ? AND scope_id IS ?
	AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)`

// SQLiteGrantRepository implements GrantRepository with SQLite.
// Timestamps are stored in a fixed-width UTC layout so that string comparison orders them.
type SQLiteGrantRepository struct {
	db *sql.DB
}

// NewSQLiteGrantRepository creates a new repository.
func NewSQLiteGrantRepository(db *sql.DB) *SQLiteGrantRepository {
	return &SQLiteGrantRepository{db: db}
}

// InsertIfAbsent inserts g unless an active grant exists for its triple.
// SQLite has a single writer, so the conditional insert cannot race.
func (r *SQLiteGrantRepository) InsertIfAbsent(ctx context.Context, g *domain.Grant) (*domain.Grant, bool, error) {
	meta, err := marshalMeta(g.ScopeMeta)
	if err != nil {
		return nil, false, err
	}

	var (
		stored  *domain.Grant
		created bool
	)
	err = sharedPersistence.RunInSQLiteTx(ctx, r.db, func(txCtx context.Context) error {
		q := sharedPersistence.SQLiteExecutor(txCtx, r.db)
		now := sharedPersistence.FormatSQLiteTime(g.CreatedAt)

		res, err := q.ExecContext(txCtx, `
			INSERT INTO entitlement_grants (`+sqliteGrantColumns+`)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL
			WHERE NOT EXISTS (SELECT 1 FROM entitlement_grants WHERE `+activeTripleSQLite+`)`,
			g.ID.String(), g.MemberID, string(g.Key), nullScope(g.Scope), meta,
			g.GrantedBy, g.Reason, g.Source,
			sharedPersistence.NullSQLiteTime(g.ExpiresAt), now,
			g.MemberID, string(g.Key), nullScope(g.Scope), now,
		)
		if err != nil {
			return fmt.Errorf("insert grant: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			stored, created = g, true
			return nil
		}

		rows, err := q.QueryContext(txCtx, `
			SELECT `+sqliteGrantColumns+` FROM entitlement_grants
			WHERE `+activeTripleSQLite+`
			ORDER BY created_at DESC LIMIT 1`,
			g.MemberID, string(g.Key), nullScope(g.Scope), now)
		if err != nil {
			return err
		}
		existing, err := collectSQLiteGrants(rows)
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
func (r *SQLiteGrantRepository) RevokeActive(ctx context.Context, memberID string, key domain.Key, scope domain.Scope, rev domain.Revocation) ([]*domain.Grant, error) {
	at := sharedPersistence.FormatSQLiteTime(rev.At)
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		UPDATE entitlement_grants
		SET revoked_at = ?, revoked_by = ?, revoke_reason = ?
		WHERE `+activeTripleSQLite+`
		RETURNING `+sqliteGrantColumns,
		at, rev.By, rev.Reason,
		memberID, string(key), nullScope(scope), at)
	if err != nil {
		return nil, fmt.Errorf("revoke grants: %w", err)
	}
	return collectSQLiteGrants(rows)
}

// RevokeByID revokes one active grant.
func (r *SQLiteGrantRepository) RevokeByID(ctx context.Context, id uuid.UUID, rev domain.Revocation) (*domain.Grant, error) {
	at := sharedPersistence.FormatSQLiteTime(rev.At)
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		UPDATE entitlement_grants
		SET revoked_at = ?, revoked_by = ?, revoke_reason = ?
		WHERE id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)
		RETURNING `+sqliteGrantColumns,
		at, rev.By, rev.Reason, id.String(), at)
	if err != nil {
		return nil, fmt.Errorf("revoke grant: %w", err)
	}
	grants, err := collectSQLiteGrants(rows)
	if err != nil || len(grants) == 0 {
		return nil, err
	}
	return grants[0], nil
}

// ListActive returns the member's grants active at now.
func (r *SQLiteGrantRepository) ListActive(ctx context.Context, memberID string, now time.Time) ([]*domain.Grant, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+sqliteGrantColumns+` FROM entitlement_grants
		WHERE member_id = ? AND revoked_at IS NULL AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at, id`,
		memberID, sharedPersistence.FormatSQLiteTime(now))
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return collectSQLiteGrants(rows)
}

// History returns every grant for the member, newest first.
func (r *SQLiteGrantRepository) History(ctx context.Context, memberID string) ([]*domain.Grant, error) {
	rows, err := sharedPersistence.SQLiteExecutor(ctx, r.db).QueryContext(ctx, `
		SELECT `+sqliteGrantColumns+` FROM entitlement_grants
		WHERE member_id = ?
		ORDER BY created_at DESC, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("grant history: %w", err)
	}
	return collectSQLiteGrants(rows)
}

func collectSQLiteGrants(rows *sql.Rows) ([]*domain.Grant, error) {
	defer rows.Close()

	grants := make([]*domain.Grant, 0)
	for rows.Next() {
		var (
			id, key, createdAt                  string
			g                                   domain.Grant
			scopeID, meta, expiresAt, revokedAt sql.NullString
			revokedBy, revokeReason             sql.NullString
		)
		if err := rows.Scan(&id, &g.MemberID, &key, &scopeID, &meta, &g.GrantedBy, &g.Reason, &g.Source,
			&expiresAt, &createdAt, &revokedAt, &revokedBy, &revokeReason); err != nil {
			return nil, err
		}

		var err error
		if g.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("grant id %q: %w", id, err)
		}
		g.Key = domain.Key(key)
		if scopeID.Valid {
			g.Scope = domain.ScopeFromColumn(&scopeID.String)
		}
		if meta.Valid {
			if g.ScopeMeta, err = unmarshalMeta([]byte(meta.String)); err != nil {
				return nil, err
			}
		}
		if g.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		if g.ExpiresAt, err = sharedPersistence.ParseNullSQLiteTime(expiresAt); err != nil {
			return nil, err
		}
		if g.RevokedAt, err = sharedPersistence.ParseNullSQLiteTime(revokedAt); err != nil {
			return nil, err
		}
		g.RevokedBy = revokedBy.String
		g.RevokeReason = revokeReason.String

		grants = append(grants, &g)
	}
	return grants, rows.Err()
}

func marshalMeta(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode scope meta: %w", err)
	}
	return string(data), nil
}

func unmarshalMeta(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode scope meta: %w", err)
	}
	return meta, nil
}

var _ domain.GrantRepository = (*SQLiteGrantRepository)(nil)

func nullScope(scope domain.Scope) sql.NullString {
	id, ok := scope.ResourceID()
	return sql.NullString{String: id, Valid: ok}
}
