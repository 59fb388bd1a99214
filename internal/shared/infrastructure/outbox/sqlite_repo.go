package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite outbox repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveBatch stores messages, joining the caller's transaction when present.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	if info, ok := sharedPersistence.SQLiteTxInfoFromContext(ctx); ok {
		return r.insertAll(ctx, info.Tx, msgs)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertAll(ctx, tx, msgs); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) insertAll(ctx context.Context, q sharedPersistence.SQLiteQuerier, msgs []*Message) error {
	for _, msg := range msgs {
		result, err := q.ExecContext(ctx, `
			INSERT INTO outbox (
				event_id, aggregate_type, aggregate_id, event_type, routing_key,
				payload, metadata, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.EventID.String(),
			msg.AggregateType,
			msg.AggregateID.String(),
			msg.EventType,
			msg.RoutingKey,
			string(msg.Payload),
			sql.NullString{String: string(msg.Metadata), Valid: len(msg.Metadata) > 0},
			sharedPersistence.FormatSQLiteTime(msg.CreatedAt),
		)
		if err != nil {
			return err
		}
		if msg.ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished returns messages due for publishing.
func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
		       payload, metadata, created_at, published_at, next_retry_at, retry_count,
		       last_error, dead_lettered_at, dead_letter_reason
		FROM outbox
		WHERE published_at IS NULL
		  AND dead_lettered_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY created_at, id
		LIMIT ?`,
		sharedPersistence.FormatSQLiteTime(time.Now()), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkPublished stamps the message as delivered.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	return r.update(ctx, id, `UPDATE outbox SET published_at = ? WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(time.Now()))
}

// MarkFailed bumps the attempt count and schedules the next try.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.update(ctx, id,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`,
		errMsg, sharedPersistence.FormatSQLiteTime(nextRetryAt))
}

// MarkDead parks the message for manual inspection.
func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	return r.update(ctx, id,
		`UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`,
		sharedPersistence.FormatSQLiteTime(time.Now()), reason)
}

// update runs a statement whose final placeholder is the message id.
func (r *SQLiteRepository) update(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox message %d: %w", id, ErrMessageNotFound)
	}
	return nil
}

// DeleteOld removes messages published before the cutoff.
func (r *SQLiteRepository) DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox
		WHERE published_at IS NOT NULL AND published_at < ?`,
		sharedPersistence.FormatSQLiteTime(publishedBefore))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanSQLiteMessage(rows *sql.Rows) (*Message, error) {
	var (
		msg                              Message
		eventID, aggregateID, payload    string
		createdAt                        string
		metadata, lastError, deadReason  sql.NullString
		publishedAt, nextRetryAt, deadAt sql.NullString
	)
	if err := rows.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &createdAt, &publishedAt, &nextRetryAt, &msg.RetryCount,
		&lastError, &deadAt, &deadReason,
	); err != nil {
		return nil, err
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, fmt.Errorf("outbox %d: event id: %w", msg.ID, err)
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, fmt.Errorf("outbox %d: aggregate id: %w", msg.ID, err)
	}
	if msg.CreatedAt, err = sharedPersistence.ParseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("outbox %d: created_at: %w", msg.ID, err)
	}
	if msg.PublishedAt, err = sharedPersistence.ParseNullSQLiteTime(publishedAt); err != nil {
		return nil, err
	}
	if msg.NextRetryAt, err = sharedPersistence.ParseNullSQLiteTime(nextRetryAt); err != nil {
		return nil, err
	}
	if msg.DeadLetteredAt, err = sharedPersistence.ParseNullSQLiteTime(deadAt); err != nil {
		return nil, err
	}

	msg.Payload = json.RawMessage(payload)
	if metadata.Valid {
		msg.Metadata = json.RawMessage(metadata.String)
	}
	if lastError.Valid {
		msg.LastError = &lastError.String
	}
	if deadReason.Valid {
		msg.DeadLetterReason = &deadReason.String
	}
	return &msg, nil
}

var _ Repository = (*SQLiteRepository)(nil)
