package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedPersistence "github.com/felixgeelhaar/gatehouse/internal/shared/infrastructure/persistence"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgStage = `
	INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (event_id) DO NOTHING
	RETURNING id`

const pgDue = `
	SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key,
	       payload, metadata, created_at, published_at, next_retry_at, retry_count,
	       last_error, dead_lettered_at, dead_letter_reason
	FROM outbox
	WHERE published_at IS NULL
	  AND dead_lettered_at IS NULL
	  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
	ORDER BY created_at, id
	LIMIT $1`

// PostgresRepository stores the outbox in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgreSQL outbox repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// SaveBatch stages msgs in one round trip. It joins the caller's transaction
// so events commit or roll back with the grant or token change that raised them.
func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if sharedPersistence.InTx(ctx) {
		return stageBatch(ctx, sharedPersistence.Executor(ctx, r.pool), msgs)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return stageBatch(ctx, tx, msgs)
	})
}

func stageBatch(ctx context.Context, exec sharedPersistence.DBExecutor, msgs []*Message) error {
	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(pgStage, m.EventID, m.AggregateType, m.AggregateID, m.EventType,
			m.RoutingKey, m.Payload, m.Metadata, m.CreatedAt)
	}

	results := exec.SendBatch(ctx, batch)
	for _, m := range msgs {
		err := results.QueryRow().Scan(&m.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			// Already staged under this event id.
			continue
		}
		if err != nil {
			_ = results.Close()
			return fmt.Errorf("stage event %s: %w", m.EventID, err)
		}
	}
	return results.Close()
}

// GetUnpublished returns up to limit due messages, oldest first.
func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.pool.Query(ctx, pgDue, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPostgresMessage)
}

// MarkPublished stamps the message as delivered.
func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	return r.update(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = $1`, id)
}

// MarkFailed bumps the attempt count and schedules the next try.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	return r.update(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3 WHERE id = $1`,
		id, errMsg, nextRetryAt)
}

// MarkDead parks the message for manual inspection.
func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	return r.update(ctx,
		`UPDATE outbox SET dead_lettered_at = NOW(), dead_letter_reason = $2 WHERE id = $1`,
		id, reason)
}

// DeleteOld removes messages published before the cutoff.
func (r *PostgresRepository) DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < $1`, publishedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) update(ctx context.Context, sql string, id int64, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox message %d: %w", id, ErrMessageNotFound)
	}
	return nil
}

func scanPostgresMessage(row pgx.CollectableRow) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID, &m.EventID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.RoutingKey,
		&m.Payload, &m.Metadata, &m.CreatedAt, &m.PublishedAt, &m.NextRetryAt, &m.RetryCount,
		&m.LastError, &m.DeadLetteredAt, &m.DeadLetterReason,
	)
	return &m, err
}

var _ Repository = (*PostgresRepository)(nil)
