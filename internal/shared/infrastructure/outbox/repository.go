package outbox

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned when a Mark call matches no row.
var ErrMessageNotFound = errors.New("outbox message not found")

// Repository defines outbox persistence.
type Repository interface {
	// SaveBatch stores messages in the transaction carried by ctx, or in a new one.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns messages due for publishing, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	// MarkPublished marks a message as published.
	MarkPublished(ctx context.Context, id int64) error

	// MarkFailed records a publish failure and schedules the next attempt.
	MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error

	// MarkDead dead-letters a message.
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld removes messages published before the cutoff.
	DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error)
}
