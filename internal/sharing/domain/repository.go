package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenRepository persists share tokens and their redemption log.
type TokenRepository interface {
	Create(ctx context.Context, t *ShareToken) error

	// LockByHash loads the token for hash and holds a row lock on it until the
	// surrounding transaction ends. It returns ErrTokenNotFound when no row matches.
	LockByHash(ctx context.Context, hash string) (*ShareToken, error)

	FindByID(ctx context.Context, id uuid.UUID) (*ShareToken, error)

	// Revoke sets the revocation fields unless already set and reports whether it did.
	Revoke(ctx context.Context, id uuid.UUID, by string, at time.Time) (bool, error)

	CountRedemptions(ctx context.Context, tokenID uuid.UUID, action string) (int, error)
	AppendRedemption(ctx context.Context, r *Redemption) error

	// Usage returns redemption counts per action.
	Usage(ctx context.Context, tokenID uuid.UUID) (map[string]int, error)
}
