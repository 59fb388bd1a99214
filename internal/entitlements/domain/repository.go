package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// GrantRepository persists grants.
type GrantRepository interface {
	// InsertIfAbsent stores g unless a grant for the same member, key and
	// scope is active at g.CreatedAt. It returns the active grant and whether
	// g was the one inserted.
	InsertIfAbsent(ctx context.Context, g *Grant) (*Grant, bool, error)

	// RevokeActive revokes every active grant for the triple and returns them.
	RevokeActive(ctx context.Context, memberID string, key Key, scope Scope, rev Revocation) ([]*Grant, error)

	// RevokeByID revokes one grant if it is active. It returns nil when nothing changed.
	RevokeByID(ctx context.Context, id uuid.UUID, rev Revocation) (*Grant, error)

	// ListActive returns the member's grants active at now.
	ListActive(ctx context.Context, memberID string, now time.Time) ([]*Grant, error)

	// History returns every grant for the member, newest first.
	History(ctx context.Context, memberID string) ([]*Grant, error)
}
