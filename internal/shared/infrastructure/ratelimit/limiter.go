// Package ratelimit provides sliding-window limiters keyed by client.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrKeyRequired is returned when a caller passes an empty key.
var ErrKeyRequired = errors.New("rate limit key required")

// Limit allows Max events per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Limiter decides whether one more event for key fits in the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
