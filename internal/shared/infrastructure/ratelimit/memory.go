package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a single-node sliding window used when Redis is not configured.
type MemoryLimiter struct {
	limit Limit
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(limit Limit) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		now:     time.Now,
		buckets: make(map[string][]time.Time),
	}
}

// Allow records the event and reports whether it is within the limit.
// Denied events are not recorded.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	now := l.now()
	windowStart := now.Add(-l.limit.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Idle keys are dropped at most once per window.
	if now.Sub(l.lastSweep) >= l.limit.Window {
		l.sweepLocked(windowStart)
		l.lastSweep = now
	}

	ts := l.buckets[key]
	i := 0
	for i < len(ts) && !ts[i].After(windowStart) {
		i++
	}
	ts = ts[i:]

	if len(ts) >= l.limit.Max {
		if len(ts) == 0 {
			delete(l.buckets, key)
		} else {
			l.buckets[key] = ts
		}
		return false, nil
	}
	l.buckets[key] = append(ts, now)
	return true, nil
}

// Sweep drops buckets whose events have all left the window. Allow calls it
// on its own once per window.
func (l *MemoryLimiter) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now.Add(-l.limit.Window))
	l.lastSweep = now
}

func (l *MemoryLimiter) sweepLocked(windowStart time.Time) {
	for key, ts := range l.buckets {
		if len(ts) == 0 || !ts[len(ts)-1].After(windowStart) {
			delete(l.buckets, key)
		}
	}
}
