package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Limit{Max: 2, Window: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(61 * time.Second)
	ok, err = l.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Limit{Max: 5, Window: time.Second})
	l.now = func() time.Time { return now }

	_, err := l.Allow(context.Background(), "a")
	require.NoError(t, err)
	now = now.Add(2 * time.Second)
	l.Sweep()
	assert.Empty(t, l.buckets)
}

func TestMemoryLimiter_AllowDropsIdleKeys(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Limit{Max: 5, Window: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := l.Allow(ctx, fmt.Sprintf("10.0.0.%d", i))
		require.NoError(t, err)
	}
	assert.Len(t, l.buckets, 100)

	now = now.Add(2 * time.Minute)
	ok, err := l.Allow(ctx, "10.0.1.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, l.buckets, 1, "one-shot clients from past windows are gone")
}

func TestMemoryLimiter_RequiresKey(t *testing.T) {
	_, err := NewMemoryLimiter(Limit{Max: 1, Window: time.Second}).Allow(context.Background(), "")
	assert.ErrorIs(t, err, ErrKeyRequired)
}
