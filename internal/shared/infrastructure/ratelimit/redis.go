package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding window shared by every instance, stored as one
// ZSET per key scored by event time in milliseconds.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  Limit
	now    func() time.Time
}

// NewRedisLimiter creates a limiter. Keys are stored as <prefix>:<key>.
func NewRedisLimiter(client *redis.Client, prefix string, limit Limit) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, now: time.Now}
}

// Allow records the event and reports whether it is within the limit.
// A denied event is removed again so it does not extend the window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	nowMs := l.now().UnixMilli()
	windowStart := nowMs - l.limit.Window.Milliseconds()
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nowMs), Member: member})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.limit.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}

	if count.Val() > int64(l.limit.Max) {
		if err := l.client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return false, fmt.Errorf("rate limit: %w", err)
		}
		return false, nil
	}
	return true, nil
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
