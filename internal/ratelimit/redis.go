package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window limiter shared across API instances. INCR
// is atomic on the server, so check-then-consume cannot race.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(redisURL string) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisLimiter{client: client, prefix: "rl:"}, nil
}

// NewRedisLimiterWithClient creates a limiter from an existing client.
func NewRedisLimiterWithClient(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: "rl:"}
}

// Check consumes one slot for identity in the bucket's current window.
func (l *RedisLimiter) Check(ctx context.Context, bucket Bucket, identity string) (Result, error) {
	now := time.Now()
	start := windowStart(now, bucket.Window)
	key := fmt.Sprintf("%s%s:%s:%d", l.prefix, bucket.Name, identity, start.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, bucket.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	return resultFor(bucket, int(incr.Val()), start, now), nil
}

// Close closes the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
