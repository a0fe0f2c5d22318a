package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter bounds request rates per caller key.
type RateLimiter interface {
	// Allow reports whether another request under key fits in the current
	// window. Fails open on backend errors.
	Allow(ctx context.Context, key string) (bool, error)
}

// redisRateLimiter is a fixed-window counter backed by Redis. With no Redis
// client configured, or a zero limit, every request is allowed.
type redisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRedisRateLimiter creates a fixed-window rate limiter.
// A nil client disables limiting entirely.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) RateLimiter {
	return &redisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger.Named("rate-limiter"),
	}
}

// Allow increments the window counter for key and checks it against the limit.
func (l *redisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil || l.limit <= 0 {
		return true, nil
	}

	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open: a Redis outage should not block webhook deliveries.
		l.logger.Warn("Rate limit check failed", zap.Error(err))
		return true, err
	}

	return incr.Val() <= int64(l.limit), nil
}

// Ensure redisRateLimiter implements RateLimiter at compile time.
var _ RateLimiter = (*redisRateLimiter)(nil)
