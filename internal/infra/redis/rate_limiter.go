package redis

import (
	"context"
	"fmt"
	"time"

	"render-studio/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed-window counter backed by Redis. It is handed to use
// cases explicitly rather than kept as shared package state.
type RateLimiter struct {
	client RedisClient
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client}
}

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}

func SubmissionKey(userID string) string {
	return fmt.Sprintf("rate_limit:%s:submit", userID)
}
