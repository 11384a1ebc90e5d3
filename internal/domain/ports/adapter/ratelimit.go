package adapter

import (
	"context"
	"time"
)

// RateLimiter is passed explicitly into use cases instead of living in a
// package-level map, so callers and tests control its scope.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
