package core

import (
	"context"
	"time"
)

type (
	// Cache is an advisory key-value store. It is never a correctness
	// dependency: callers must treat failures as cache misses.
	Cache interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string, ttl time.Duration) error
		Delete(ctx context.Context, key string) error
	}

	// AttemptLimiter counts failed verification attempts per key and reports
	// when the allowed budget is exhausted.
	AttemptLimiter interface {
		// Hit records a failed attempt and returns the attempt count so far.
		Hit(ctx context.Context, key string) (int, error)
		Reset(ctx context.Context, key string) error
	}
)
