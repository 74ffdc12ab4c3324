// Package counter provides the fixed-window keyed counter contract shared
// by the Redis-backed store and the in-process fallback.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrRedisUnavailable wraps any Redis transport failure so callers can
// distinguish infrastructure errors from counter semantics.
var ErrRedisUnavailable = errors.New("counter redis unavailable")

// Sample is the counter state observed by one increment.
type Sample struct {
	Count   int64
	ResetAt time.Time
}

// Store is a fixed-window counter keyed by string. Increment is atomic per
// key; the count resets to 1 when a window elapses. Implementations must be
// safe for concurrent use and must not hold a global lock across keys.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Sample, error)
	Decrement(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
