package counter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrementLua floors the counter at zero and removes the key once empty,
// so a forgiven first hit does not leave a counter pinned at 0 with a TTL.
var decrementLua = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count > 1 then
  return redis.call("DECR", KEYS[1])
elseif count == 1 then
  redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is the shared, authoritative fixed-window counter.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore creates a counter store backed by the given Redis client.
func NewRedisStore(redisClient redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: redisClient}
}

// Increment bumps the key's counter and returns the observed count with the
// window reset time. The first hit in a window sets the key's expiry; if two
// requests race to be first, both set it — idempotent and harmless.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Sample, error) {
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return Sample{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return Sample{Count: count, ResetAt: now.Add(window)}, nil
	}

	pttl, err := s.redis.PTTL(ctx, key).Result()
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if pttl <= 0 {
		// Counter existed without a TTL (lost expiry after a racing first
		// hit failed mid-call). Re-arm the window.
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return Sample{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		pttl = window
	}

	return Sample{Count: count, ResetAt: now.Add(pttl)}, nil
}

// Decrement reverses one admission, flooring at zero.
func (s *RedisStore) Decrement(ctx context.Context, key string) (int64, error) {
	result, err := decrementLua.Run(ctx, s.redis, []string{key}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	count, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected decrement script result", ErrRedisUnavailable)
	}
	return count, nil
}

// Reset clears the key's window entirely.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping reports shared-store liveness.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Current returns the live count for a key without mutating it. Missing
// keys report zero.
func (s *RedisStore) Current(ctx context.Context, key string) (int64, error) {
	count, err := s.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}
