// Package csrf stores single-use request tokens. A token is valid for
// exactly one consumption; the DEL reply count is the atomic
// exists-and-remove check.
package csrf

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps csrf store transport failures.
var ErrRedisUnavailable = errors.New("csrf redis unavailable")

// Store keeps issued tokens keyed by identity and token value.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a csrf [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gcs"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(identityID, token string) string {
	return s.prefix + ":" + identityID + ":" + token
}

// Put records a freshly issued token for the identity.
func (s *Store) Put(ctx context.Context, identityID, token string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(identityID, token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Consume removes the token and reports whether it existed. Two concurrent
// consumers race on the DEL; exactly one sees true.
func (s *Store) Consume(ctx context.Context, identityID, token string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(identityID, token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}
