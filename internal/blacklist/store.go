// Package blacklist is the access-token revocation list. Entries self-expire
// with the token's remaining lifetime; absence means "not revoked".
package blacklist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps blacklist store transport failures. Callers
// decide whether that reads as not-revoked (best effort) or as a hard
// failure (strict).
var ErrRedisUnavailable = errors.New("blacklist redis unavailable")

// Store keys revocation entries by token digest, never by the raw token.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a blacklist [Store] backed by the given Redis client.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gbl"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(token string) string {
	digest := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(digest[:])
}

// Revoke records the token for its remaining lifetime. Tokens past expiry
// need no entry; the signature check already rejects them.
func (s *Store) Revoke(ctx context.Context, token string, remaining time.Duration) error {
	if remaining <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, s.key(token), "revoked", remaining).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token has a live revocation entry. A store
// error is returned as such, never conflated with "revoked".
func (s *Store) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
