package otp

import (
	"context"
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewStore(rdb, "gotp"), mr
}

func saveTestRecord(t *testing.T, store *Store, subject, code string, ttl time.Duration) [32]byte {
	t.Helper()

	hash := sha256.Sum256([]byte(code))
	record := &Record{
		Subject:   subject,
		CodeHash:  hash,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := store.Save(context.Background(), record, ttl); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	return hash
}

func TestConsumeCorrectCodeIsSingleUse(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := saveTestRecord(t, store, "user-1", "482913", 5*time.Minute)

	record, err := store.Consume(ctx, "user-1", hash, 3)
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if record.Subject != "user-1" {
		t.Fatalf("subject = %q, want user-1", record.Subject)
	}

	// The record is gone; the same code cannot be replayed.
	if _, err := store.Consume(ctx, "user-1", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("second consume error = %v, want ErrCodeNotFound", err)
	}
}

func TestConsumeWrongCodeBurnsAttempts(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	saveTestRecord(t, store, "user-1", "482913", 5*time.Minute)
	wrong := sha256.Sum256([]byte("000000"))

	for i := 0; i < 2; i++ {
		if _, err := store.Consume(ctx, "user-1", wrong, 3); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d error = %v, want ErrCodeMismatch", i+1, err)
		}
	}

	// Third failure crosses the budget.
	if _, err := store.Consume(ctx, "user-1", wrong, 3); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("error = %v, want ErrCodeAttemptsExceeded", err)
	}
}

func TestConsumeCorrectCodeAfterExhaustionStillFails(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := saveTestRecord(t, store, "user-1", "482913", 5*time.Minute)
	wrong := sha256.Sum256([]byte("000000"))

	for i := 0; i < 3; i++ {
		_, _ = store.Consume(ctx, "user-1", wrong, 3)
	}

	// Exhaustion is a tombstone, not a deletion: the correct code must
	// report exhausted rather than not-found or success.
	if _, err := store.Consume(ctx, "user-1", hash, 3); !errors.Is(err, ErrCodeAttemptsExceeded) {
		t.Fatalf("error = %v, want ErrCodeAttemptsExceeded", err)
	}
}

func TestConsumeMismatchPreservesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	saveTestRecord(t, store, "user-1", "482913", 5*time.Minute)
	wrong := sha256.Sum256([]byte("000000"))

	_, _ = store.Consume(ctx, "user-1", wrong, 3)

	ttl := mr.TTL("gotp:user-1")
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Fatalf("ttl after mismatch = %v, want (0, 5m]", ttl)
	}
}

func TestConsumeExpiredRecord(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	hash := saveTestRecord(t, store, "user-1", "482913", time.Minute)
	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, "user-1", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("error = %v, want ErrCodeNotFound", err)
	}
}

func TestConsumeUnknownSubject(t *testing.T) {
	store, _ := newTestStore(t)

	hash := sha256.Sum256([]byte("482913"))
	if _, err := store.Consume(context.Background(), "nobody", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("error = %v, want ErrCodeNotFound", err)
	}
}

func TestSaveReplacesLiveCode(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	oldHash := saveTestRecord(t, store, "user-1", "111111", 5*time.Minute)
	newHash := saveTestRecord(t, store, "user-1", "222222", 5*time.Minute)

	if _, err := store.Consume(ctx, "user-1", oldHash, 3); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("old code error = %v, want ErrCodeMismatch", err)
	}
	if _, err := store.Consume(ctx, "user-1", newHash, 3); err != nil {
		t.Fatalf("new code consume failed: %v", err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	hash := saveTestRecord(t, store, "user-1", "482913", 5*time.Minute)
	if err := store.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.Consume(ctx, "user-1", hash, 3); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("error = %v, want ErrCodeNotFound", err)
	}
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	original := &Record{
		Subject:   "user-with-a-long-identifier@example.com",
		CodeHash:  sha256.Sum256([]byte("482913")),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
		Attempts:  2,
	}

	data, err := encodeRecord(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Subject != original.Subject ||
		decoded.CodeHash != original.CodeHash ||
		decoded.ExpiresAt != original.ExpiresAt ||
		decoded.Attempts != original.Attempts {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, original)
	}
}
