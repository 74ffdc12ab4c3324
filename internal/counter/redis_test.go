package counter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb), mr
}

func TestRedisStoreIncrementCounts(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		sample, err := store.Increment(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("increment %d failed: %v", want, err)
		}
		if sample.Count != want {
			t.Fatalf("count = %d, want %d", sample.Count, want)
		}
		if sample.ResetAt.Before(time.Now()) {
			t.Fatalf("reset time %v is in the past", sample.ResetAt)
		}
	}
}

func TestRedisStoreWindowExpiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Increment(ctx, "k", time.Minute); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}

	mr.FastForward(61 * time.Second)

	sample, err := store.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("increment after expiry failed: %v", err)
	}
	if sample.Count != 1 {
		t.Fatalf("count after window expiry = %d, want 1", sample.Count)
	}
}

func TestRedisStoreKeysAreIndependent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "a", time.Minute); err != nil {
		t.Fatalf("increment a failed: %v", err)
	}
	sample, err := store.Increment(ctx, "b", time.Minute)
	if err != nil {
		t.Fatalf("increment b failed: %v", err)
	}
	if sample.Count != 1 {
		t.Fatalf("b count = %d, want 1", sample.Count)
	}
}

func TestRedisStoreDecrementFloorsAtZero(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "k", time.Minute); err != nil {
		t.Fatalf("increment failed: %v", err)
	}

	count, err := store.Decrement(ctx, "k")
	if err != nil {
		t.Fatalf("decrement failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count after decrement = %d, want 0", count)
	}
	if mr.Exists("k") {
		t.Fatal("emptied counter should have been deleted")
	}

	// Decrementing an absent key stays at zero.
	count, err = store.Decrement(ctx, "k")
	if err != nil {
		t.Fatalf("decrement on missing key failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestRedisStoreReset(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := store.Increment(ctx, "k", time.Minute); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	if err := store.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	sample, err := store.Increment(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("increment after reset failed: %v", err)
	}
	if sample.Count != 1 {
		t.Fatalf("count after reset = %d, want 1", sample.Count)
	}
}

func TestRedisStoreCurrent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	count, err := store.Current(ctx, "missing")
	if err != nil {
		t.Fatalf("current on missing key failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.Increment(ctx, "k", time.Minute); err != nil {
			t.Fatalf("increment failed: %v", err)
		}
	}
	count, err = store.Current(ctx, "k")
	if err != nil {
		t.Fatalf("current failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	mr.Close()

	if _, err := store.Increment(ctx, "k", time.Minute); err == nil {
		t.Fatal("expected error from closed redis")
	}
	if err := store.Ping(ctx); err == nil {
		t.Fatal("expected ping error from closed redis")
	}
}
