package gatehouse

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestBuildRequiresRedis(t *testing.T) {
	_, err := New().
		WithConfig(testConfig()).
		WithIdentityProvider(newMemoryIdentities()).
		Build()
	if err == nil {
		t.Fatal("expected error without redis client")
	}
}

func TestBuildRequiresIdentityProvider(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, err = New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		Build()
	if err == nil {
		t.Fatal("expected error without identity provider")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig()
	cfg.JWT.RefreshSecret = cfg.JWT.AccessSecret

	_, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(newMemoryIdentities()).
		Build()
	if err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuildWithSecretsShortcut(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := New().
		WithSecrets([]byte("access-secret-for-tests-0123456789"), []byte("refresh-secret-for-tests-0123456789")).
		WithRedis(rdb).
		WithIdentityProvider(newMemoryIdentities()).
		Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()

	// Default policy table is active.
	if _, err := engine.Admit(context.Background(), "general", "k"); err != nil {
		t.Fatalf("admit failed: %v", err)
	}
}

func TestEngineHealth(t *testing.T) {
	te := newTestEngine(t, nil)

	status := te.engine.Health(context.Background())
	if status.Degraded || status.RedisError != "" {
		t.Fatalf("healthy engine status = %+v", status)
	}

	te.mr.Close()

	status = te.engine.Health(context.Background())
	if status.RedisError == "" {
		t.Fatal("health should surface the redis error")
	}
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	te := newTestEngine(t, nil)

	te.engine.Close()
	te.engine.Close()
}
