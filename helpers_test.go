package gatehouse

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memoryIdentities is an in-memory IdentityProvider for tests.
type memoryIdentities struct {
	mu          sync.Mutex
	records     map[string]IdentityRecord
	failGets    bool
	failUpdates bool
}

func newMemoryIdentities() *memoryIdentities {
	return &memoryIdentities{records: map[string]IdentityRecord{}}
}

func (m *memoryIdentities) put(record IdentityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
}

func (m *memoryIdentities) GetIdentityByID(_ context.Context, id string) (IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failGets {
		return IdentityRecord{}, errors.New("identity store down")
	}

	record, ok := m.records[id]
	if !ok {
		return IdentityRecord{}, ErrIdentityNotFound
	}

	out := record
	out.RefreshTokens = append([]RefreshTokenRecord(nil), record.RefreshTokens...)
	out.Permissions = append([]string(nil), record.Permissions...)
	return out, nil
}

func (m *memoryIdentities) UpdateRefreshTokens(_ context.Context, id string, tokens []RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdates {
		return errors.New("identity store down")
	}

	record, ok := m.records[id]
	if !ok {
		return ErrIdentityNotFound
	}
	record.RefreshTokens = append([]RefreshTokenRecord(nil), tokens...)
	m.records[id] = record
	return nil
}

func (m *memoryIdentities) tokens(id string) []RefreshTokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefreshTokenRecord(nil), m.records[id].RefreshTokens...)
}

// recordingSender captures delivered codes.
type recordingSender struct {
	mu    sync.Mutex
	codes []string
	dests []string
	fail  bool
}

func (s *recordingSender) SendCode(_ context.Context, destination, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return errors.New("delivery down")
	}
	s.dests = append(s.dests, destination)
	s.codes = append(s.codes, code)
	return nil
}

func (s *recordingSender) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-0123456789")
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

type testEngine struct {
	engine     *Engine
	mr         *miniredis.Miniredis
	identities *memoryIdentities
	sender     *recordingSender
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	identities := newMemoryIdentities()
	sender := &recordingSender{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(identities).
		WithCodeSender(sender).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		engine:     engine,
		mr:         mr,
		identities: identities,
		sender:     sender,
	}
}

func testIdentity() IdentityRecord {
	return IdentityRecord{
		ID:          "user-1",
		Email:       "u@example.com",
		Role:        "member",
		Permissions: []string{"read"},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
