package counter

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryStore is the per-process fallback counter. The window boundary is
// authoritative: a stale entry is reset on the next increment regardless of
// whether the janitor has swept it yet. The sweep only bounds memory.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	sweepEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStore creates an in-process counter store. sweepEvery bounds the
// janitor cadence; values above a minute are clamped so stale entries never
// outlive their window by more than that.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	if sweepEvery <= 0 || sweepEvery > time.Minute {
		sweepEvery = time.Minute
	}
	return &MemoryStore{
		entries:    make(map[string]*memoryEntry),
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
	}
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (Sample, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = &memoryEntry{count: 1, resetAt: now.Add(window)}
		s.entries[key] = entry
		return Sample{Count: 1, ResetAt: entry.resetAt}, nil
	}

	entry.count++
	return Sample{Count: entry.count, ResetAt: entry.resetAt}, nil
}

func (s *MemoryStore) Decrement(_ context.Context, key string) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		delete(s.entries, key)
		return 0, nil
	}

	entry.count--
	if entry.count <= 0 {
		delete(s.entries, key)
		return 0, nil
	}
	return entry.count, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Ping always succeeds: the process owning the map is by definition alive.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len reports the number of live entries. Intended for tests and janitor
// verification.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *MemoryStore) sweep() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if !now.Before(entry.resetAt) {
			delete(s.entries, key)
		}
	}
}

// StartJanitor launches the periodic sweep goroutine. Stop with Close or by
// cancelling ctx.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-t.C:
				s.sweep()
			}
		}
	}()
}

// Close stops the janitor. Idempotent.
func (s *MemoryStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
