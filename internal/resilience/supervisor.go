// Package resilience supervises the shared counter store and fails over to
// the in-process fallback when Redis is unreachable.
package resilience

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skelhorn/gatehouse/internal/counter"
)

// State is the supervisor's view of the shared store.
type State int32

const (
	// StateHealthy routes counter operations to the shared store.
	StateHealthy State = iota
	// StateDegraded routes counter operations to the in-process fallback.
	StateDegraded
)

// Supervisor wraps a primary and a fallback counter store. Any primary
// operation error flips the supervisor to degraded and retries the same
// operation against the fallback before returning, so the triggering
// request is never lost. Recovery happens off the hot path: a background
// probe pings the primary and flips back on success. Failover is
// per-process only; no cross-process coordination is attempted.
type Supervisor struct {
	primary  counter.Store
	fallback counter.Store

	state         atomic.Int32
	logger        *slog.Logger
	onTransition  func(State)
	probeInterval time.Duration
	opTimeout     time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Config tunes the supervisor.
type Config struct {
	ProbeInterval time.Duration
	OpTimeout     time.Duration
	Logger        *slog.Logger
	// OnTransition is invoked once per state change, outside any lock.
	OnTransition func(State)
}

// New creates a Supervisor over the given stores. Call Start to enable the
// recovery probe and Close to stop it.
func New(primary, fallback counter.Store, cfg Config) *Supervisor {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 15 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Supervisor{
		primary:       primary,
		fallback:      fallback,
		logger:        cfg.Logger,
		onTransition:  cfg.OnTransition,
		probeInterval: cfg.ProbeInterval,
		opTimeout:     cfg.OpTimeout,
		done:          make(chan struct{}),
	}
}

// State returns the current supervisor state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Increment routes to the active store. On a primary failure the same
// increment is retried against the fallback within this call.
func (s *Supervisor) Increment(ctx context.Context, key string, window time.Duration) (counter.Sample, error) {
	if s.State() == StateDegraded {
		return s.fallback.Increment(ctx, key, window)
	}

	sample, err := s.withTimeout(ctx, func(opCtx context.Context) (counter.Sample, error) {
		return s.primary.Increment(opCtx, key, window)
	})
	if err == nil {
		return sample, nil
	}

	s.markDegraded(err)
	return s.fallback.Increment(ctx, key, window)
}

// Decrement routes to the active store with the same failover contract.
func (s *Supervisor) Decrement(ctx context.Context, key string) (int64, error) {
	if s.State() == StateDegraded {
		return s.fallback.Decrement(ctx, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	count, err := s.primary.Decrement(opCtx, key)
	cancel()
	if err == nil {
		return count, nil
	}

	s.markDegraded(err)
	return s.fallback.Decrement(ctx, key)
}

// Reset routes to the active store with the same failover contract.
func (s *Supervisor) Reset(ctx context.Context, key string) error {
	if s.State() == StateDegraded {
		return s.fallback.Reset(ctx, key)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	err := s.primary.Reset(opCtx, key)
	cancel()
	if err == nil {
		return nil
	}

	s.markDegraded(err)
	return s.fallback.Reset(ctx, key)
}

// Ping probes the primary store directly, regardless of state.
func (s *Supervisor) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.primary.Ping(opCtx)
}

func (s *Supervisor) withTimeout(
	ctx context.Context,
	op func(context.Context) (counter.Sample, error),
) (counter.Sample, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return op(opCtx)
}

// markDegraded flips to the fallback store. The CAS guarantees the
// transition is logged once, not per failing request.
func (s *Supervisor) markDegraded(cause error) {
	if !s.state.CompareAndSwap(int32(StateHealthy), int32(StateDegraded)) {
		return
	}

	s.logger.Warn("shared counter store unavailable, switching to in-process fallback",
		"error", cause)
	if s.onTransition != nil {
		s.onTransition(StateDegraded)
	}
}

func (s *Supervisor) markHealthy() {
	if !s.state.CompareAndSwap(int32(StateDegraded), int32(StateHealthy)) {
		return
	}

	s.logger.Info("shared counter store recovered, resuming")
	if s.onTransition != nil {
		s.onTransition(StateHealthy)
	}
}

// Start pings the primary once, so a store that is already down at boot
// degrades immediately instead of on the first request, then launches the
// background recovery probe.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	err := s.primary.Ping(ctx)
	cancel()
	if err != nil {
		s.markDegraded(err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		t := time.NewTicker(s.probeInterval)
		defer t.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-t.C:
				s.probe()
			}
		}
	}()
}

func (s *Supervisor) probe() {
	if s.State() != StateDegraded {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	err := s.primary.Ping(ctx)
	cancel()
	if err != nil {
		return
	}

	s.markHealthy()
}

// Close stops the recovery probe. Idempotent.
func (s *Supervisor) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}
