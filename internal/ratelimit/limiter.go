// Package ratelimit computes admission decisions over a fixed-window
// counter store, one named policy at a time.
package ratelimit

import (
	"context"
	"time"

	"github.com/skelhorn/gatehouse/internal/counter"
)

// Policy is one immutable admission policy, enumerated at startup.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int64
	Message     string
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// CounterStore is the subset of counter operations the limiter needs. The
// resilience supervisor satisfies it.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (counter.Sample, error)
	Decrement(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// Limiter evaluates admission per named policy. Counter keys embed the
// policy name so two policies can never collide on the same subject.
type Limiter struct {
	store    CounterStore
	prefix   string
	policies map[string]Policy
}

// New creates a Limiter over the given store and policy table.
func New(store CounterStore, prefix string, policies []Policy) *Limiter {
	if prefix == "" {
		prefix = "grl"
	}

	table := make(map[string]Policy, len(policies))
	for _, p := range policies {
		table[p.Name] = p
	}

	return &Limiter{
		store:    store,
		prefix:   prefix,
		policies: table,
	}
}

// Policy looks up a registered policy by name.
func (l *Limiter) Policy(name string) (Policy, bool) {
	p, ok := l.policies[name]
	return p, ok
}

func (l *Limiter) key(p Policy, key string) string {
	return l.prefix + ":" + p.Name + ":" + key
}

// Admit increments the subject's counter for the policy window and decides.
// Counter failures fail open: admission never becomes the outage.
func (l *Limiter) Admit(ctx context.Context, p Policy, key string) Decision {
	sample, err := l.store.Increment(ctx, l.key(p, key), p.Window)
	if err != nil {
		return Decision{
			Allowed:   true,
			Limit:     p.MaxRequests,
			Remaining: p.MaxRequests,
			ResetAt:   time.Now().Add(p.Window),
		}
	}

	remaining := p.MaxRequests - sample.Count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   sample.Count <= p.MaxRequests,
		Limit:     p.MaxRequests,
		Remaining: remaining,
		ResetAt:   sample.ResetAt,
	}
	if !d.Allowed {
		d.RetryAfter = time.Until(sample.ResetAt)
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}

	return d
}

// Forgive reverses one admission for success-exempt policies (a successful
// login should not consume auth budget).
func (l *Limiter) Forgive(ctx context.Context, p Policy, key string) error {
	_, err := l.store.Decrement(ctx, l.key(p, key))
	return err
}

// Reset clears the subject's window for the policy.
func (l *Limiter) Reset(ctx context.Context, p Policy, key string) error {
	return l.store.Reset(ctx, l.key(p, key))
}
