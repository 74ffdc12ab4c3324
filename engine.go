package gatehouse

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skelhorn/gatehouse/internal/blacklist"
	"github.com/skelhorn/gatehouse/internal/counter"
	"github.com/skelhorn/gatehouse/internal/csrf"
	"github.com/skelhorn/gatehouse/internal/otp"
	"github.com/skelhorn/gatehouse/internal/ratelimit"
	"github.com/skelhorn/gatehouse/internal/resilience"
	"github.com/skelhorn/gatehouse/jwt"
)

// Engine is the admission and identity facade. Build one with [Builder];
// all methods are safe for concurrent use.
type Engine struct {
	config     Config
	logger     *slog.Logger
	identities IdentityProvider
	sender     CodeSender

	tokens     *jwt.Manager
	limiter    *ratelimit.Limiter
	supervisor *resilience.Supervisor
	fallback   *counter.MemoryStore
	blacklist  *blacklist.Store
	codes      *otp.Store
	csrf       *csrf.Store
	audit      *auditDispatcher
	metrics    *Metrics

	janitorCancel context.CancelFunc
	closeOnce     sync.Once
}

func (e *Engine) startBackground() context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	e.fallback.StartJanitor(ctx)
	e.supervisor.Start()
	return cancel
}

// Close stops the background goroutines and drains the audit queue.
// Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.supervisor.Close()
		if e.janitorCancel != nil {
			e.janitorCancel()
		}
		e.fallback.Close()
		e.audit.Close()
	})
}

// Degraded reports whether admission currently runs on the in-process
// fallback store.
func (e *Engine) Degraded() bool {
	return e.supervisor.State() == resilience.StateDegraded
}

// Health pings the shared store and reports the supervisor's view.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Degraded: e.Degraded(),
	}

	start := time.Now()
	if err := e.supervisor.Ping(ctx); err != nil {
		status.RedisError = err.Error()
	}
	status.RedisLatency = time.Since(start)

	return status
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// MetricValue reads one counter directly. Intended for exporters.
func (e *Engine) MetricValue(id MetricID) uint64 {
	return e.metrics.Value(id)
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.IP = clientIPFromContext(ctx)
	event.Route = routeFromContext(ctx)
	e.audit.Emit(ctx, event)
}
