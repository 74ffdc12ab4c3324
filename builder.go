package gatehouse

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/skelhorn/gatehouse/internal/blacklist"
	"github.com/skelhorn/gatehouse/internal/counter"
	"github.com/skelhorn/gatehouse/internal/csrf"
	"github.com/skelhorn/gatehouse/internal/otp"
	"github.com/skelhorn/gatehouse/internal/ratelimit"
	"github.com/skelhorn/gatehouse/internal/resilience"
	"github.com/skelhorn/gatehouse/jwt"
)

// Builder wires an [Engine] from its collaborators. Redis and an
// [IdentityProvider] are required; everything else has a sensible default.
type Builder struct {
	config     Config
	hasConfig  bool
	redis      redis.UniversalClient
	identities IdentityProvider
	sender     CodeSender
	auditSink  AuditSink
	logger     *slog.Logger
}

// New returns a Builder with default configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration wholesale. Zero fields are
// NOT backfilled; use [Config.Validate] to catch gaps early.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.hasConfig = true
	return b
}

// WithRedis sets the shared Redis client. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider sets the persistent identity store. Required.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

// WithCodeSender sets the one-time-code delivery channel. Without one,
// RequestCode fails with [ErrCodeDeliveryFailed].
func (b *Builder) WithCodeSender(s CodeSender) *Builder {
	b.sender = s
	return b
}

// WithAuditSink sets the audit event destination.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a discarding logger;
// the engine is a library and stays quiet unless asked.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithSecrets is a shortcut for setting the JWT secrets on the active
// config.
func (b *Builder) WithSecrets(accessSecret, refreshSecret []byte) *Builder {
	if !b.hasConfig {
		b.config = defaultConfig()
		b.hasConfig = true
	}
	b.config.JWT.AccessSecret = cloneBytes(accessSecret)
	b.config.JWT.RefreshSecret = cloneBytes(refreshSecret)
	return b
}

// Build validates the configuration, wires all stores and services, and
// starts the background goroutines (failover probe, fallback janitor,
// audit worker). The caller owns the returned Engine and must Close it.
func (b *Builder) Build() (*Engine, error) {
	if !b.hasConfig {
		b.config = defaultConfig()
	}
	if len(b.config.RateLimit.Policies) == 0 {
		b.config.RateLimit.Policies = DefaultPolicies()
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(b.config.Metrics)

	primary := counter.NewRedisStore(b.redis)
	fallback := counter.NewMemoryStore(b.config.Resilience.SweepInterval)

	// The transition callback needs the engine, which is built after the
	// supervisor; transitions only fire once the engine is serving.
	var engine *Engine
	supervisor := resilience.New(primary, fallback, resilience.Config{
		ProbeInterval: b.config.Resilience.ProbeInterval,
		OpTimeout:     b.config.Resilience.OpTimeout,
		Logger:        logger,
		OnTransition: func(state resilience.State) {
			if state == resilience.StateDegraded {
				metrics.Inc(MetricFallbackActivated)
				engine.emitAudit(context.Background(), AuditEvent{
					EventType: EventStoreDegraded,
				})
			} else {
				metrics.Inc(MetricFallbackRecovered)
				engine.emitAudit(context.Background(), AuditEvent{
					EventType: EventStoreRecovered,
					Success:   true,
				})
			}
		},
	})

	policies := make([]ratelimit.Policy, len(b.config.RateLimit.Policies))
	for i, p := range b.config.RateLimit.Policies {
		policies[i] = ratelimit.Policy{
			Name:        p.Name,
			Window:      p.Window,
			MaxRequests: p.MaxRequests,
			Message:     p.Message,
		}
	}

	engine = &Engine{
		config:     b.config,
		logger:     logger,
		identities: b.identities,
		sender:     b.sender,
		tokens:     tokens,
		limiter:    ratelimit.New(supervisor, b.config.RateLimit.KeyPrefix, policies),
		supervisor: supervisor,
		fallback:   fallback,
		blacklist:  blacklist.NewStore(b.redis, b.config.JWT.BlacklistPrefix),
		codes:      otp.NewStore(b.redis, b.config.OTP.KeyPrefix),
		csrf:       csrf.NewStore(b.redis, b.config.Csrf.KeyPrefix),
		audit:      newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:    metrics,
	}
	engine.janitorCancel = engine.startBackground()

	return engine, nil
}
