package gatehouse

import (
	"context"
	"fmt"

	"github.com/skelhorn/gatehouse/internal"
)

// IssueCsrfToken mints a single-use CSRF token bound to the identity. The
// token is opaque random material; nothing about the identity can be
// derived from it.
func (e *Engine) IssueCsrfToken(ctx context.Context, identityID string) (string, error) {
	token, err := internal.NewOpaqueToken(e.config.Csrf.TokenBytes)
	if err != nil {
		return "", err
	}

	if err := e.csrf.Put(ctx, identityID, token, e.config.Csrf.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.Inc(MetricCsrfIssued)
	return token, nil
}

// ConsumeCsrfToken validates and burns the token in one step. A second
// consumption of the same token fails with [ErrCsrfInvalid]. Store
// failures follow the configured policy — fail closed by default, since a
// forged state change is worse than a retried one.
func (e *Engine) ConsumeCsrfToken(ctx context.Context, identityID, token string) error {
	if token == "" {
		e.rejectCsrf(ctx, identityID, "missing")
		return ErrCsrfMissing
	}

	ok, err := e.csrf.Consume(ctx, identityID, token)
	if err != nil {
		if e.config.Csrf.OnStoreFailure == CsrfFailOpen {
			e.logger.Warn("csrf store unreachable, admitting per fail-open policy", "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		e.rejectCsrf(ctx, identityID, "unknown_or_consumed")
		return ErrCsrfInvalid
	}

	e.metrics.Inc(MetricCsrfConsumed)
	return nil
}

func (e *Engine) rejectCsrf(ctx context.Context, identityID, reason string) {
	e.metrics.Inc(MetricCsrfRejected)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventCsrfRejected,
		Subject:   identityID,
		Metadata:  map[string]string{"reason": reason},
	})
}
