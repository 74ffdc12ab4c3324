package gatehouse

import (
	"context"
	"fmt"
	"time"
)

// Admit runs one fixed-window admission check for the named policy and
// subject key. The only error is [ErrUnknownPolicy]; store trouble never
// surfaces here — the decision fails open and the degradation is visible
// through [Engine.Degraded] and the audit stream instead.
func (e *Engine) Admit(ctx context.Context, policyName, key string) (Decision, error) {
	policy, ok := e.limiter.Policy(policyName)
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}

	start := time.Now()
	internal := e.limiter.Admit(ctx, policy, key)
	e.metrics.Observe(MetricAdmitLatency, time.Since(start))

	decision := Decision{
		Allowed:    internal.Allowed,
		Policy:     policy.Name,
		Limit:      internal.Limit,
		Remaining:  internal.Remaining,
		ResetAt:    internal.ResetAt,
		RetryAfter: internal.RetryAfter,
	}

	if decision.Allowed {
		e.metrics.Inc(MetricAdmitAllowed)
		return decision, nil
	}

	decision.Message = policy.Message
	e.metrics.Inc(MetricAdmitRejected)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventAdmissionRejected,
		Policy:    policy.Name,
		Subject:   key,
		Metadata: map[string]string{
			"retry_after": decision.RetryAfter.String(),
		},
	})

	return decision, nil
}

// Forgive reverses one admission charge for the policy and key. For
// success-exempt flows: a correct login should hand back the auth-budget
// slot its attempt consumed.
func (e *Engine) Forgive(ctx context.Context, policyName, key string) error {
	policy, ok := e.limiter.Policy(policyName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}

	if err := e.limiter.Forgive(ctx, policy, key); err != nil {
		return err
	}
	e.metrics.Inc(MetricAdmitForgiven)
	return nil
}

// ResetLimit clears the subject's current window for the policy.
func (e *Engine) ResetLimit(ctx context.Context, policyName, key string) error {
	policy, ok := e.limiter.Policy(policyName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, policyName)
	}
	return e.limiter.Reset(ctx, policy, key)
}
