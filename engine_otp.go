package gatehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skelhorn/gatehouse/internal"
	"github.com/skelhorn/gatehouse/internal/otp"
)

// RequestCode generates a fresh one-time code for the subject, stores its
// digest, and hands the plaintext to the delivery collaborator. A repeat
// request replaces any live code. Returns the code's TTL so callers can
// surface "valid for N minutes" to the user.
func (e *Engine) RequestCode(ctx context.Context, subject, destination string) (time.Duration, error) {
	code, err := internal.NewNumericCode(e.config.OTP.Digits)
	if err != nil {
		return 0, err
	}

	record := &otp.Record{
		Subject:   subject,
		CodeHash:  internal.HashSecret(code),
		ExpiresAt: time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.codes.Save(ctx, record, e.config.OTP.TTL); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if e.sender == nil {
		// No record may outlive a code the user can never receive.
		_ = e.codes.Delete(ctx, subject)
		return 0, ErrCodeDeliveryFailed
	}
	if err := e.sender.SendCode(ctx, destination, code); err != nil {
		_ = e.codes.Delete(ctx, subject)
		return 0, fmt.Errorf("%w: %v", ErrCodeDeliveryFailed, err)
	}

	e.metrics.Inc(MetricCodeRequested)
	e.emitAudit(ctx, AuditEvent{
		EventType: EventCodeRequested,
		Subject:   subject,
		Success:   true,
	})

	return e.config.OTP.TTL, nil
}

// VerifyCode consumes the subject's live code. Success is single-use; the
// record is gone afterwards and a second submission of the same code fails
// with [ErrCodeExpired]. Wrong submissions burn attempts, and once the
// budget is spent even the correct code fails with [ErrCodeExhausted]
// until a new code is requested.
func (e *Engine) VerifyCode(ctx context.Context, subject, code string) error {
	_, err := e.codes.Consume(ctx, subject, internal.HashSecret(code), e.config.OTP.MaxAttempts)
	if err == nil {
		e.metrics.Inc(MetricCodeVerified)
		return nil
	}

	switch {
	case errors.Is(err, otp.ErrCodeNotFound), errors.Is(err, otp.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, otp.ErrCodeAttemptsExceeded):
		e.metrics.Inc(MetricCodeExhausted)
		e.emitAudit(ctx, AuditEvent{
			EventType: EventCodeExhausted,
			Subject:   subject,
		})
		return ErrCodeExhausted
	case errors.Is(err, otp.ErrCodeMismatch):
		e.metrics.Inc(MetricCodeMismatch)
		return ErrCodeMismatch
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
