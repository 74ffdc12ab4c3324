package gatehouse

import "errors"

var (
	// ErrUnknownPolicy is returned when Admit is called with a policy name
	// that was not registered at startup.
	ErrUnknownPolicy = errors.New("unknown rate limit policy")
	// ErrStoreUnavailable reports a shared-store failure on a path that has
	// no fallback (strict revocation checks, OTP and CSRF stores).
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for bad signatures, malformed tokens, and
	// refresh tokens not present in the identity's live list (replay).
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenRevoked is returned when an access token is on the blacklist.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrIdentityNotFound is returned when the identity provider has no
	// record for the requested id.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrCodeExpired is returned when no live one-time code exists for the
	// subject (expired, already consumed, or never requested).
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrCodeExhausted is returned once the attempt budget for a one-time
	// code is spent; a new code must be requested.
	ErrCodeExhausted = errors.New("one-time code attempts exhausted")
	// ErrCodeMismatch is returned when the submitted code does not match.
	ErrCodeMismatch = errors.New("one-time code mismatch")
	// ErrCodeDeliveryFailed is returned when the delivery collaborator could
	// not send the code.
	ErrCodeDeliveryFailed = errors.New("one-time code delivery failed")
	// ErrCsrfMissing is returned when a state-changing request carries no
	// CSRF token.
	ErrCsrfMissing = errors.New("csrf token missing")
	// ErrCsrfInvalid is returned when a CSRF token is unknown or already
	// consumed.
	ErrCsrfInvalid = errors.New("csrf token invalid")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or incompletely built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
