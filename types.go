package gatehouse

import (
	"context"
	"time"
)

// RefreshTokenRecord is one live refresh token stored on an identity's
// record in the persistent store. The identity keeps at most
// [JWTConfig.MaxLiveRefreshTokens] of these; the oldest is evicted when a
// new token would exceed the cap.
type RefreshTokenRecord struct {
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IdentityRecord is the minimal identity projection the engine needs from
// the persistent store: claims material plus the live refresh-token list.
type IdentityRecord struct {
	ID            string
	Email         string
	Role          string
	Permissions   []string
	RefreshTokens []RefreshTokenRecord
}

// IdentityProvider is the interface callers must implement to integrate
// gatehouse with their user database. It is a plain CRUD collaborator:
// find by id, and replace the refresh-token list. Refresh-token list writes
// are last-write-wins; the bounded list and explicit consume-then-append
// vocabulary keep the residual race (two devices refreshing the same
// identity simultaneously) narrow and self-healing.
type IdentityProvider interface {
	GetIdentityByID(ctx context.Context, id string) (IdentityRecord, error)
	UpdateRefreshTokens(ctx context.Context, id string, tokens []RefreshTokenRecord) error
}

// CodeSender delivers a one-time code to its destination (phone or email).
// Fire-and-forget: no retry contract is assumed, a failure surfaces to the
// caller as [ErrCodeDeliveryFailed].
type CodeSender interface {
	SendCode(ctx context.Context, destination, code string) error
}

// TokenPair is the result of token issuance and refresh rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Principal is the verified identity extracted from an access token.
type Principal struct {
	SubjectID   string
	Email       string
	Role        string
	Permissions []string
}

// Decision is the outcome of a rate-limit admission check.
type Decision struct {
	Allowed    bool
	Policy     string
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
	// Message is the policy's rejection text; empty when Allowed.
	Message string
}

// HealthStatus reports the supervisor's view of the shared store.
type HealthStatus struct {
	Degraded     bool
	RedisLatency time.Duration
	RedisError   string
}

// RevocationMode selects how access-token verification treats blacklist
// store failures.
type RevocationMode int

const (
	// RevocationBestEffort proceeds as not-revoked when the blacklist store
	// is unreachable. Availability over strictness; the default.
	RevocationBestEffort RevocationMode = iota
	// RevocationStrict fails verification with [ErrStoreUnavailable] when
	// the blacklist cannot be consulted. For higher-security deployments.
	RevocationStrict
)

// CsrfFailurePolicy selects how CSRF consumption treats store failures.
// This is an explicit construction-time policy, not an environment branch.
type CsrfFailurePolicy int

const (
	// CsrfFailClosed rejects the request when the CSRF store is
	// unreachable. The default.
	CsrfFailClosed CsrfFailurePolicy = iota
	// CsrfFailOpen admits the request when the CSRF store is unreachable.
	CsrfFailOpen
)
