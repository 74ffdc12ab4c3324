// Package gatehouse is the request-admission and identity layer for a
// multi-tenant API backend: a Redis-backed fixed-window rate limiter with
// automatic degradation to an in-process store, a JWT access/refresh token
// lifecycle with rotation and revocation, one-time-password issuance with
// attempt throttling, and single-use CSRF tokens.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// gatehouse is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (Decision, TokenPair, Principal, etc.). All store
// coordination — counter stores, failover supervision, one-time-code and
// CSRF records — lives under internal/ and is never exported.
//
// External collaborators are injected, never owned: the persistent identity
// store behind [IdentityProvider], and code delivery behind [CodeSender].
// HTTP routing stays outside; the middleware subpackage only wraps plain
// net/http handlers.
//
// # Availability contract
//
// Admission must answer even when the shared store is unreachable. Counter
// operations fail over to the in-process store within the same call, and
// revocation checks default to best-effort: Redis being down never reads as
// "revoked" and never blocks the request pipeline.
package gatehouse
