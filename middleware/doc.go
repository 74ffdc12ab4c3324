// Package middleware exposes net/http adapters for the gatehouse Engine:
// rate-limit admission, bearer-token authentication, and CSRF enforcement.
//
// # Guards
//
//   - [RateLimit] — fixed-window admission with standard X-RateLimit headers.
//   - [Authenticate] — optional bearer verification, principal into context.
//   - [RequirePrincipal] — rejects requests without a verified principal.
//   - [Csrf] — single-use token enforcement on state-changing methods.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement admission or identity logic itself — all decisions are
// delegated to the Engine.
package middleware
