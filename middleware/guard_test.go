package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	gatehouse "github.com/skelhorn/gatehouse"
)

type staticIdentities struct {
	record gatehouse.IdentityRecord
}

func (s *staticIdentities) GetIdentityByID(_ context.Context, id string) (gatehouse.IdentityRecord, error) {
	if id != s.record.ID {
		return gatehouse.IdentityRecord{}, gatehouse.ErrIdentityNotFound
	}
	return s.record, nil
}

func (s *staticIdentities) UpdateRefreshTokens(_ context.Context, _ string, tokens []gatehouse.RefreshTokenRecord) error {
	s.record.RefreshTokens = tokens
	return nil
}

func newTestEngine(t *testing.T) (*gatehouse.Engine, *staticIdentities) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	identities := &staticIdentities{
		record: gatehouse.IdentityRecord{ID: "user-1", Email: "u@example.com", Role: "member"},
	}

	engine, err := gatehouse.New().
		WithSecrets([]byte("access-secret-for-tests-0123456789"), []byte("refresh-secret-for-tests-0123456789")).
		WithRedis(rdb).
		WithIdentityProvider(identities).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, identities
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitHeadersAndRejection(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := RateLimit(engine, "auth", nil)(okHandler())

	var rec *httptest.ResponseRecorder
	for i := 0; i < 11; i++ {
		rec = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		handler.ServeHTTP(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "10" {
		t.Fatalf("limit header = %q, want 10", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining header = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on rejection")
	}
	if !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Fatalf("body = %q, want rejection JSON", rec.Body.String())
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := RateLimit(engine, "auth", nil)(okHandler())

	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		handler.ServeHTTP(rec, req)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "5.6.7.8:5678"
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", rec.Code)
	}
}

func TestRateLimitUnknownPolicy(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := RateLimit(engine, "nope", nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestAuthenticatePutsPrincipalInContext(t *testing.T) {
	engine, identities := newTestEngine(t)

	pair, err := engine.IssueTokens(context.Background(), identities.record, false)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var got *gatehouse.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Authenticate(engine)(inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got == nil || got.SubjectID != "user-1" {
		t.Fatalf("principal = %+v, want user-1", got)
	}
}

func TestAuthenticateRejectsBadToken(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := Authenticate(engine)(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer junk")
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticatePassesAnonymousThrough(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := Authenticate(engine)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequirePrincipal(t *testing.T) {
	handler := RequirePrincipal()(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func withPrincipal(r *http.Request, p *gatehouse.Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalContextKey{}, p))
}

func TestCsrfEnforcement(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := Csrf(engine)(okHandler())
	principal := &gatehouse.Principal{SubjectID: "user-1"}

	token, err := engine.IssueCsrfToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	// GET passes untouched.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}

	// POST without a token is rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withPrincipal(httptest.NewRequest(http.MethodPost, "/update", nil), principal))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("tokenless POST status = %d, want 403", rec.Code)
	}

	// POST with the token passes once.
	rec = httptest.NewRecorder()
	req := withPrincipal(httptest.NewRequest(http.MethodPost, "/update", nil), principal)
	req.Header.Set("X-CSRF-Token", token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, want 200", rec.Code)
	}

	// Replaying the same token fails.
	rec = httptest.NewRecorder()
	req = withPrincipal(httptest.NewRequest(http.MethodPost, "/update", nil), principal)
	req.Header.Set("X-CSRF-Token", token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("replay status = %d, want 403", rec.Code)
	}
}

func TestCsrfBypassPaths(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := Csrf(engine, "/webhook")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("bypass path status = %d, want 200", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:443"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("ip = %q, want 10.0.0.1", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Fatalf("forwarded ip = %q, want 203.0.113.7", got)
	}
}
