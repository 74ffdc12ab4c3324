package gatehouse

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Config holds all engine tuning parameters. Instances are configured
// during initialization and treated as immutable afterwards.
type Config struct {
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	OTP        OTPConfig
	Csrf       CsrfConfig
	Resilience ResilienceConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access and refresh token issuance. Access and refresh
// tokens are signed with distinct secrets so one class can never verify as
// the other.
type JWTConfig struct {
	AccessTTL            time.Duration // default 24h
	RememberMeTTL        time.Duration // access TTL with "remember me", default 30d
	RefreshTTL           time.Duration // default 30d
	AccessSecret         []byte
	RefreshSecret        []byte
	Issuer               string
	Audience             string
	Leeway               time.Duration
	MaxLiveRefreshTokens int            // per identity, default 5
	RevocationCheck      RevocationMode // default RevocationBestEffort
	BlacklistPrefix      string         // Redis key namespace, default "gbl"
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// PolicyConfig is one named fixed-window admission policy. Immutable,
// enumerated at startup.
type PolicyConfig struct {
	Name        string
	Window      time.Duration
	MaxRequests int64
	Message     string
}

// RateLimitConfig holds the policy table and the counter key namespace.
// An empty Policies slice enables [DefaultPolicies].
type RateLimitConfig struct {
	KeyPrefix string // default "grl"
	Policies  []PolicyConfig
}

// DefaultPolicies returns the built-in policy table: general API traffic,
// authentication attempts, one-time-code requests, and uploads.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		{Name: "general", Window: 15 * time.Minute, MaxRequests: 1000, Message: "too many requests, please try again later"},
		{Name: "auth", Window: 15 * time.Minute, MaxRequests: 10, Message: "too many authentication attempts, please try again later"},
		{Name: "otp", Window: 5 * time.Minute, MaxRequests: 3, Message: "too many code requests, please try again later"},
		{Name: "upload", Window: time.Hour, MaxRequests: 50, Message: "upload limit reached, please try again later"},
	}
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls one-time-code issuance and verification.
type OTPConfig struct {
	Digits      int           // default 6
	TTL         time.Duration // default 5m
	MaxAttempts int           // cumulative failed verifications, default 3
	KeyPrefix   string        // default "gotp"
}

/*
====================================
CSRF CONFIG
====================================
*/

// CsrfConfig controls single-use CSRF token issuance.
type CsrfConfig struct {
	TTL            time.Duration     // default 1h
	TokenBytes     int               // entropy in bytes, default 32
	KeyPrefix      string            // default "gcs"
	OnStoreFailure CsrfFailurePolicy // default CsrfFailClosed
}

/*
====================================
RESILIENCE CONFIG
====================================
*/

// ResilienceConfig tunes the shared-store failover supervisor.
type ResilienceConfig struct {
	ProbeInterval time.Duration // recovery probe cadence, default 15s
	OpTimeout     time.Duration // per-operation Redis budget, default 250ms
	SweepInterval time.Duration // fallback store janitor cadence, default 60s
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the lock-free metrics table.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:            24 * time.Hour,
			RememberMeTTL:        30 * 24 * time.Hour,
			RefreshTTL:           30 * 24 * time.Hour,
			MaxLiveRefreshTokens: 5,
			RevocationCheck:      RevocationBestEffort,
			BlacklistPrefix:      "gbl",
		},
		RateLimit: RateLimitConfig{
			KeyPrefix: "grl",
			Policies:  DefaultPolicies(),
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         5 * time.Minute,
			MaxAttempts: 3,
			KeyPrefix:   "gotp",
		},
		Csrf: CsrfConfig{
			TTL:            time.Hour,
			TokenBytes:     32,
			KeyPrefix:      "gcs",
			OnStoreFailure: CsrfFailClosed,
		},
		Resilience: ResilienceConfig{
			ProbeInterval: 15 * time.Second,
			OpTimeout:     250 * time.Millisecond,
			SweepInterval: 60 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internal consistency. Called by
// [Builder.Build]; exported so callers can validate configs sourced from
// the environment before construction.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) == 0 {
		return errors.New("jwt access secret required")
	}
	if len(c.JWT.RefreshSecret) == 0 {
		return errors.New("jwt refresh secret required")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("invalid token TTL configuration")
	}
	if c.JWT.RememberMeTTL < c.JWT.AccessTTL {
		return errors.New("remember-me TTL must not be shorter than access TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if c.JWT.MaxLiveRefreshTokens <= 0 {
		return errors.New("max live refresh tokens must be positive")
	}

	if len(c.RateLimit.Policies) == 0 {
		return errors.New("at least one rate limit policy required")
	}
	seen := make(map[string]struct{}, len(c.RateLimit.Policies))
	for _, p := range c.RateLimit.Policies {
		if p.Name == "" {
			return errors.New("rate limit policy name required")
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate rate limit policy %q", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.Window <= 0 || p.MaxRequests <= 0 {
			return fmt.Errorf("invalid window or limit for policy %q", p.Name)
		}
	}

	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 || c.OTP.MaxAttempts <= 0 {
		return errors.New("invalid otp TTL or attempt configuration")
	}

	if c.Csrf.TTL <= 0 {
		return errors.New("invalid csrf TTL configuration")
	}
	if c.Csrf.TokenBytes < 32 {
		return errors.New("csrf tokens require at least 32 bytes of entropy")
	}

	if c.Resilience.ProbeInterval <= 0 || c.Resilience.OpTimeout <= 0 || c.Resilience.SweepInterval <= 0 {
		return errors.New("invalid resilience configuration")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.RateLimit.Policies = make([]PolicyConfig, len(cfg.RateLimit.Policies))
	copy(out.RateLimit.Policies, cfg.RateLimit.Policies)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
