package gatehouse

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig mirrors the deployment environment. Policy windows and limits,
// token secrets and TTLs, and the shared-store address are all sourced from
// GATEHOUSE_-prefixed variables.
type EnvConfig struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AccessSecret  string        `env:"JWT_ACCESS_SECRET,required"`
	RefreshSecret string        `env:"JWT_REFRESH_SECRET,required"`
	AccessTTL     time.Duration `env:"JWT_ACCESS_TTL" envDefault:"24h"`
	RememberMeTTL time.Duration `env:"JWT_REMEMBER_ME_TTL" envDefault:"720h"`
	RefreshTTL    time.Duration `env:"JWT_REFRESH_TTL" envDefault:"720h"`
	Issuer        string        `env:"JWT_ISSUER"`
	Audience      string        `env:"JWT_AUDIENCE"`

	GeneralWindow time.Duration `env:"LIMIT_GENERAL_WINDOW" envDefault:"15m"`
	GeneralMax    int64         `env:"LIMIT_GENERAL_MAX" envDefault:"1000"`
	AuthWindow    time.Duration `env:"LIMIT_AUTH_WINDOW" envDefault:"15m"`
	AuthMax       int64         `env:"LIMIT_AUTH_MAX" envDefault:"10"`
	OTPWindow     time.Duration `env:"LIMIT_OTP_WINDOW" envDefault:"5m"`
	OTPMax        int64         `env:"LIMIT_OTP_MAX" envDefault:"3"`
	UploadWindow  time.Duration `env:"LIMIT_UPLOAD_WINDOW" envDefault:"1h"`
	UploadMax     int64         `env:"LIMIT_UPLOAD_MAX" envDefault:"50"`

	OTPTTL         time.Duration `env:"OTP_TTL" envDefault:"5m"`
	OTPMaxAttempts int           `env:"OTP_MAX_ATTEMPTS" envDefault:"3"`

	CsrfTTL      time.Duration `env:"CSRF_TTL" envDefault:"1h"`
	CsrfFailOpen bool          `env:"CSRF_FAIL_OPEN" envDefault:"false"`
}

// ConfigFromEnv loads an [EnvConfig] from GATEHOUSE_-prefixed environment
// variables and materializes the typed [Config]. The Redis address stays on
// the returned EnvConfig; the caller owns client construction.
func ConfigFromEnv() (Config, *EnvConfig, error) {
	ec := &EnvConfig{}
	if err := env.ParseWithOptions(ec, env.Options{Prefix: "GATEHOUSE_"}); err != nil {
		return Config{}, nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte(ec.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(ec.RefreshSecret)
	cfg.JWT.AccessTTL = ec.AccessTTL
	cfg.JWT.RememberMeTTL = ec.RememberMeTTL
	cfg.JWT.RefreshTTL = ec.RefreshTTL
	cfg.JWT.Issuer = ec.Issuer
	cfg.JWT.Audience = ec.Audience

	cfg.RateLimit.Policies = []PolicyConfig{
		{Name: "general", Window: ec.GeneralWindow, MaxRequests: ec.GeneralMax, Message: "too many requests, please try again later"},
		{Name: "auth", Window: ec.AuthWindow, MaxRequests: ec.AuthMax, Message: "too many authentication attempts, please try again later"},
		{Name: "otp", Window: ec.OTPWindow, MaxRequests: ec.OTPMax, Message: "too many code requests, please try again later"},
		{Name: "upload", Window: ec.UploadWindow, MaxRequests: ec.UploadMax, Message: "upload limit reached, please try again later"},
	}

	cfg.OTP.TTL = ec.OTPTTL
	cfg.OTP.MaxAttempts = ec.OTPMaxAttempts

	cfg.Csrf.TTL = ec.CsrfTTL
	if ec.CsrfFailOpen {
		cfg.Csrf.OnStoreFailure = CsrfFailOpen
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	return cfg, ec, nil
}
