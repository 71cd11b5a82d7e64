package accountd

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envConfig is the flat environment surface. Secrets arrive hex encoded
// so they survive shells and .env files unmangled.
type envConfig struct {
	TokenSecretHex   string        `env:"ACCOUNTD_TOKEN_SECRET"`
	SessionSecretHex string        `env:"ACCOUNTD_SESSION_SECRET"`
	AccessTTL        time.Duration `env:"ACCOUNTD_ACCESS_TTL" envDefault:"1h"`
	RefreshTTL       time.Duration `env:"ACCOUNTD_REFRESH_TTL" envDefault:"720h"`

	CookieSessionName string `env:"ACCOUNTD_COOKIE_NAME" envDefault:"session"`
	CookieBasePath    string `env:"ACCOUNTD_COOKIE_BASE_PATH" envDefault:"/api/accounts"`
	CookieDomain      string `env:"ACCOUNTD_COOKIE_DOMAIN"`
	CookieSecure      bool   `env:"ACCOUNTD_COOKIE_SECURE" envDefault:"true"`

	EphemeralCapacity    int           `env:"ACCOUNTD_EPHEMERAL_CAPACITY" envDefault:"1000"`
	ChallengeTTL         time.Duration `env:"ACCOUNTD_2FA_CHALLENGE_TTL" envDefault:"5m"`
	PasswordResetTTL     time.Duration `env:"ACCOUNTD_PASSWORD_RESET_TTL" envDefault:"10m"`
	EmailVerificationTTL time.Duration `env:"ACCOUNTD_EMAIL_VERIFICATION_TTL" envDefault:"24h"`
	ProfileCompletionTTL time.Duration `env:"ACCOUNTD_PROFILE_COMPLETION_TTL" envDefault:"1h"`

	MaxFailedAttempts int           `env:"ACCOUNTD_MAX_FAILED_LOGINS" envDefault:"5"`
	LockoutDuration   time.Duration `env:"ACCOUNTD_LOCKOUT_DURATION" envDefault:"15m"`

	TOTPIssuer string `env:"ACCOUNTD_TOTP_ISSUER" envDefault:"accountd"`

	MetricsEnabled bool `env:"ACCOUNTD_METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig reads configuration from the process environment, loading a
// local .env file first when one exists.
func LoadConfig() (Config, error) {
	_ = godotenv.Load()
	return configFromEnv()
}

// ReloadConfig re-reads the given env-format file and returns a fresh
// Config. Nothing is cached or mutated in place: runtime refresh means
// calling this and rebuilding the components that should pick it up.
func ReloadConfig(path string) (Config, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return configFromEnv(env.Options{Environment: vars})
}

func configFromEnv(opts ...env.Options) (Config, error) {
	var raw envConfig
	var err error
	if len(opts) > 0 {
		err = env.ParseWithOptions(&raw, opts[0])
	} else {
		err = env.Parse(&raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.Token.AccessTTL = raw.AccessTTL
	cfg.Token.RefreshTTL = raw.RefreshTTL
	cfg.Cookie.SessionName = raw.CookieSessionName
	cfg.Cookie.BasePath = raw.CookieBasePath
	cfg.Cookie.Domain = raw.CookieDomain
	cfg.Cookie.Secure = raw.CookieSecure
	cfg.Ephemeral.Capacity = raw.EphemeralCapacity
	cfg.Ephemeral.TwoFactorChallengeTTL = raw.ChallengeTTL
	cfg.Ephemeral.PasswordResetTTL = raw.PasswordResetTTL
	cfg.Ephemeral.EmailVerificationTTL = raw.EmailVerificationTTL
	cfg.Ephemeral.ProfileCompletionTTL = raw.ProfileCompletionTTL
	cfg.Lockout.MaxFailedAttempts = raw.MaxFailedAttempts
	cfg.Lockout.LockoutDuration = raw.LockoutDuration
	cfg.TOTP.Issuer = raw.TOTPIssuer
	cfg.Metrics.Enabled = raw.MetricsEnabled

	if raw.TokenSecretHex != "" {
		secret, err := hex.DecodeString(raw.TokenSecretHex)
		if err != nil {
			return Config{}, fmt.Errorf("ACCOUNTD_TOKEN_SECRET is not valid hex: %w", err)
		}
		cfg.Token.Secret = secret
	}
	if raw.SessionSecretHex != "" {
		secret, err := hex.DecodeString(raw.SessionSecretHex)
		if err != nil {
			return Config{}, fmt.Errorf("ACCOUNTD_SESSION_SECRET is not valid hex: %w", err)
		}
		cfg.Session.Secret = secret
	}

	return cfg, nil
}
