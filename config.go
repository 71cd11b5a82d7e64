package accountd

import (
	"errors"
	"time"
)

// Config carries every tunable of the engine. It is a plain value built
// once at startup and passed into Build; nothing in this package mutates
// configuration behind the caller's back. Use ReloadConfig to re-read a
// file at runtime and construct a fresh value.
type Config struct {
	Token     TokenConfig
	Session   SessionConfig
	Cookie    CookieConfig
	Ephemeral EphemeralConfig
	Lockout   LockoutConfig
	Password  PasswordConfig
	TOTP      TOTPConfig
	Notify    NotifyConfig
	Metrics   MetricsConfig
}

// TokenConfig controls the bearer token codec.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SessionConfig controls the signed multi-account session token.
type SessionConfig struct {
	Secret []byte
}

// CookieConfig controls cookie placement. BasePath is the path prefix
// under which per-account token cookies are scoped.
type CookieConfig struct {
	SessionName string
	BasePath    string
	Domain      string
	Secure      bool
}

// EphemeralConfig bounds the four flow token stores. Capacity applies
// per store; the oldest unexpired entries are evicted beyond it.
type EphemeralConfig struct {
	Capacity              int
	TwoFactorChallengeTTL time.Duration
	PasswordResetTTL      time.Duration
	EmailVerificationTTL  time.Duration
	ProfileCompletionTTL  time.Duration
}

// LockoutConfig controls the failed-login state machine.
type LockoutConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// PasswordConfig carries the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// TOTPConfig controls 2FA code generation and verification.
type TOTPConfig struct {
	Issuer           string
	Digits           int
	Period           int
	Skew             int
	BackupCodeCount  int
	BackupCodeLength int
}

// NotifyConfig controls the best-effort notification dispatcher.
// Critical sends bypass the dispatcher and are always synchronous.
type NotifyConfig struct {
	BufferSize  int
	MaxAttempts int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Cookie: CookieConfig{
			SessionName: "session",
			BasePath:    "/api/accounts",
			Secure:      true,
		},
		Ephemeral: EphemeralConfig{
			Capacity:              1000,
			TwoFactorChallengeTTL: 5 * time.Minute,
			PasswordResetTTL:      10 * time.Minute,
			EmailVerificationTTL:  24 * time.Hour,
			ProfileCompletionTTL:  time.Hour,
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        2,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		TOTP: TOTPConfig{
			Issuer:           "accountd",
			Digits:           6,
			Period:           30,
			Skew:             1,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Notify: NotifyConfig{
			BufferSize:  64,
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
			SendTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// DefaultConfig returns the baseline configuration. Callers must still
// supply the two signing secrets before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < 16 {
		return errors.New("token secret must be at least 16 bytes")
	}
	if len(c.Session.Secret) < 16 {
		return errors.New("session secret must be at least 16 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Ephemeral.Capacity <= 0 {
		return errors.New("ephemeral capacity must be positive")
	}
	if c.Ephemeral.TwoFactorChallengeTTL <= 0 ||
		c.Ephemeral.PasswordResetTTL <= 0 ||
		c.Ephemeral.EmailVerificationTTL <= 0 ||
		c.Ephemeral.ProfileCompletionTTL <= 0 {
		return errors.New("ephemeral TTLs must be positive")
	}
	if c.Lockout.MaxFailedAttempts < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("totp skew must be 0..2")
	}
	if c.TOTP.BackupCodeCount < 1 || c.TOTP.BackupCodeCount > 32 {
		return errors.New("backup code count must be 1..32")
	}
	if c.TOTP.BackupCodeLength < 8 || c.TOTP.BackupCodeLength > 32 {
		return errors.New("backup code length must be 8..32")
	}
	if c.Notify.MaxAttempts < 1 {
		return errors.New("notify attempts must be at least 1")
	}
	if c.Cookie.BasePath == "" || c.Cookie.BasePath[0] != '/' {
		return errors.New("cookie base path must start with /")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	out.Session.Secret = cloneBytes(cfg.Session.Secret)
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
