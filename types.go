package accountd

import (
	"context"
	"time"
)

// AccountKind distinguishes locally-registered accounts from accounts
// delegated to a third-party OAuth provider. Every kind-dependent decision
// (token issuance, password rules, revocation) switches on this tag.
type AccountKind string

const (
	// KindLocal is a password-authenticated account.
	KindLocal AccountKind = "local"
	// KindOAuth is a provider-authenticated account. It never carries a
	// password hash.
	KindOAuth AccountKind = "oauth"
)

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	// StatusUnverified is the state of a classic signup before its email
	// is confirmed.
	StatusUnverified AccountStatus = "unverified"
	// StatusActive is a fully usable account.
	StatusActive AccountStatus = "active"
	// StatusSuspended is set by external moderation; logins are rejected
	// without consuming a failed attempt.
	StatusSuspended AccountStatus = "suspended"
	// StatusInactive marks an account that was deactivated by its owner.
	StatusInactive AccountStatus = "inactive"
)

const passwordHistorySize = 5

// LocalSecurity is the mutable security sub-record of a local account.
// Mutations are applied as read-modify-write against one account record;
// racing logins may over- or under-count FailedLoginAttempts, which is
// accepted because lockout is a coarse defense.
type LocalSecurity struct {
	PasswordHash        string
	PasswordHistory     []string
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	SessionTimeout      time.Duration
}

// OAuthIdentity carries the provider linkage for an oauth-kind account.
type OAuthIdentity struct {
	Provider          string
	ProviderAccountID string
}

// TwoFactor holds 2FA enrollment state. PendingSecret is set by Setup2FA
// and promoted to Secret by Confirm2FASetup; it stays stable across
// repeated setup calls so a user can retry scanning the QR code.
type TwoFactor struct {
	Enabled          bool
	Secret           []byte
	PendingSecret    []byte
	BackupCodeHashes [][32]byte
}

// Account is the identity and credential record the engine operates on.
// Local holds password state for KindLocal accounts and must be nil for
// KindOAuth; OAuth is the inverse.
type Account struct {
	ID            string
	Kind          AccountKind
	Status        AccountStatus
	FirstName     string
	LastName      string
	Email         string
	Username      string
	EmailVerified bool
	Local         *LocalSecurity
	OAuth         *OAuthIdentity
	TwoFactor     TwoFactor
	CreatedAt     time.Time
}

// AccountStore is the document store the engine reads and writes account
// records through. Implementations must be atomic per record; the engine
// never needs multi-record transactions. Lookup misses return
// ErrAccountNotFound.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Save(ctx context.Context, account *Account) error
	Delete(ctx context.Context, id string) error
}

// NotificationKind selects the outbound email template.
type NotificationKind string

const (
	// NotifyVerifyEmail carries the email-verification secret. Critical:
	// a failed send rolls back the signup that triggered it.
	NotifyVerifyEmail NotificationKind = "verify_email"
	// NotifyPasswordReset carries the reset secret. Critical.
	NotifyPasswordReset NotificationKind = "password_reset"
	// NotifyLogin is a best-effort new-login notice.
	NotifyLogin NotificationKind = "login"
	// NotifyPasswordChanged is a best-effort confirmation.
	NotifyPasswordChanged NotificationKind = "password_changed"
	// NotifyTwoFactorEnabled is a best-effort confirmation.
	NotifyTwoFactorEnabled NotificationKind = "two_factor_enabled"
)

// Notifier delivers outbound notifications. Template rendering and
// transport are the implementation's concern.
type Notifier interface {
	Send(ctx context.Context, kind NotificationKind, recipient string, vars map[string]string) error
}

// OAuthTokenHook lets the host refresh and revoke third-party OAuth
// tokens during Refresh and Revoke. Provider wire formats live behind
// this interface.
type OAuthTokenHook interface {
	RefreshAccessToken(ctx context.Context, provider, refreshToken string) (accessToken string, err error)
	RevokeTokens(ctx context.Context, provider, accessToken, refreshToken string) error
}

// SignupRequest is the input for Engine.Signup.
type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Username  string
}

// LoginResult is returned by Login and ConfirmLogin2FA. When
// RequiresTwoFactor is set the login is parked behind ChallengeSecret and
// no tokens are issued yet.
type LoginResult struct {
	AccountID    string
	AccessToken  string
	RefreshToken string

	RequiresTwoFactor bool
	ChallengeSecret   string
}

// TwoFactorSetup is returned by Setup2FA: the base32 secret plus the
// otpauth:// URI to render as a QR code.
type TwoFactorSetup struct {
	SecretBase32 string
	URI          string
}
