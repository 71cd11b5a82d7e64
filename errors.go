package accountd

import "errors"

var (
	// ErrValidation reports malformed input: a missing field, a bad email
	// shape, or an out-of-range value. Always recoverable by the caller.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidCredentials is returned for a wrong password and for an
	// unknown email alike, so callers cannot probe which addresses exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is used internally; login boundaries convert it
	// to ErrInvalidCredentials before it reaches a caller.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLocked reports a temporary lockout after repeated failed
	// logins. The lockout window is carried on the account record.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountSuspended is an exported state error for moderated accounts.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountUnverified is returned when a login reaches an account
	// whose email has not been verified yet.
	ErrAccountUnverified = errors.New("account unverified")
	// ErrDuplicateAccount reports an email or username already in use.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrTokenInvalid covers every bearer token failure: bad signature,
	// expiry, and wrong token kind. The causes are deliberately not
	// distinguishable from the error value.
	ErrTokenInvalid = errors.New("invalid or expired token")
	// ErrChallengeExpired reports a missing or expired ephemeral flow
	// token (verification, reset, or 2FA challenge).
	ErrChallengeExpired = errors.New("token expired or not found")
	// ErrTwoFactorInvalid reports a wrong TOTP or backup code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorRequired signals that login must continue through
	// ConfirmLogin2FA with the issued challenge secret.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrTwoFactorNotEnabled is returned by 2FA operations on accounts
	// without an enabled or pending secret.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrPasswordReuse rejects a new password matching one of the last
	// five password hashes.
	ErrPasswordReuse = errors.New("password was used recently")
	// ErrSessionMembership rejects a current-account switch to an id that
	// is not a member of the session.
	ErrSessionMembership = errors.New("account is not part of this session")
	// ErrNotificationFailed reports a critical email that could not be
	// delivered. The triggering state change has been rolled back.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrStoreUnavailable reports an account store failure.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build
	// wired its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Machine-readable codes for the error taxonomy. Credential failures and
// unknown accounts intentionally share a code.
const (
	CodeValidation   = "validation_error"
	CodeAuthFailed   = "auth_failed"
	CodeTokenExpired = "temp_token_expired"
	CodeLocked       = "account_locked"
	CodeConflict     = "conflict"
	CodeNotFound     = "not_found"
	CodeServerError  = "server_error"
)

// ErrorCode maps an engine error to its wire-level code. Unknown errors
// classify as server errors.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrChallengeExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTwoFactorInvalid),
		errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrAccountSuspended),
		errors.Is(err, ErrAccountUnverified):
		return CodeAuthFailed
	case errors.Is(err, ErrAccountLocked):
		return CodeLocked
	case errors.Is(err, ErrDuplicateAccount), errors.Is(err, ErrPasswordReuse):
		return CodeConflict
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrSessionMembership):
		return CodeNotFound
	default:
		return CodeServerError
	}
}
