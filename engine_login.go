package accountd

import (
	"context"
	"net/http"
	"time"

	"github.com/halverstam/accountd/ephemeral"
	"github.com/halverstam/accountd/internal"
	"github.com/halverstam/accountd/session"
	"github.com/halverstam/accountd/token"
)

// Login authenticates a local account with email and password. On plain
// success the tokens are issued, the per-account cookies are written and
// the account joins sess as current. When 2FA is enabled no tokens are
// issued; the caller holds the returned challenge secret and finishes
// with ConfirmLogin2FA.
//
// Unknown addresses and wrong passwords are indistinguishable to the
// caller.
func (e *Engine) Login(ctx context.Context, w http.ResponseWriter, sess *session.Session, email, passwd string, rememberMe bool) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || passwd == "" {
		return nil, ErrValidation
	}

	account, err := e.findForLogin(ctx, email)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}
	if account.Kind != KindLocal || account.Local == nil {
		// OAuth accounts have no password to check.
		e.metricInc(MetricLoginFailure)
		return nil, ErrInvalidCredentials
	}
	if err := statusToError(account.Status, account.EmailVerified); err != nil {
		return nil, err
	}

	now := time.Now()
	if until := account.Local.LockoutUntil; until != nil && now.Before(*until) {
		e.metricInc(MetricLoginLocked)
		return nil, ErrAccountLocked
	}

	ok, err := e.passwordHash.Verify(passwd, account.Local.PasswordHash)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if !ok {
		return nil, e.recordFailedAttempt(ctx, account, now)
	}

	if account.Local.FailedLoginAttempts > 0 || account.Local.LockoutUntil != nil {
		account.Local.FailedLoginAttempts = 0
		account.Local.LockoutUntil = nil
		if err := e.store.Save(ctx, account); err != nil {
			return nil, ErrStoreUnavailable
		}
	}

	if account.TwoFactor.Enabled {
		secret, err := e.challengeStore.Save("", ephemeral.Record{
			AccountID: account.ID,
			Email:     account.Email,
		})
		if err != nil {
			return nil, ErrStoreUnavailable
		}
		e.metricInc(MetricTwoFactorRequired)
		return &LoginResult{
			AccountID:         account.ID,
			RequiresTwoFactor: true,
			ChallengeSecret:   secret,
		}, nil
	}

	return e.completeLogin(w, sess, account, token.Embedded{}, rememberMe)
}

// ConfirmLogin2FA finishes a login parked behind a 2FA challenge. The
// code is either a current TOTP code or an unused backup code; a wrong
// code leaves the challenge standing so the user can retry until it
// expires.
func (e *Engine) ConfirmLogin2FA(ctx context.Context, w http.ResponseWriter, sess *session.Session, challengeSecret, code string, rememberMe bool) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if challengeSecret == "" || code == "" {
		return nil, ErrValidation
	}

	record, ok := e.challengeStore.Get(challengeSecret)
	if !ok {
		return nil, ErrChallengeExpired
	}
	account, err := e.store.FindByID(ctx, record.AccountID)
	if err != nil {
		e.challengeStore.Remove(challengeSecret)
		return nil, ErrChallengeExpired
	}
	if !account.TwoFactor.Enabled {
		e.challengeStore.Remove(challengeSecret)
		return nil, ErrTwoFactorNotEnabled
	}
	if err := statusToError(account.Status, account.EmailVerified); err != nil {
		return nil, err
	}

	passed, err := e.verifySecondFactor(ctx, account, code)
	if err != nil {
		return nil, err
	}
	if !passed {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}

	e.challengeStore.Remove(challengeSecret)
	return e.completeLogin(w, sess, account, token.Embedded{}, rememberMe)
}

// CompleteOAuthLogin establishes a session for an account the host
// already authenticated against its provider. The provider tokens ride
// inside the issued bearer tokens so Refresh and Revoke can reach them
// later.
func (e *Engine) CompleteOAuthLogin(ctx context.Context, w http.ResponseWriter, sess *session.Session, accountID string, providerTokens token.Embedded, rememberMe bool) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if account.Kind != KindOAuth {
		return nil, ErrValidation
	}
	if err := statusToError(account.Status, account.EmailVerified); err != nil {
		return nil, err
	}
	return e.completeLogin(w, sess, account, providerTokens, rememberMe)
}

// recordFailedAttempt bumps the counter and trips the lockout at the
// threshold. The write happens before the error is returned so the
// count survives the failed request.
func (e *Engine) recordFailedAttempt(ctx context.Context, account *Account, now time.Time) error {
	account.Local.FailedLoginAttempts++
	locked := account.Local.FailedLoginAttempts >= e.config.Lockout.MaxFailedAttempts
	if locked {
		until := now.Add(e.config.Lockout.LockoutDuration)
		account.Local.LockoutUntil = &until
	}
	if err := e.store.Save(ctx, account); err != nil {
		return ErrStoreUnavailable
	}
	if locked {
		e.metricInc(MetricLockoutTriggered)
		e.warn("account locked out",
			"accountId", account.ID,
			"attempts", account.Local.FailedLoginAttempts,
		)
		return ErrAccountLocked
	}
	e.metricInc(MetricLoginFailure)
	return ErrInvalidCredentials
}

// verifySecondFactor checks a TOTP code first; anything that does not
// look like one is tried against the backup codes, consuming on match.
func (e *Engine) verifySecondFactor(ctx context.Context, account *Account, code string) (bool, error) {
	if len(code) == e.config.TOTP.Digits && isNumericString(code) {
		ok, err := e.totp.VerifyCode(account.TwoFactor.Secret, code, time.Now())
		if err != nil {
			return false, ErrTwoFactorInvalid
		}
		return ok, nil
	}

	for i, hash := range account.TwoFactor.BackupCodeHashes {
		if internal.MatchBackupCode(code, hash) {
			account.TwoFactor.BackupCodeHashes = append(
				account.TwoFactor.BackupCodeHashes[:i],
				account.TwoFactor.BackupCodeHashes[i+1:]...,
			)
			if err := e.store.Save(ctx, account); err != nil {
				return false, ErrStoreUnavailable
			}
			e.metricInc(MetricBackupCodeUsed)
			return true, nil
		}
	}
	return false, nil
}
