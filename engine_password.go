package accountd

import (
	"context"

	"github.com/halverstam/accountd/ephemeral"
)

// ChangePassword rotates a local account's password after verifying the
// current one. The new password must not match any of the last
// passwordHistorySize passwords; a successful change also clears any
// standing lockout.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || current == "" || next == "" {
		return ErrValidation
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return ErrAccountNotFound
	}
	if account.Kind != KindLocal || account.Local == nil {
		return ErrValidation
	}

	ok, err := e.passwordHash.Verify(current, account.Local.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	if err := e.setPassword(ctx, account, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.notifyAsync(NotifyPasswordChanged, account.Email, map[string]string{
		"firstName": account.FirstName,
	})
	return nil
}

// RequestPasswordReset mints a reset secret and emails it. The response
// is identical for unknown addresses and oauth accounts so the endpoint
// cannot be used to probe which emails are registered. Any earlier
// unconsumed reset secret for the address is invalidated first.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}

	account, err := e.store.FindByEmail(ctx, email)
	if err != nil || account.Kind != KindLocal || account.Local == nil {
		return nil
	}

	e.resetStore.RemoveAllFor(email)
	secret, err := e.resetStore.Save("", ephemeral.Record{
		AccountID: account.ID,
		Email:     email,
	})
	if err != nil {
		return ErrStoreUnavailable
	}

	if err := e.sendCritical(ctx, NotifyPasswordReset, email, map[string]string{
		"token":     secret,
		"firstName": account.FirstName,
	}); err != nil {
		e.resetStore.Remove(secret)
		return ErrNotificationFailed
	}
	return nil
}

// ConfirmPasswordReset consumes a reset secret and sets the new
// password. The same history rule as ChangePassword applies, and a
// standing lockout is lifted since the caller just proved mailbox
// control.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, secret, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if secret == "" || next == "" {
		return ErrValidation
	}

	record, ok := e.resetStore.Get(secret)
	if !ok {
		return ErrChallengeExpired
	}
	account, err := e.store.FindByID(ctx, record.AccountID)
	if err != nil {
		e.resetStore.Remove(secret)
		return ErrChallengeExpired
	}
	if account.Kind != KindLocal || account.Local == nil {
		e.resetStore.Remove(secret)
		return ErrValidation
	}

	if err := e.setPassword(ctx, account, next); err != nil {
		return err
	}
	e.resetStore.Remove(secret)

	e.metricInc(MetricPasswordChanged)
	e.notifyAsync(NotifyPasswordChanged, account.Email, map[string]string{
		"firstName": account.FirstName,
	})
	return nil
}

// setPassword enforces the reuse rule, hashes and persists. The history
// ring holds the hashes of the last passwordHistorySize passwords, the
// active one included, so reuse is checked against the ring alone.
func (e *Engine) setPassword(ctx context.Context, account *Account, next string) error {
	for _, old := range account.Local.PasswordHistory {
		match, err := e.passwordHash.Verify(next, old)
		if err != nil {
			return ErrValidation
		}
		if match {
			e.metricInc(MetricPasswordReuseRejected)
			return ErrPasswordReuse
		}
	}
	if len(account.Local.PasswordHistory) == 0 && account.Local.PasswordHash != "" {
		// Accounts created before history tracking: seed with the
		// active hash so the current password still counts as reuse.
		match, err := e.passwordHash.Verify(next, account.Local.PasswordHash)
		if err != nil {
			return ErrValidation
		}
		if match {
			e.metricInc(MetricPasswordReuseRejected)
			return ErrPasswordReuse
		}
	}

	hash, err := e.passwordHash.Hash(next)
	if err != nil {
		return ErrValidation
	}

	history := append(account.Local.PasswordHistory, hash)
	if len(history) > passwordHistorySize {
		history = history[len(history)-passwordHistorySize:]
	}

	account.Local.PasswordHash = hash
	account.Local.PasswordHistory = history
	account.Local.FailedLoginAttempts = 0
	account.Local.LockoutUntil = nil

	if err := e.store.Save(ctx, account); err != nil {
		return ErrStoreUnavailable
	}
	return nil
}
