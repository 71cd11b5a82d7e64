package accountd

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/halverstam/accountd/ephemeral"
)

// Signup runs the classic flow: the account is created unverified and a
// verification email must be confirmed before login works. A failed
// verification email deletes the account and token again so no address
// is left stuck unreachable.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if err := validateSignup(req); err != nil {
		return nil, err
	}

	if err := e.checkDuplicate(ctx, req.Email, req.Username); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, ErrValidation
	}

	account := &Account{
		ID:        uuid.NewString(),
		Kind:      KindLocal,
		Status:    StatusUnverified,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     normalizeEmail(req.Email),
		Username:  req.Username,
		Local: &LocalSecurity{
			PasswordHash:    hash,
			PasswordHistory: []string{hash},
		},
		CreatedAt: time.Now(),
	}
	if err := e.store.Create(ctx, account); err != nil {
		return nil, ErrStoreUnavailable
	}

	secret, err := e.verifyStore.Save(account.Email, ephemeral.Record{
		AccountID: account.ID,
		Email:     account.Email,
	})
	if err != nil {
		_ = e.store.Delete(ctx, account.ID)
		return nil, ErrStoreUnavailable
	}

	if err := e.sendCritical(ctx, NotifyVerifyEmail, account.Email, map[string]string{
		"token":     secret,
		"firstName": account.FirstName,
	}); err != nil {
		// Compensate: a signup whose verification email never went out
		// must not occupy the address.
		e.verifyStore.Remove(account.Email)
		_ = e.store.Delete(ctx, account.ID)
		return nil, ErrNotificationFailed
	}

	e.metricInc(MetricSignupSuccess)
	return account, nil
}

// BeginSignup starts the pre-verified two-step flow: the address is
// verified before any account exists, and CompleteProfile later creates
// the account already active.
func (e *Engine) BeginSignup(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}
	if err := e.checkDuplicate(ctx, email, ""); err != nil {
		return err
	}

	secret, err := e.verifyStore.Save(email, ephemeral.Record{Email: email})
	if err != nil {
		return ErrStoreUnavailable
	}
	if err := e.sendCritical(ctx, NotifyVerifyEmail, email, map[string]string{"token": secret}); err != nil {
		e.verifyStore.Remove(email)
		return ErrNotificationFailed
	}
	return nil
}

// VerifyEmailResult is returned by VerifyEmail. Exactly one field is
// set: Account for the classic flow, ProfileToken for the two-step flow
// where the account does not exist yet.
type VerifyEmailResult struct {
	Account      *Account
	ProfileToken string
}

// VerifyEmail consumes the verification secret. Classic-flow accounts
// transition unverified to active; two-step flow addresses receive a
// profile-completion token instead.
func (e *Engine) VerifyEmail(ctx context.Context, secret string) (*VerifyEmailResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	// Keyed by email, so the user-held secret needs the secondary scan.
	record, ok := e.verifyStore.FindBySecret(secret)
	if !ok {
		return nil, ErrChallengeExpired
	}

	if record.AccountID == "" {
		profileSecret, err := e.profileStore.Save("", ephemeral.Record{
			Email:         record.Email,
			EmailVerified: true,
		})
		if err != nil {
			return nil, ErrStoreUnavailable
		}
		e.verifyStore.Remove(record.Email)
		e.metricInc(MetricEmailVerified)
		return &VerifyEmailResult{ProfileToken: profileSecret}, nil
	}

	account, err := e.store.FindByID(ctx, record.AccountID)
	if err != nil {
		e.verifyStore.Remove(record.Email)
		return nil, ErrChallengeExpired
	}
	if !strings.EqualFold(account.Email, record.Email) {
		return nil, ErrChallengeExpired
	}

	account.Status = StatusActive
	account.EmailVerified = true
	if err := e.store.Save(ctx, account); err != nil {
		return nil, ErrStoreUnavailable
	}
	e.verifyStore.Remove(record.Email)

	e.metricInc(MetricEmailVerified)
	return &VerifyEmailResult{Account: account}, nil
}

// CompleteProfile finishes the two-step flow: the profile token proves
// the address was verified, so the account is created active.
func (e *Engine) CompleteProfile(ctx context.Context, profileSecret string, req SignupRequest) (*Account, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	record, ok := e.profileStore.Get(profileSecret)
	if !ok || !record.EmailVerified {
		return nil, ErrChallengeExpired
	}

	req.Email = record.Email
	if err := validateSignup(req); err != nil {
		return nil, err
	}
	if err := e.checkDuplicate(ctx, req.Email, req.Username); err != nil {
		return nil, err
	}

	hash, err := e.passwordHash.Hash(req.Password)
	if err != nil {
		return nil, ErrValidation
	}

	account := &Account{
		ID:            uuid.NewString(),
		Kind:          KindLocal,
		Status:        StatusActive,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         record.Email,
		Username:      req.Username,
		EmailVerified: true,
		Local: &LocalSecurity{
			PasswordHash:    hash,
			PasswordHistory: []string{hash},
		},
		CreatedAt:     time.Now(),
	}
	if err := e.store.Create(ctx, account); err != nil {
		return nil, ErrStoreUnavailable
	}
	e.profileStore.Remove(profileSecret)

	e.metricInc(MetricSignupSuccess)
	return account, nil
}

// ResendVerification re-sends the verification email. An unexpired
// pending entry is reused so resending cannot invalidate a link already
// in the user's inbox.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if !validEmail(email) {
		return ErrValidation
	}

	secret := ""
	if existing, ok := e.verifyStore.Get(email); ok {
		secret = existing.Secret
	} else {
		account, err := e.store.FindByEmail(ctx, email)
		if err != nil || account.Status != StatusUnverified {
			// Same outcome for unknown and already-verified addresses.
			return nil
		}
		minted, err := e.verifyStore.Save(email, ephemeral.Record{
			AccountID: account.ID,
			Email:     email,
		})
		if err != nil {
			return ErrStoreUnavailable
		}
		secret = minted
	}

	if err := e.sendCritical(ctx, NotifyVerifyEmail, email, map[string]string{"token": secret}); err != nil {
		return ErrNotificationFailed
	}
	return nil
}

// CancelSignup abandons a pending signup: the unverified account (if
// any) and every ephemeral token tied to the address are removed.
func (e *Engine) CancelSignup(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)

	if account, err := e.store.FindByEmail(ctx, email); err == nil {
		if account.Status != StatusUnverified {
			return ErrValidation
		}
		if err := e.store.Delete(ctx, account.ID); err != nil {
			return ErrStoreUnavailable
		}
		e.challengeStore.RemoveAllFor(account.ID)
	}

	e.verifyStore.RemoveAllFor(email)
	e.profileStore.RemoveAllFor(email)
	e.resetStore.RemoveAllFor(email)
	return nil
}

func (e *Engine) checkDuplicate(ctx context.Context, email, username string) error {
	if _, err := e.store.FindByEmail(ctx, normalizeEmail(email)); err == nil {
		e.metricInc(MetricSignupDuplicate)
		return ErrDuplicateAccount
	}
	if username != "" {
		if _, err := e.store.FindByUsername(ctx, username); err == nil {
			e.metricInc(MetricSignupDuplicate)
			return ErrDuplicateAccount
		}
	}
	return nil
}

func validateSignup(req SignupRequest) error {
	if !validEmail(req.Email) {
		return ErrValidation
	}
	if len(req.Password) < 10 {
		return ErrValidation
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return ErrValidation
	}
	return nil
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\n")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
