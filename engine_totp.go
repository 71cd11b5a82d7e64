package accountd

import (
	"context"
	"encoding/base32"
	"time"

	"github.com/halverstam/accountd/internal"
)

// Setup2FA begins TOTP enrollment. Local accounts must re-verify their
// password; oauth accounts have none, so possession of a valid bearer
// token is the bar there. The pending secret is stable: calling Setup2FA
// again before confirming returns the same secret, so a re-rendered QR
// code stays scannable.
func (e *Engine) Setup2FA(ctx context.Context, accountID, passwd string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if account.TwoFactor.Enabled {
		return nil, ErrValidation
	}
	if err := e.reverifyPassword(account, passwd); err != nil {
		return nil, err
	}

	secret := account.TwoFactor.PendingSecret
	if len(secret) == 0 {
		raw, _, err := e.totp.GenerateSecret()
		if err != nil {
			return nil, ErrValidation
		}
		account.TwoFactor.PendingSecret = raw
		if err := e.store.Save(ctx, account); err != nil {
			return nil, ErrStoreUnavailable
		}
		secret = raw
	}

	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
	return &TwoFactorSetup{
		SecretBase32: encoded,
		URI:          e.totp.ProvisionURI(encoded, account.Email),
	}, nil
}

// Confirm2FASetup proves the authenticator was provisioned by checking
// one code against the pending secret, then enables 2FA and returns the
// plaintext backup codes. This is the only time the codes are visible;
// only their hashes are stored.
func (e *Engine) Confirm2FASetup(ctx context.Context, accountID, code string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if account.TwoFactor.Enabled {
		return nil, ErrValidation
	}
	if len(account.TwoFactor.PendingSecret) == 0 {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TwoFactor.PendingSecret, code, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}

	codes, hashes, err := e.mintBackupCodes()
	if err != nil {
		return nil, ErrValidation
	}

	account.TwoFactor.Enabled = true
	account.TwoFactor.Secret = account.TwoFactor.PendingSecret
	account.TwoFactor.PendingSecret = nil
	account.TwoFactor.BackupCodeHashes = hashes
	if err := e.store.Save(ctx, account); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.notifyAsync(NotifyTwoFactorEnabled, account.Email, map[string]string{
		"firstName": account.FirstName,
	})
	return codes, nil
}

// RegenerateBackupCodes replaces the whole backup code set. A current
// TOTP code gates it so a stolen session alone cannot rotate the codes.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, totpCode string) ([]string, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	if !account.TwoFactor.Enabled {
		return nil, ErrTwoFactorNotEnabled
	}

	ok, err := e.totp.VerifyCode(account.TwoFactor.Secret, totpCode, time.Now())
	if err != nil || !ok {
		e.metricInc(MetricTwoFactorFailure)
		return nil, ErrTwoFactorInvalid
	}

	codes, hashes, err := e.mintBackupCodes()
	if err != nil {
		return nil, ErrValidation
	}
	account.TwoFactor.BackupCodeHashes = hashes
	if err := e.store.Save(ctx, account); err != nil {
		return nil, ErrStoreUnavailable
	}
	return codes, nil
}

// Disable2FA turns 2FA off and discards the secret and backup codes.
// Local accounts re-verify their password first.
func (e *Engine) Disable2FA(ctx context.Context, accountID, passwd string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		return ErrAccountNotFound
	}
	if !account.TwoFactor.Enabled {
		return ErrTwoFactorNotEnabled
	}
	if err := e.reverifyPassword(account, passwd); err != nil {
		return err
	}

	account.TwoFactor = TwoFactor{}
	if err := e.store.Save(ctx, account); err != nil {
		return ErrStoreUnavailable
	}

	// Pending login challenges minted under the old secret are void.
	e.challengeStore.RemoveAllFor(account.ID)
	return nil
}

func (e *Engine) reverifyPassword(account *Account, passwd string) error {
	if account.Kind != KindLocal || account.Local == nil {
		return nil
	}
	ok, err := e.passwordHash.Verify(passwd, account.Local.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	return nil
}

func (e *Engine) mintBackupCodes() ([]string, [][32]byte, error) {
	count := e.config.TOTP.BackupCodeCount
	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewBackupCode(e.config.TOTP.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, internal.HashBackupCode(code))
	}
	return codes, hashes, nil
}
