package accountd

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/halverstam/accountd/session"
)

func TestSetup2FARequiresPassword(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	account := seedLocalAccount(t, engine, store, "alice@example.com", "correct-password-1")

	if _, err := engine.Setup2FA(context.Background(), account.ID, "wrong-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSetup2FAPendingSecretIsStable(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "bob@example.com", "correct-password-1")

	first, err := engine.Setup2FA(ctx, account.ID, "correct-password-1")
	if err != nil {
		t.Fatalf("Setup2FA failed: %v", err)
	}
	second, err := engine.Setup2FA(ctx, account.ID, "correct-password-1")
	if err != nil {
		t.Fatalf("repeat Setup2FA failed: %v", err)
	}
	if first.SecretBase32 != second.SecretBase32 {
		t.Fatal("expected repeated setup to return the same pending secret")
	}
	if !strings.HasPrefix(first.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI %q", first.URI)
	}
	if !strings.Contains(first.URI, "bob@example.com") {
		t.Fatalf("expected account label in URI, got %q", first.URI)
	}
}

func TestConfirm2FASetupWrongCodeKeepsPending(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "carol@example.com", "correct-password-1")

	if _, err := engine.Setup2FA(ctx, account.ID, "correct-password-1"); err != nil {
		t.Fatalf("Setup2FA failed: %v", err)
	}
	if _, err := engine.Confirm2FASetup(ctx, account.ID, "000000"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}

	stored := store.get(account.ID)
	if stored.TwoFactor.Enabled {
		t.Fatal("expected 2FA still disabled")
	}
	if len(stored.TwoFactor.PendingSecret) == 0 {
		t.Fatal("expected pending secret preserved for retry")
	}

	code := totpCodeFor(stored.TwoFactor.PendingSecret, engine.config.TOTP, time.Now())
	codes, err := engine.Confirm2FASetup(ctx, account.ID, code)
	if err != nil {
		t.Fatalf("Confirm2FASetup failed: %v", err)
	}
	if len(codes) != engine.config.TOTP.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", engine.config.TOTP.BackupCodeCount, len(codes))
	}

	after := store.get(account.ID)
	if !after.TwoFactor.Enabled || len(after.TwoFactor.PendingSecret) != 0 {
		t.Fatalf("expected enrollment promoted, got %+v", after.TwoFactor)
	}
	if !bytes.Equal(after.TwoFactor.Secret, stored.TwoFactor.PendingSecret) {
		t.Fatal("expected pending secret promoted to active secret")
	}
}

func TestRegenerateBackupCodesReplacesSet(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "dana@example.com", "correct-password-1")
	oldCodes := enrollTwoFactor(t, engine, store, account.ID, "correct-password-1")

	// A wrong gate code changes nothing.
	if _, err := engine.RegenerateBackupCodes(ctx, account.ID, "000000"); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected ErrTwoFactorInvalid, got %v", err)
	}

	code := totpCodeFor(store.get(account.ID).TwoFactor.Secret, engine.config.TOTP, time.Now())
	newCodes, err := engine.RegenerateBackupCodes(ctx, account.ID, code)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}

	// Old codes are dead after rotation.
	w := httptest.NewRecorder()
	sess := &session.Session{}
	result, err := engine.Login(ctx, w, sess, "dana@example.com", "correct-password-1", false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := engine.ConfirmLogin2FA(ctx, w, sess, result.ChallengeSecret, oldCodes[0], false); !errors.Is(err, ErrTwoFactorInvalid) {
		t.Fatalf("expected old backup code rejected, got %v", err)
	}
	if _, err := engine.ConfirmLogin2FA(ctx, w, sess, result.ChallengeSecret, newCodes[0], false); err != nil {
		t.Fatalf("new backup code failed: %v", err)
	}
}

func TestRegenerateBackupCodesRequiresEnrollment(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	account := seedLocalAccount(t, engine, store, "erin@example.com", "correct-password-1")

	if _, err := engine.RegenerateBackupCodes(context.Background(), account.ID, "123456"); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}

func TestDisable2FA(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "finn@example.com", "correct-password-1")
	enrollTwoFactor(t, engine, store, account.ID, "correct-password-1")

	if err := engine.Disable2FA(ctx, account.ID, "wrong-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// Park a login behind a challenge, then disable.
	w := httptest.NewRecorder()
	result, err := engine.Login(ctx, w, &session.Session{}, "finn@example.com", "correct-password-1", false)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := engine.Disable2FA(ctx, account.ID, "correct-password-1"); err != nil {
		t.Fatalf("Disable2FA failed: %v", err)
	}

	after := store.get(account.ID)
	if after.TwoFactor.Enabled || len(after.TwoFactor.Secret) != 0 || len(after.TwoFactor.BackupCodeHashes) != 0 {
		t.Fatalf("expected 2FA state cleared, got %+v", after.TwoFactor)
	}

	// The parked challenge died with the enrollment.
	if _, err := engine.ConfirmLogin2FA(ctx, w, &session.Session{}, result.ChallengeSecret, "123456", false); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}

	// Login is single-factor again.
	login := mustLogin(t, engine, &session.Session{}, "finn@example.com", "correct-password-1")
	if login.RequiresTwoFactor {
		t.Fatal("expected plain login after disable")
	}
}
