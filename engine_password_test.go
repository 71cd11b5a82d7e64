package accountd

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestChangePasswordWrongCurrent(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	account := seedLocalAccount(t, engine, store, "alice@example.com", "original-pass-1")

	err := engine.ChangePassword(context.Background(), account.ID, "wrong-pass-999", "next-password-1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordHistoryWindow(t *testing.T) {
	store := newMockStore()
	engine := newTestEngine(t, store, &mockNotifier{})
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "bob@example.com", "password-gen-1")

	// Immediate reuse of the current password is rejected.
	if err := engine.ChangePassword(ctx, account.ID, "password-gen-1", "password-gen-1"); !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse for current password, got %v", err)
	}

	// Rotate through five generations: 1 -> 2 -> 3 -> 4 -> 5 -> 6.
	for i := 1; i < 6; i++ {
		current := fmt.Sprintf("password-gen-%d", i)
		next := fmt.Sprintf("password-gen-%d", i+1)
		if err := engine.ChangePassword(ctx, account.ID, current, next); err != nil {
			t.Fatalf("change %s -> %s failed: %v", current, next, err)
		}
	}

	// Generations 2..6 are still inside the window.
	for i := 2; i <= 6; i++ {
		err := engine.ChangePassword(ctx, account.ID, "password-gen-6", fmt.Sprintf("password-gen-%d", i))
		if !errors.Is(err, ErrPasswordReuse) {
			t.Fatalf("expected ErrPasswordReuse for generation %d, got %v", i, err)
		}
	}

	// Generation 1 has aged out and is allowed again.
	if err := engine.ChangePassword(ctx, account.ID, "password-gen-6", "password-gen-1"); err != nil {
		t.Fatalf("expected generation 1 to be reusable, got %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, store, notifier)
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "carol@example.com", "original-pass-1")

	if err := engine.RequestPasswordReset(ctx, "carol@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	mail, ok := notifier.lastFor("carol@example.com")
	if !ok || mail.kind != NotifyPasswordReset {
		t.Fatalf("expected reset mail, got %+v ok=%v", mail, ok)
	}

	if err := engine.ConfirmPasswordReset(ctx, mail.vars["token"], "brand-new-pass-1"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	ok, err := engine.passwordHash.Verify("brand-new-pass-1", store.get(account.ID).Local.PasswordHash)
	if err != nil || !ok {
		t.Fatalf("new password verify failed, ok=%v err=%v", ok, err)
	}

	// The secret is consumed.
	if err := engine.ConfirmPasswordReset(ctx, mail.vars["token"], "another-pass-123"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired on reuse, got %v", err)
	}
}

func TestPasswordResetDoesNotRevealAccounts(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, store, notifier)
	ctx := context.Background()

	if err := engine.RequestPasswordReset(ctx, "unknown@example.com"); err != nil {
		t.Fatalf("expected silent success for unknown address, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("expected no mail for unknown address")
	}

	// OAuth accounts have no password; same silent success.
	if err := store.Create(ctx, &Account{
		Kind:          KindOAuth,
		Status:        StatusActive,
		Email:         "oauth@example.com",
		EmailVerified: true,
		OAuth:         &OAuthIdentity{Provider: "google", ProviderAccountID: "7"},
	}); err != nil {
		t.Fatalf("seed oauth account failed: %v", err)
	}
	if err := engine.RequestPasswordReset(ctx, "oauth@example.com"); err != nil {
		t.Fatalf("expected silent success for oauth account, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("expected no mail for oauth account")
	}
}

func TestPasswordResetInvalidatesEarlierSecret(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, store, notifier)
	ctx := context.Background()
	seedLocalAccount(t, engine, store, "dave@example.com", "original-pass-1")

	if err := engine.RequestPasswordReset(ctx, "dave@example.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first, _ := notifier.lastFor("dave@example.com")

	if err := engine.RequestPasswordReset(ctx, "dave@example.com"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second, _ := notifier.lastFor("dave@example.com")

	if first.vars["token"] == second.vars["token"] {
		t.Fatal("expected a fresh secret per request")
	}
	if err := engine.ConfirmPasswordReset(ctx, first.vars["token"], "brand-new-pass-1"); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected first secret invalidated, got %v", err)
	}
	if err := engine.ConfirmPasswordReset(ctx, second.vars["token"], "brand-new-pass-1"); err != nil {
		t.Fatalf("second secret failed: %v", err)
	}
}

func TestPasswordResetClearsLockout(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	engine := newTestEngine(t, store, notifier)
	ctx := context.Background()
	account := seedLocalAccount(t, engine, store, "erin@example.com", "original-pass-1")

	locked := store.get(account.ID)
	until := time.Now().Add(10 * time.Minute)
	locked.Local.FailedLoginAttempts = 5
	locked.Local.LockoutUntil = &until
	if err := store.Save(ctx, locked); err != nil {
		t.Fatalf("seed lockout failed: %v", err)
	}

	if err := engine.RequestPasswordReset(ctx, "erin@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	mail, _ := notifier.lastFor("erin@example.com")
	if err := engine.ConfirmPasswordReset(ctx, mail.vars["token"], "brand-new-pass-1"); err != nil {
		t.Fatalf("ConfirmPasswordReset failed: %v", err)
	}

	after := store.get(account.ID)
	if after.Local.FailedLoginAttempts != 0 || after.Local.LockoutUntil != nil {
		t.Fatalf("expected lockout cleared, got %+v", after.Local)
	}
}

func TestPasswordResetRollsBackWhenMailFails(t *testing.T) {
	store := newMockStore()
	notifier := &mockNotifier{}
	notifier.setFail(NotifyPasswordReset, errSendFailed)
	engine := newTestEngine(t, store, notifier)
	ctx := context.Background()
	seedLocalAccount(t, engine, store, "finn@example.com", "original-pass-1")

	if err := engine.RequestPasswordReset(ctx, "finn@example.com"); !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if engine.resetStore.Len() != 0 {
		t.Fatal("expected reset secret rolled back")
	}
}
