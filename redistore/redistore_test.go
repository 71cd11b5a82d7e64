package redistore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/halverstam/accountd"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client)
}

func sampleAccount() *accountd.Account {
	until := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &accountd.Account{
		Kind:          accountd.KindLocal,
		Status:        accountd.StatusActive,
		FirstName:     "Alice",
		LastName:      "Smith",
		Email:         "alice@example.com",
		Username:      "alice",
		EmailVerified: true,
		Local: &accountd.LocalSecurity{
			PasswordHash:        "$argon2id$...",
			PasswordHistory:     []string{"$argon2id$old"},
			FailedLoginAttempts: 2,
			LockoutUntil:        &until,
			SessionTimeout:      30 * time.Minute,
		},
		TwoFactor: accountd.TwoFactor{
			Enabled:          true,
			Secret:           []byte("12345678901234567890"),
			BackupCodeHashes: [][32]byte{{1, 2, 3}},
		},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndFindRoundTrip(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	account := sampleAccount()
	if err := s.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if account.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Email != "alice@example.com" || got.Username != "alice" {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.Local == nil || got.Local.FailedLoginAttempts != 2 || got.Local.SessionTimeout != 30*time.Minute {
		t.Fatalf("local security mismatch: %+v", got.Local)
	}
	if got.Local.LockoutUntil == nil || !got.Local.LockoutUntil.Equal(*account.Local.LockoutUntil) {
		t.Fatalf("lockout mismatch: %v", got.Local.LockoutUntil)
	}
	if !got.TwoFactor.Enabled || len(got.TwoFactor.BackupCodeHashes) != 1 {
		t.Fatalf("two-factor mismatch: %+v", got.TwoFactor)
	}
	if got.TwoFactor.BackupCodeHashes[0] != account.TwoFactor.BackupCodeHashes[0] {
		t.Fatal("backup code hash mismatch")
	}

	byEmail, err := s.FindByEmail(ctx, "ALICE@example.com")
	if err != nil || byEmail.ID != account.ID {
		t.Fatalf("FindByEmail failed: %v", err)
	}
	byUsername, err := s.FindByUsername(ctx, "ALICE")
	if err != nil || byUsername.ID != account.ID {
		t.Fatalf("FindByUsername failed: %v", err)
	}
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, sampleAccount()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := sampleAccount()
	dup.Username = "alice2"
	if err := s.Create(ctx, dup); !errors.Is(err, accountd.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	// The failed create must not leave a half-written username index.
	free := sampleAccount()
	free.Email = "alice2@example.com"
	free.Username = "alice2"
	if err := s.Create(ctx, free); err != nil {
		t.Fatalf("Create after conflict failed: %v", err)
	}
}

func TestSaveReindexes(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	account := sampleAccount()
	if err := s.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	account.Email = "renamed@example.com"
	account.Username = "renamed"
	if err := s.Save(ctx, account); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.FindByEmail(ctx, "alice@example.com"); !errors.Is(err, accountd.ErrAccountNotFound) {
		t.Fatalf("expected old email unindexed, got %v", err)
	}
	if _, err := s.FindByUsername(ctx, "alice"); !errors.Is(err, accountd.ErrAccountNotFound) {
		t.Fatalf("expected old username unindexed, got %v", err)
	}
	got, err := s.FindByEmail(ctx, "renamed@example.com")
	if err != nil || got.ID != account.ID {
		t.Fatalf("FindByEmail after rename failed: %v", err)
	}
}

func TestDeleteRemovesAllKeys(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	account := sampleAccount()
	if err := s.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Delete(ctx, account.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if len(mr.Keys()) != 0 {
		t.Fatalf("expected no keys left, got %v", mr.Keys())
	}
	if _, err := s.FindByID(ctx, account.ID); !errors.Is(err, accountd.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestOAuthAccountRoundTrip(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	account := &accountd.Account{
		Kind:          accountd.KindOAuth,
		Status:        accountd.StatusActive,
		Email:         "oauth@example.com",
		EmailVerified: true,
		OAuth: &accountd.OAuthIdentity{
			Provider:          "github",
			ProviderAccountID: "42",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Create(ctx, account); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.FindByID(ctx, account.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Local != nil {
		t.Fatal("expected no password state on oauth account")
	}
	if got.OAuth == nil || got.OAuth.Provider != "github" || got.OAuth.ProviderAccountID != "42" {
		t.Fatalf("oauth identity mismatch: %+v", got.OAuth)
	}
}
