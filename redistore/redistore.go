// Package redistore provides a Redis-backed AccountStore. Each account
// is one JSON value keyed by id, with email and username kept as index
// keys pointing back at the id so lookups stay O(1).
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/halverstam/accountd"
)

const (
	accountKeyPrefix  = "account:"
	emailKeyPrefix    = "account:email:"
	usernameKeyPrefix = "account:username:"
)

// Store implements accountd.AccountStore on top of Redis.
type Store struct {
	client redis.UniversalClient
}

// New wraps an existing Redis client. The client's lifecycle belongs to
// the caller.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// record is the persisted shape. It is versioned separately from
// accountd.Account so the wire format does not shift when the engine
// types grow fields.
type record struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Status        string    `json:"status"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	Email         string    `json:"email"`
	Username      string    `json:"username,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`

	PasswordHash        string     `json:"passwordHash,omitempty"`
	PasswordHistory     []string   `json:"passwordHistory,omitempty"`
	FailedLoginAttempts int        `json:"failedLoginAttempts,omitempty"`
	LockoutUntil        *time.Time `json:"lockoutUntil,omitempty"`
	SessionTimeoutSec   int64      `json:"sessionTimeoutSec,omitempty"`

	Provider          string `json:"provider,omitempty"`
	ProviderAccountID string `json:"providerAccountId,omitempty"`

	TwoFactorEnabled bool     `json:"twoFactorEnabled,omitempty"`
	TwoFactorSecret  []byte   `json:"twoFactorSecret,omitempty"`
	PendingSecret    []byte   `json:"pendingSecret,omitempty"`
	BackupCodeHashes [][]byte `json:"backupCodeHashes,omitempty"`
}

func (s *Store) FindByID(ctx context.Context, id string) (*accountd.Account, error) {
	return s.load(ctx, accountKeyPrefix+id)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*accountd.Account, error) {
	return s.loadByIndex(ctx, emailKeyPrefix+strings.ToLower(email))
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*accountd.Account, error) {
	return s.loadByIndex(ctx, usernameKeyPrefix+strings.ToLower(username))
}

func (s *Store) Create(ctx context.Context, account *accountd.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	data, err := marshalAccount(account)
	if err != nil {
		return err
	}

	emailKey := emailKeyPrefix + strings.ToLower(account.Email)
	ok, err := s.client.SetNX(ctx, emailKey, account.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return accountd.ErrDuplicateAccount
	}

	if account.Username != "" {
		usernameKey := usernameKeyPrefix + strings.ToLower(account.Username)
		ok, err := s.client.SetNX(ctx, usernameKey, account.ID, 0).Result()
		if err != nil {
			s.client.Del(ctx, emailKey)
			return err
		}
		if !ok {
			s.client.Del(ctx, emailKey)
			return accountd.ErrDuplicateAccount
		}
	}

	if err := s.client.Set(ctx, accountKeyPrefix+account.ID, data, 0).Err(); err != nil {
		s.client.Del(ctx, emailKey)
		if account.Username != "" {
			s.client.Del(ctx, usernameKeyPrefix+strings.ToLower(account.Username))
		}
		return err
	}
	return nil
}

func (s *Store) Save(ctx context.Context, account *accountd.Account) error {
	prev, err := s.load(ctx, accountKeyPrefix+account.ID)
	if err != nil {
		return err
	}
	data, err := marshalAccount(account)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	if !strings.EqualFold(prev.Email, account.Email) {
		pipe.Del(ctx, emailKeyPrefix+strings.ToLower(prev.Email))
		pipe.Set(ctx, emailKeyPrefix+strings.ToLower(account.Email), account.ID, 0)
	}
	if !strings.EqualFold(prev.Username, account.Username) {
		if prev.Username != "" {
			pipe.Del(ctx, usernameKeyPrefix+strings.ToLower(prev.Username))
		}
		if account.Username != "" {
			pipe.Set(ctx, usernameKeyPrefix+strings.ToLower(account.Username), account.ID, 0)
		}
	}
	pipe.Set(ctx, accountKeyPrefix+account.ID, data, 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	account, err := s.load(ctx, accountKeyPrefix+id)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, accountKeyPrefix+id)
	pipe.Del(ctx, emailKeyPrefix+strings.ToLower(account.Email))
	if account.Username != "" {
		pipe.Del(ctx, usernameKeyPrefix+strings.ToLower(account.Username))
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) loadByIndex(ctx context.Context, indexKey string) (*accountd.Account, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, accountd.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.load(ctx, accountKeyPrefix+id)
}

func (s *Store) load(ctx context.Context, key string) (*accountd.Account, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, accountd.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return unmarshalAccount(&rec), nil
}

func marshalAccount(account *accountd.Account) ([]byte, error) {
	rec := record{
		ID:            account.ID,
		Kind:          string(account.Kind),
		Status:        string(account.Status),
		FirstName:     account.FirstName,
		LastName:      account.LastName,
		Email:         strings.ToLower(account.Email),
		Username:      account.Username,
		EmailVerified: account.EmailVerified,
		CreatedAt:     account.CreatedAt,
	}
	if account.Local != nil {
		rec.PasswordHash = account.Local.PasswordHash
		rec.PasswordHistory = account.Local.PasswordHistory
		rec.FailedLoginAttempts = account.Local.FailedLoginAttempts
		rec.LockoutUntil = account.Local.LockoutUntil
		rec.SessionTimeoutSec = int64(account.Local.SessionTimeout / time.Second)
	}
	if account.OAuth != nil {
		rec.Provider = account.OAuth.Provider
		rec.ProviderAccountID = account.OAuth.ProviderAccountID
	}
	rec.TwoFactorEnabled = account.TwoFactor.Enabled
	rec.TwoFactorSecret = account.TwoFactor.Secret
	rec.PendingSecret = account.TwoFactor.PendingSecret
	for _, h := range account.TwoFactor.BackupCodeHashes {
		hash := h
		rec.BackupCodeHashes = append(rec.BackupCodeHashes, hash[:])
	}
	return json.Marshal(&rec)
}

func unmarshalAccount(rec *record) *accountd.Account {
	account := &accountd.Account{
		ID:            rec.ID,
		Kind:          accountd.AccountKind(rec.Kind),
		Status:        accountd.AccountStatus(rec.Status),
		FirstName:     rec.FirstName,
		LastName:      rec.LastName,
		Email:         rec.Email,
		Username:      rec.Username,
		EmailVerified: rec.EmailVerified,
		CreatedAt:     rec.CreatedAt,
	}
	if account.Kind == accountd.KindLocal {
		account.Local = &accountd.LocalSecurity{
			PasswordHash:        rec.PasswordHash,
			PasswordHistory:     rec.PasswordHistory,
			FailedLoginAttempts: rec.FailedLoginAttempts,
			LockoutUntil:        rec.LockoutUntil,
			SessionTimeout:      time.Duration(rec.SessionTimeoutSec) * time.Second,
		}
	}
	if rec.Provider != "" {
		account.OAuth = &accountd.OAuthIdentity{
			Provider:          rec.Provider,
			ProviderAccountID: rec.ProviderAccountID,
		}
	}
	account.TwoFactor.Enabled = rec.TwoFactorEnabled
	account.TwoFactor.Secret = rec.TwoFactorSecret
	account.TwoFactor.PendingSecret = rec.PendingSecret
	for _, h := range rec.BackupCodeHashes {
		var hash [32]byte
		copy(hash[:], h)
		account.TwoFactor.BackupCodeHashes = append(account.TwoFactor.BackupCodeHashes, hash)
	}
	return account
}
