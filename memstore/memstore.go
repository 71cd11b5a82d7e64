// Package memstore provides an in-memory AccountStore suitable for
// tests and single-process deployments. Records are deep-copied on the
// way in and out so callers cannot mutate stored state behind the
// store's back.
package memstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/halverstam/accountd"
)

// Store is a map-backed accountd.AccountStore with secondary indexes on
// email and username.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*accountd.Account
	byEmail    map[string]string
	byUsername map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID:       make(map[string]*accountd.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (s *Store) FindByID(_ context.Context, id string) (*accountd.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[id]
	if !ok {
		return nil, accountd.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*accountd.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, accountd.ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (*accountd.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[strings.ToLower(username)]
	if !ok {
		return nil, accountd.ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *Store) Create(_ context.Context, account *accountd.Account) error {
	if err := checkShape(account); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if _, exists := s.byID[account.ID]; exists {
		return accountd.ErrDuplicateAccount
	}
	emailKey := strings.ToLower(account.Email)
	if _, exists := s.byEmail[emailKey]; exists {
		return accountd.ErrDuplicateAccount
	}
	usernameKey := strings.ToLower(account.Username)
	if usernameKey != "" {
		if _, exists := s.byUsername[usernameKey]; exists {
			return accountd.ErrDuplicateAccount
		}
	}

	s.byID[account.ID] = cloneAccount(account)
	s.byEmail[emailKey] = account.ID
	if usernameKey != "" {
		s.byUsername[usernameKey] = account.ID
	}
	return nil
}

func (s *Store) Save(_ context.Context, account *accountd.Account) error {
	if err := checkShape(account); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[account.ID]
	if !ok {
		return accountd.ErrAccountNotFound
	}

	// Reindex when email or username changed.
	if !strings.EqualFold(prev.Email, account.Email) {
		delete(s.byEmail, strings.ToLower(prev.Email))
		s.byEmail[strings.ToLower(account.Email)] = account.ID
	}
	if !strings.EqualFold(prev.Username, account.Username) {
		delete(s.byUsername, strings.ToLower(prev.Username))
		if account.Username != "" {
			s.byUsername[strings.ToLower(account.Username)] = account.ID
		}
	}

	s.byID[account.ID] = cloneAccount(account)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok {
		return accountd.ErrAccountNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, strings.ToLower(account.Email))
	if account.Username != "" {
		delete(s.byUsername, strings.ToLower(account.Username))
	}
	return nil
}

// Len reports the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// checkShape rejects records that mix the kind-specific sub-records: a
// local account never carries provider linkage, an oauth account never
// carries password state.
func checkShape(account *accountd.Account) error {
	if account == nil || account.Email == "" {
		return errors.New("memstore: account email required")
	}
	switch account.Kind {
	case accountd.KindLocal:
		if account.OAuth != nil {
			return errors.New("memstore: local account with oauth identity")
		}
	case accountd.KindOAuth:
		if account.Local != nil {
			return errors.New("memstore: oauth account with password state")
		}
	default:
		return errors.New("memstore: unknown account kind")
	}
	return nil
}

func cloneAccount(in *accountd.Account) *accountd.Account {
	out := *in
	if in.Local != nil {
		local := *in.Local
		local.PasswordHistory = append([]string(nil), in.Local.PasswordHistory...)
		if in.Local.LockoutUntil != nil {
			until := *in.Local.LockoutUntil
			local.LockoutUntil = &until
		}
		out.Local = &local
	}
	if in.OAuth != nil {
		oauth := *in.OAuth
		out.OAuth = &oauth
	}
	out.TwoFactor.Secret = append([]byte(nil), in.TwoFactor.Secret...)
	out.TwoFactor.PendingSecret = append([]byte(nil), in.TwoFactor.PendingSecret...)
	out.TwoFactor.BackupCodeHashes = append([][32]byte(nil), in.TwoFactor.BackupCodeHashes...)
	return &out
}
