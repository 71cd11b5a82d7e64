package accountd

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/halverstam/accountd/session"
)

type mockStore struct {
	mu       sync.Mutex
	accounts map[string]*Account

	createErr error
	saveErr   error
	saveCalls int
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[string]*Account)}
}

func (m *mockStore) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (m *mockStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if strings.EqualFold(account.Email, email) {
			return copyAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *mockStore) FindByUsername(_ context.Context, username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if strings.EqualFold(account.Username, username) {
			return copyAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *mockStore) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	m.accounts[account.ID] = copyAccount(account)
	return nil
}

func (m *mockStore) Save(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.accounts[account.ID]; !ok {
		return ErrAccountNotFound
	}
	m.accounts[account.ID] = copyAccount(account)
	return nil
}

func (m *mockStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *mockStore) get(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyAccount(m.accounts[id])
}

func (m *mockStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func copyAccount(in *Account) *Account {
	if in == nil {
		return nil
	}
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

type sentMail struct {
	kind      NotificationKind
	recipient string
	vars      map[string]string
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[NotificationKind]error
}

func (n *mockNotifier) Send(_ context.Context, kind NotificationKind, recipient string, vars map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err, ok := n.fail[kind]; ok {
		return err
	}
	n.sent = append(n.sent, sentMail{kind: kind, recipient: recipient, vars: vars})
	return nil
}

func (n *mockNotifier) setFail(kind NotificationKind, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail == nil {
		n.fail = make(map[NotificationKind]error)
	}
	if err == nil {
		delete(n.fail, kind)
		return
	}
	n.fail[kind] = err
}

func (n *mockNotifier) lastFor(recipient string) (sentMail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].recipient == recipient {
			return n.sent[i], true
		}
	}
	return sentMail{}, false
}

func (n *mockNotifier) countKind(kind NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Session.Secret = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Notify.MaxAttempts = 1
	cfg.Notify.RetryDelay = time.Millisecond
	cfg.Notify.SendTimeout = time.Second
	return cfg
}

func newTestEngine(t *testing.T, store AccountStore, notifier Notifier) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithStore(store).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// seedLocalAccount creates an active verified local account directly in
// the store, bypassing the signup flow.
func seedLocalAccount(t *testing.T, e *Engine, store *mockStore, email, passwd string) *Account {
	t.Helper()

	hash, err := e.passwordHash.Hash(passwd)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	account := &Account{
		ID:            uuid.NewString(),
		Kind:          KindLocal,
		Status:        StatusActive,
		FirstName:     "Test",
		LastName:      "User",
		Email:         email,
		EmailVerified: true,
		Local: &LocalSecurity{
			PasswordHash:    hash,
			PasswordHistory: []string{hash},
		},
		CreatedAt: time.Now(),
	}
	if err := store.Create(context.Background(), account); err != nil {
		t.Fatalf("seed account failed: %v", err)
	}
	return account
}

func mustLogin(t *testing.T, e *Engine, sess *session.Session, email, passwd string) *LoginResult {
	t.Helper()

	w := httptest.NewRecorder()
	result, err := e.Login(context.Background(), w, sess, email, passwd, true)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return result
}

var errSendFailed = errors.New("smtp unavailable")
