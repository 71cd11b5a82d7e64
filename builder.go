package accountd

import (
	"errors"
	"log/slog"

	"github.com/halverstam/accountd/ephemeral"
	"github.com/halverstam/accountd/password"
	"github.com/halverstam/accountd/session"
	"github.com/halverstam/accountd/token"
)

// Builder assembles an Engine. Construction is explicit: every
// collaborator and the full configuration are passed in before Build,
// and the resulting engine holds no global state.
type Builder struct {
	config   Config
	store    AccountStore
	notifier Notifier
	hook     OAuthTokenHook
	logger   *slog.Logger

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account record store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the outbound email sender. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithOAuthHook sets the third-party token refresh/revocation hook.
// Optional; without it, OAuth refresh re-issues tokens unchanged and
// revocation only clears local state.
func (b *Builder) WithOAuthHook(hook OAuthTokenHook) *Builder {
	b.hook = hook
	return b
}

// WithLogger sets the structured logger. Optional; a nil logger
// silences best-effort warnings.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration, wires every component, and returns
// a ready engine. A builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	codec, err := token.NewCodec(token.Config{
		Secret:     cfg.Token.Secret,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewEncoder(cfg.Session.Secret)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.Metrics)

	engine := &Engine{
		config:         cfg,
		store:          b.store,
		notifier:       b.notifier,
		oauthHook:      b.hook,
		logger:         b.logger,
		codec:          codec,
		sessions:       sessions,
		cookies:        newCookiePolicy(cfg.Cookie, cfg.Token.AccessTTL),
		passwordHash:   hasher,
		totp:           newTOTPManager(cfg.TOTP),
		metrics:        metrics,
		verifyStore:    ephemeral.New(cfg.Ephemeral.Capacity, cfg.Ephemeral.EmailVerificationTTL),
		profileStore:   ephemeral.New(cfg.Ephemeral.Capacity, cfg.Ephemeral.ProfileCompletionTTL),
		resetStore:     ephemeral.New(cfg.Ephemeral.Capacity, cfg.Ephemeral.PasswordResetTTL),
		challengeStore: ephemeral.New(cfg.Ephemeral.Capacity, cfg.Ephemeral.TwoFactorChallengeTTL),
	}
	engine.dispatcher = newNotifyDispatcher(cfg.Notify, b.notifier, b.logger, metrics)

	b.built = true

	return engine, nil
}
