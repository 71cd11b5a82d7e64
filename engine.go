package accountd

import (
	"context"
	"log/slog"
	"time"

	"github.com/halverstam/accountd/ephemeral"
	"github.com/halverstam/accountd/password"
	"github.com/halverstam/accountd/session"
	"github.com/halverstam/accountd/token"
)

// Engine is the account lifecycle core: signup and email verification,
// login with lockout and 2FA, password change and reset, bearer token
// issuance and refresh, and the multi-account session. HTTP routing,
// rendering, and persistence engines live outside; the engine talks to
// them through AccountStore and Notifier.
type Engine struct {
	config       Config
	store        AccountStore
	notifier     Notifier
	oauthHook    OAuthTokenHook
	logger       *slog.Logger
	codec        *token.Codec
	sessions     *session.Encoder
	cookies      *cookiePolicy
	passwordHash *password.Hasher
	totp         *totpManager
	metrics      *Metrics
	dispatcher   *notifyDispatcher

	verifyStore    *ephemeral.Store
	profileStore   *ephemeral.Store
	resetStore     *ephemeral.Store
	challengeStore *ephemeral.Store
}

// Close drains the notification dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.dispatcher != nil {
		e.dispatcher.Close()
	}
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() Snapshot {
	if e == nil || e.metrics == nil {
		return Snapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// NotificationsDropped reports best-effort notifications abandoned so
// far.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.dispatcher.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Warn(msg, args...)
}

// sendCritical delivers a notification synchronously. The caller rolls
// back whatever state change triggered it when this fails.
func (e *Engine) sendCritical(ctx context.Context, kind NotificationKind, recipient string, vars map[string]string) error {
	timeout := e.config.Notify.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return e.notifier.Send(sendCtx, kind, recipient, vars)
}

// notifyAsync queues a best-effort notification. Failures are logged by
// the dispatcher and never surfaced.
func (e *Engine) notifyAsync(kind NotificationKind, recipient string, vars map[string]string) {
	e.dispatcher.Enqueue(kind, recipient, vars)
}

// findForLogin resolves the identifier to an account. Both a store miss
// and a later password mismatch surface as ErrInvalidCredentials.
func (e *Engine) findForLogin(ctx context.Context, email string) (*Account, error) {
	account, err := e.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func statusToError(status AccountStatus, emailVerified bool) error {
	switch status {
	case StatusSuspended:
		return ErrAccountSuspended
	case StatusInactive:
		return ErrAccountSuspended
	case StatusUnverified:
		return ErrAccountUnverified
	}
	if !emailVerified {
		return ErrAccountUnverified
	}
	return nil
}
