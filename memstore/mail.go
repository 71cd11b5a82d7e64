package memstore

import (
	"context"
	"sync"

	"github.com/halverstam/accountd"
)

// Mail is one captured notification.
type Mail struct {
	Kind      accountd.NotificationKind
	Recipient string
	Vars      map[string]string
}

// MailRecorder is an accountd.Notifier that captures every send instead
// of delivering it. FailKinds lets a test force synchronous failures
// for specific kinds.
type MailRecorder struct {
	mu        sync.Mutex
	sent      []Mail
	FailKinds map[accountd.NotificationKind]error
}

// NewMailRecorder creates an empty recorder.
func NewMailRecorder() *MailRecorder {
	return &MailRecorder{}
}

func (r *MailRecorder) Send(_ context.Context, kind accountd.NotificationKind, recipient string, vars map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.FailKinds[kind]; ok {
		return err
	}
	r.sent = append(r.sent, Mail{Kind: kind, Recipient: recipient, Vars: vars})
	return nil
}

// Sent copies the captured notifications.
func (r *MailRecorder) Sent() []Mail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mail(nil), r.sent...)
}

// LastFor returns the most recent notification sent to recipient, if
// any.
func (r *MailRecorder) LastFor(recipient string) (Mail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].Recipient == recipient {
			return r.sent[i], true
		}
	}
	return Mail{}, false
}
