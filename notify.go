package accountd

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type notification struct {
	kind      NotificationKind
	recipient string
	vars      map[string]string
}

// notifyDispatcher delivers best-effort notifications off the request
// path: a buffered channel feeds one worker that retries each send a
// bounded number of times with a fixed delay, then gives up. Failures
// are logged and counted, never surfaced. Critical emails (verification,
// password reset) do not pass through here; the engine sends those
// synchronously so it can roll back on failure.
type notifyDispatcher struct {
	cfg       NotifyConfig
	notifier  Notifier
	logger    *slog.Logger
	metrics   *Metrics
	ch        chan notification
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newNotifyDispatcher(cfg NotifyConfig, notifier Notifier, logger *slog.Logger, metrics *Metrics) *notifyDispatcher {
	if notifier == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &notifyDispatcher{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		ch:       make(chan notification, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *notifyDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case n := <-d.ch:
			d.deliver(n)
		case <-d.done:
			for {
				select {
				case n := <-d.ch:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) deliver(n notification) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
		lastErr = d.notifier.Send(ctx, n.kind, n.recipient, n.vars)
		cancel()
		if lastErr == nil {
			return
		}
		if attempt < d.cfg.MaxAttempts {
			time.Sleep(d.cfg.RetryDelay)
		}
	}

	d.dropped.Add(1)
	d.metrics.Inc(MetricNotifyDropped)
	if d.logger != nil {
		d.logger.Warn("notification delivery abandoned",
			"kind", string(n.kind),
			"attempts", d.cfg.MaxAttempts,
			"error", lastErr,
		)
	}
}

// Enqueue hands a notification to the worker. A full buffer drops the
// notification rather than blocking the request path.
func (d *notifyDispatcher) Enqueue(kind NotificationKind, recipient string, vars map[string]string) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- notification{kind: kind, recipient: recipient, vars: vars}:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.metrics.Inc(MetricNotifyDropped)
		if d.logger != nil {
			d.logger.Warn("notification buffer full, dropped", "kind", string(kind))
		}
	}
}

// Dropped reports notifications abandoned or shed so far.
func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close drains the buffer and stops the worker.
func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
