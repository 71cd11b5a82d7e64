package accountd

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSignupSuccess counts created accounts.
	MetricSignupSuccess MetricID = iota
	// MetricSignupDuplicate counts signups rejected for an existing
	// email or username.
	MetricSignupDuplicate
	// MetricEmailVerified counts completed email verifications.
	MetricEmailVerified
	// MetricLoginSuccess counts completed logins, 2FA included.
	MetricLoginSuccess
	// MetricLoginFailure counts rejected credential checks.
	MetricLoginFailure
	// MetricLoginLocked counts logins refused during a lockout window.
	MetricLoginLocked
	// MetricLockoutTriggered counts lockout windows opened.
	MetricLockoutTriggered
	// MetricTwoFactorRequired counts logins parked behind a challenge.
	MetricTwoFactorRequired
	// MetricTwoFactorFailure counts rejected 2FA codes.
	MetricTwoFactorFailure
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricRefreshSuccess counts re-issued access tokens.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refresh tokens.
	MetricRefreshFailure
	// MetricPasswordChanged counts password changes and resets.
	MetricPasswordChanged
	// MetricPasswordReuseRejected counts history-rule rejections.
	MetricPasswordReuseRejected
	// MetricLogout counts single-account logouts.
	MetricLogout
	// MetricLogoutAll counts full-session logouts.
	MetricLogoutAll
	// MetricNotifyDropped counts best-effort notifications abandoned
	// after their retry budget.
	MetricNotifyDropped

	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricSignupSuccess:         "signup_success_total",
	MetricSignupDuplicate:       "signup_duplicate_total",
	MetricEmailVerified:         "email_verified_total",
	MetricLoginSuccess:          "login_success_total",
	MetricLoginFailure:          "login_failure_total",
	MetricLoginLocked:           "login_locked_total",
	MetricLockoutTriggered:      "lockout_triggered_total",
	MetricTwoFactorRequired:     "two_factor_required_total",
	MetricTwoFactorFailure:      "two_factor_failure_total",
	MetricBackupCodeUsed:        "backup_code_used_total",
	MetricRefreshSuccess:        "refresh_success_total",
	MetricRefreshFailure:        "refresh_failure_total",
	MetricPasswordChanged:       "password_changed_total",
	MetricPasswordReuseRejected: "password_reuse_rejected_total",
	MetricLogout:                "logout_total",
	MetricLogoutAll:             "logout_all_total",
	MetricNotifyDropped:         "notify_dropped_total",
}

// Name returns the stable exporter-facing name of the counter.
func (id MetricID) Name() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// MetricIDs lists every counter, in stable order, for exporters.
func MetricIDs() []MetricID {
	out := make([]MetricID, metricIDCount)
	for i := range out {
		out[i] = MetricID(i)
	}
	return out
}

// Metrics is a fixed set of atomic counters. A disabled instance is a
// no-op on every path.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// NewMetrics creates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for i := range m.counters {
		snap.Counters[MetricID(i)] = m.counters[i].Load()
	}
	return snap
}
