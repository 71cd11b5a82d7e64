package accountd

import "testing"

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 {
		t.Fatalf("expected 2 login successes, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("expected 1 logout, got %d", snap.Counters[MetricLogout])
	}
	if snap.Counters[MetricRefreshFailure] != 0 {
		t.Fatal("expected untouched counter to be zero")
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m := NewMetrics(MetricsConfig{})

	m.Inc(MetricLoginSuccess)
	if got := m.Snapshot().Counters[MetricLoginSuccess]; got != 0 {
		t.Fatalf("expected disabled metrics to stay zero, got %d", got)
	}
}

func TestEveryMetricHasAName(t *testing.T) {
	seen := make(map[string]MetricID)
	for _, id := range MetricIDs() {
		name := id.Name()
		if name == "" || name == "unknown" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, dup := seen[name]; dup {
			t.Fatalf("name %q shared by %d and %d", name, prev, id)
		}
		seen[name] = id
	}
	if MetricID(metricIDCount).Name() != "unknown" {
		t.Fatal("expected out-of-range id to report unknown")
	}
}
