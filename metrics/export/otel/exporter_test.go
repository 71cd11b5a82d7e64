package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/halverstam/accountd"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot accountd.Snapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() accountd.Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := accountd.Snapshot{
		Counters: make(map[accountd.MetricID]uint64, len(f.snapshot.Counters)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	return out
}

func (f *fakeSource) NotificationsDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, metric.Meter) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return reader, provider.Meter("accountd-test")
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader, meter := newTestMeter(t)

	src := &fakeSource{
		snapshot: accountd.Snapshot{
			Counters: map[accountd.MetricID]uint64{
				accountd.MetricLoginSuccess: 3,
			},
		},
		dropped: 1,
	}

	exp, err := NewFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
	want := len(accountd.MetricIDs()) + 1
	if got := len(rm.ScopeMetrics[0].Metrics); got != want {
		t.Fatalf("expected %d instruments, got %d", want, got)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, meter := newTestMeter(t)

	if _, err := NewFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, meter := newTestMeter(t)

	src := &fakeSource{
		snapshot: accountd.Snapshot{
			Counters: map[accountd.MetricID]uint64{
				accountd.MetricLoginSuccess: 1,
			},
		},
	}

	exp, err := NewFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[accountd.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
