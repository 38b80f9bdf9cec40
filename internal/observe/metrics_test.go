package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		hist metric.Float64Histogram
	}{
		{"polyvox.translate.duration", m.TranslateDuration},
		{"polyvox.persist.duration", m.PersistDuration},
		{"polyvox.finalize.duration", m.FinalizeDuration},
	}

	for _, h := range histograms {
		h.hist.Record(ctx, 0.42)
	}

	rm := collect(t, reader)
	for _, h := range histograms {
		met := findMetric(rm, h.name)
		if met == nil {
			t.Errorf("metric %q not found after recording", h.name)
			continue
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Errorf("metric %q: unexpected data type %T", h.name, met.Data)
			continue
		}
		if len(hist.DataPoints) != 1 {
			t.Errorf("metric %q: got %d data points, want 1", h.name, len(hist.DataPoints))
			continue
		}
		if got := hist.DataPoints[0].Count; got != 1 {
			t.Errorf("metric %q: got count %d, want 1", h.name, got)
		}
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.UtterancesPersisted.Add(ctx, 1)
	m.UtterancesPersisted.Add(ctx, 1)
	m.UtterancesFlushed.Add(ctx, 3)
	m.OutboxEnqueued.Add(ctx, 1)
	m.OutboxDrained.Add(ctx, 1)

	rm := collect(t, reader)
	counters := []struct {
		name string
		want int64
	}{
		{"polyvox.utterances.persisted", 2},
		{"polyvox.utterances.flushed", 3},
		{"polyvox.outbox.enqueued", 1},
		{"polyvox.outbox.drained", 1},
	}
	for _, c := range counters {
		met := findMetric(rm, c.name)
		if met == nil {
			t.Errorf("metric %q not found", c.name)
			continue
		}
		sum, ok := met.Data.(metricdata.Sum[int64])
		if !ok {
			t.Errorf("metric %q: unexpected data type %T", c.name, met.Data)
			continue
		}
		var total int64
		for _, dp := range sum.DataPoints {
			total += dp.Value
		}
		if total != c.want {
			t.Errorf("metric %q: got %d, want %d", c.name, total, c.want)
		}
	}
}

func TestRecordProviderRequest_Attributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "translate", "ok")

	rm := collect(t, reader)
	met := findMetric(rm, "polyvox.provider.requests")
	if met == nil {
		t.Fatal("polyvox.provider.requests not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", met.Data)
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(sum.DataPoints))
	}
	dp := sum.DataPoints[0]
	if dp.Value != 1 {
		t.Errorf("got value %d, want 1", dp.Value)
	}
	for _, want := range []attribute.KeyValue{
		attribute.String("provider", "openai"),
		attribute.String("kind", "translate"),
		attribute.String("status", "ok"),
	} {
		if got, found := dp.Attributes.Value(want.Key); !found || got != want.Value {
			t.Errorf("attribute %s: got %v (found=%v), want %v", want.Key, got, found, want.Value)
		}
	}
}

func TestRecordProviderError_Attributes(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "openai", "translate")

	rm := collect(t, reader)
	met := findMetric(rm, "polyvox.provider.errors")
	if met == nil {
		t.Fatal("polyvox.provider.errors not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", met.Data)
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(sum.DataPoints))
	}
	if got := sum.DataPoints[0].Value; got != 1 {
		t.Errorf("got value %d, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 2)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	met := findMetric(rm, "polyvox.active_sessions")
	if met == nil {
		t.Fatal("polyvox.active_sessions not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", met.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 1 {
		t.Errorf("got %d, want 1", total)
	}
}

func TestSetOutboxDepth_ObservedOnCollect(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.SetOutboxDepth(7)

	rm := collect(t, reader)
	met := findMetric(rm, "polyvox.outbox.depth")
	if met == nil {
		t.Fatal("polyvox.outbox.depth not found")
	}
	gauge, ok := met.Data.(metricdata.Gauge[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", met.Data)
	}
	if len(gauge.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(gauge.DataPoints))
	}
	if got := gauge.DataPoints[0].Value; got != 7 {
		t.Errorf("got depth %d, want 7", got)
	}

	// A later update is reflected on the next collection.
	m.SetOutboxDepth(0)
	rm = collect(t, reader)
	met = findMetric(rm, "polyvox.outbox.depth")
	gauge = met.Data.(metricdata.Gauge[int64])
	if got := gauge.DataPoints[0].Value; got != 0 {
		t.Errorf("after reset: got depth %d, want 0", got)
	}
}
