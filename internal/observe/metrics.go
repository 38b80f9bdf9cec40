// Package observe provides application-wide observability primitives for
// Polyvox: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Polyvox metrics.
const meterName = "github.com/polyvox/polyvox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranslateDuration tracks translation provider latency.
	TranslateDuration metric.Float64Histogram

	// PersistDuration tracks utterance write latency against the store.
	PersistDuration metric.Float64Histogram

	// FinalizeDuration tracks end-of-session finalization latency (the
	// reorganize, document, and summary stages combined).
	FinalizeDuration metric.Float64Histogram

	// --- Counters ---

	// UtterancesPersisted counts utterances successfully written to the
	// store, whether directly or via an outbox drain.
	UtterancesPersisted metric.Int64Counter

	// UtterancesFlushed counts sentence flushes emitted by the accumulator.
	UtterancesFlushed metric.Int64Counter

	// OutboxEnqueued counts utterances that failed a direct write and were
	// queued for later retry.
	OutboxEnqueued metric.Int64Counter

	// OutboxDrained counts utterances successfully written during a drain
	// cycle.
	OutboxDrained metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live transcription sessions.
	ActiveSessions metric.Int64UpDownCounter

	// outboxDepth holds the current queue depth, reported through an
	// observable gauge. Set via [Metrics.SetOutboxDepth].
	outboxDepth atomic.Int64

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for provider round trips over the network.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranslateDuration, err = m.Float64Histogram("polyvox.translate.duration",
		metric.WithDescription("Latency of translation provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PersistDuration, err = m.Float64Histogram("polyvox.persist.duration",
		metric.WithDescription("Latency of utterance writes to the store."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("polyvox.finalize.duration",
		metric.WithDescription("Latency of end-of-session finalization."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.UtterancesPersisted, err = m.Int64Counter("polyvox.utterances.persisted",
		metric.WithDescription("Total utterances successfully written to the store."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesFlushed, err = m.Int64Counter("polyvox.utterances.flushed",
		metric.WithDescription("Total sentence flushes emitted by the accumulator."),
	); err != nil {
		return nil, err
	}
	if met.OutboxEnqueued, err = m.Int64Counter("polyvox.outbox.enqueued",
		metric.WithDescription("Total utterances queued for retry after a failed write."),
	); err != nil {
		return nil, err
	}
	if met.OutboxDrained, err = m.Int64Counter("polyvox.outbox.drained",
		metric.WithDescription("Total utterances written during outbox drain cycles."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("polyvox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("polyvox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("polyvox.active_sessions",
		metric.WithDescription("Number of live transcription sessions."),
	); err != nil {
		return nil, err
	}
	depth, err := m.Int64ObservableGauge("polyvox.outbox.depth",
		metric.WithDescription("Current number of utterances waiting in the outbox."),
	)
	if err != nil {
		return nil, err
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, met.outboxDepth.Load())
		return nil
	}, depth); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("polyvox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// SetOutboxDepth records the current outbox queue depth. The value is
// reported asynchronously on the next metric collection.
func (m *Metrics) SetOutboxDepth(depth int64) {
	m.outboxDepth.Store(depth)
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
