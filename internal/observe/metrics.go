// Package observe provides application-wide observability primitives for
// mentord: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mentord metrics.
const meterName = "github.com/deirlabs/mentord"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// GenerationDuration tracks text generation latency. Use with attribute:
	//   attribute.String("kind", "chat"|"debate")
	GenerationDuration metric.Float64Histogram

	// TranscriptionDuration tracks audio transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// MediaDuration tracks studio image and video generation latency. Use
	// with attribute: attribute.String("kind", "image"|"edit"|"video")
	MediaDuration metric.Float64Histogram

	// SessionDuration tracks live audio session lifetimes, open to close.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// Exchanges counts recorded question/answer exchanges. Use with
	// attributes: attribute.String("mode", ...), attribute.String("source", ...)
	Exchanges metric.Int64Counter

	// StageCompletions counts stage completion events by stage ID.
	StageCompletions metric.Int64Counter

	// StageUnlocks counts stages flipped open by the unlock rules.
	StageUnlocks metric.Int64Counter

	// ProviderRequests counts backend API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts backend errors by provider and kind.
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveLiveSessions tracks the number of open live audio sessions.
	ActiveLiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Generation
// calls routinely take several seconds, video generation far longer.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GenerationDuration, err = m.Float64Histogram("mentord.generation.duration",
		metric.WithDescription("Latency of text generation requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("mentord.transcription.duration",
		metric.WithDescription("Latency of audio transcription requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MediaDuration, err = m.Float64Histogram("mentord.media.duration",
		metric.WithDescription("Latency of studio image and video generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("mentord.session.duration",
		metric.WithDescription("Lifetime of live audio sessions, open to close."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Exchanges, err = m.Int64Counter("mentord.exchanges",
		metric.WithDescription("Total recorded exchanges by mode and source."),
	); err != nil {
		return nil, err
	}
	if met.StageCompletions, err = m.Int64Counter("mentord.stage.completions",
		metric.WithDescription("Total stage completion events by stage ID."),
	); err != nil {
		return nil, err
	}
	if met.StageUnlocks, err = m.Int64Counter("mentord.stage.unlocks",
		metric.WithDescription("Total stages unlocked by the rule engine."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("mentord.provider.requests",
		metric.WithDescription("Total backend API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("mentord.provider.errors",
		metric.WithDescription("Total backend errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveLiveSessions, err = m.Int64UpDownCounter("mentord.active_live_sessions",
		metric.WithDescription("Number of open live audio sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mentord.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordExchange records one completed question/answer exchange.
func (m *Metrics) RecordExchange(ctx context.Context, mode, source string) {
	m.Exchanges.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("source", source),
		),
	)
}

// RecordStageCompletion records one stage completion event.
func (m *Metrics) RecordStageCompletion(ctx context.Context, stageID string) {
	m.StageCompletions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stageID)),
	)
}

// RecordStageUnlock records one stage unlocked by the rule engine.
func (m *Metrics) RecordStageUnlock(ctx context.Context, stageID string) {
	m.StageUnlocks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stageID)),
	)
}

// RecordProviderRequest records a backend request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a backend error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
