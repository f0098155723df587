// Package observe provides the observability primitives of the exam
// simulator: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]; [Handler] serves them on /metrics. Tests
// should build their own [Metrics] with [NewMetrics] and a ManualReader to
// avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all simulator metrics.
const meterName = "github.com/SalahAli20/ADCAI"

// Metrics holds all OpenTelemetry metric instruments for the application.
// The underlying OTel types handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// CaptureDuration tracks how long it took to capture one utterance,
	// including ambient calibration and the wait for speech.
	CaptureDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text recognition latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks completion latency. Use with attribute:
	//   attribute.String("purpose", "turn"|"assessment")
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency including playback.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Use with attributes:
	//   attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Turns counts completed conversation turns.
	Turns metric.Int64Counter

	// Failures counts turn and session failures by kind. Use with attribute:
	//   attribute.String("kind", ...)
	Failures metric.Int64Counter

	// Sessions counts finished sessions by outcome. Use with attribute:
	//   attribute.String("outcome", "finished"|"interrupted"|"failed")
	Sessions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of running exam sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Speech capture and
// synthesis routinely take several seconds, so the upper buckets are wide.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CaptureDuration, err = m.Float64Histogram("adcsim.capture.duration",
		metric.WithDescription("Time spent capturing one student utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("adcsim.stt.duration",
		metric.WithDescription("Latency of speech-to-text recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("adcsim.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("adcsim.tts.duration",
		metric.WithDescription("Latency of speech synthesis and playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("adcsim.provider.requests",
		metric.WithDescription("Total provider requests by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("adcsim.turns",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}
	if met.Failures, err = m.Int64Counter("adcsim.failures",
		metric.WithDescription("Total failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("adcsim.sessions",
		metric.WithDescription("Total finished sessions by outcome."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("adcsim.active_sessions",
		metric.WithDescription("Number of running exam sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("adcsim.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Call it after [InitProvider] so
// the instruments bind to the Prometheus exporter. Panics if instrument
// creation fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records one provider call of the given kind
// ("stt", "llm", "tts") with status "ok" or "error".
func (m *Metrics) RecordProviderRequest(ctx context.Context, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordFailure records one failure of the given kind.
func (m *Metrics) RecordFailure(ctx context.Context, kind string) {
	m.Failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSession records a finished session with its outcome.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveSince records the seconds elapsed since start on h.
func ObserveSince(ctx context.Context, h metric.Float64Histogram, start time.Time, attrs ...attribute.KeyValue) {
	if len(attrs) == 0 {
		h.Record(ctx, time.Since(start).Seconds())
		return
	}
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
}
