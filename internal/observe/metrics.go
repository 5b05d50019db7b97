// Package observe provides application-wide observability primitives for
// parley: OpenTelemetry metrics, tracing, and the SDK provider setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all parley metrics.
const meterName = "github.com/parleylabs/parley"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// UtteranceDuration tracks the recorded length of completed utterances.
	UtteranceDuration metric.Float64Histogram

	// TranscriptionDuration tracks transcription backend latency.
	TranscriptionDuration metric.Float64Histogram

	// --- Counters ---

	// Utterances counts finished recordings. Use with attribute:
	//   attribute.String("outcome", "ready"|"discarded"|"failed")
	Utterances metric.Int64Counter

	// ChunksRotated counts segmenter chunk rotations.
	ChunksRotated metric.Int64Counter

	// SpeakerFallbacks counts turn-router attributions that used the
	// low-confidence alternation fallback.
	SpeakerFallbacks metric.Int64Counter

	// ManualRefusals counts manual-mode utterances refused because the
	// detected language equalled the configured target.
	ManualRefusals metric.Int64Counter

	// --- Error counters ---

	// CaptureErrors counts capture adapter failures. Use with attribute:
	//   attribute.String("op", "open"|"stop"|"delete"|"level")
	CaptureErrors metric.Int64Counter

	// TranscriptionErrors counts failed transcription calls.
	TranscriptionErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of armed listening sessions
	// (0 or 1 per engine instance).
	ActiveSessions metric.Int64UpDownCounter

	// GatewayClients tracks connected event-feed WebSocket clients.
	GatewayClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// utterance recording and batch transcription latencies.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("parley.utterance.duration",
		metric.WithDescription("Recorded length of completed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("parley.transcription.duration",
		metric.WithDescription("Latency of transcription backend calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Utterances, err = m.Int64Counter("parley.utterances",
		metric.WithDescription("Total finished recordings by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ChunksRotated, err = m.Int64Counter("parley.segmenter.chunks",
		metric.WithDescription("Total segmenter chunk rotations."),
	); err != nil {
		return nil, err
	}
	if met.SpeakerFallbacks, err = m.Int64Counter("parley.turn.fallbacks",
		metric.WithDescription("Speaker attributions resolved by alternation fallback."),
	); err != nil {
		return nil, err
	}
	if met.ManualRefusals, err = m.Int64Counter("parley.turn.manual_refusals",
		metric.WithDescription("Manual-mode utterances refused for target-language detection."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.CaptureErrors, err = m.Int64Counter("parley.capture.errors",
		metric.WithDescription("Capture adapter failures by operation."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionErrors, err = m.Int64Counter("parley.transcription.errors",
		metric.WithDescription("Failed transcription backend calls."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Number of armed listening sessions."),
	); err != nil {
		return nil, err
	}
	if met.GatewayClients, err = m.Int64UpDownCounter("parley.gateway.clients",
		metric.WithDescription("Connected event-feed WebSocket clients."),
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
			panic("observe: default metrics init: " + err.Error())
		}
	})
	return defaultMetrics
}
