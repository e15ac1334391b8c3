// Package observe provides shared observability primitives for the Foyer
// services: OpenTelemetry metrics, tracing helpers, and HTTP middleware that
// ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so every service can serve
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Foyer metrics.
const meterName = "github.com/foyerlabs/foyer"

// Metrics holds all OpenTelemetry metric instruments for the services.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline latency histograms ---

	// VoicePipelineDuration tracks the full VAD → speaker ID → ASR pass.
	VoicePipelineDuration metric.Float64Histogram

	// ChatDuration tracks classifier + memory + runtime chat latency.
	ChatDuration metric.Float64Histogram

	// LearningPipelineDuration tracks the G1 → G2a → G2b gate pass.
	LearningPipelineDuration metric.Float64Histogram

	// --- Counters ---

	// HTTPRequests counts served HTTP requests. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequests metric.Int64Counter

	// MemoryOps counts vector-memory operations. Use with attributes:
	//   attribute.String("op", "add"|"search"|"delete"), attribute.String("status", ...)
	MemoryOps metric.Int64Counter

	// GateOutcomes counts learning gate results. Use with attributes:
	//   attribute.String("gate", "gate1"|"gate2a"|"gate2b"|"gate3"),
	//   attribute.String("outcome", "pass"|"reject"|"error"|"skip")
	GateOutcomes metric.Int64Counter

	// VoiceDecisions counts speaker-identification outcomes. Use with
	// attribute: attribute.String("decision", "identified"|"fallback"|"rejected"|"no_speech")
	VoiceDecisions metric.Int64Counter

	// ProviderRequests counts out-of-process provider calls. Use with
	// attributes: attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider name.
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("route", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Local
// model inference dominates the upper buckets.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.VoicePipelineDuration, err = m.Float64Histogram("foyer.voice.pipeline.duration",
		metric.WithDescription("Latency of the full voice pipeline pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = m.Float64Histogram("foyer.llm.chat.duration",
		metric.WithDescription("Latency of a chat request including memory retrieval and inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LearningPipelineDuration, err = m.Float64Histogram("foyer.learning.pipeline.duration",
		metric.WithDescription("Latency of the learning gate pipeline up to admin submission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.HTTPRequests, err = m.Int64Counter("foyer.http.requests",
		metric.WithDescription("Total HTTP requests by method, route, and status."),
	); err != nil {
		return nil, err
	}
	if met.MemoryOps, err = m.Int64Counter("foyer.memory.ops",
		metric.WithDescription("Total vector-memory operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.GateOutcomes, err = m.Int64Counter("foyer.learning.gate_outcomes",
		metric.WithDescription("Total learning gate results by gate and outcome."),
	); err != nil {
		return nil, err
	}
	if met.VoiceDecisions, err = m.Int64Counter("foyer.voice.decisions",
		metric.WithDescription("Total speaker-identification outcomes by decision."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("foyer.provider.requests",
		metric.WithDescription("Total out-of-process provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("foyer.provider.errors",
		metric.WithDescription("Total provider failures by provider."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("foyer.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
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

// RecordMemoryOp records one vector-memory operation.
func (m *Metrics) RecordMemoryOp(ctx context.Context, op, status string) {
	m.MemoryOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordGateOutcome records one learning gate result.
func (m *Metrics) RecordGateOutcome(ctx context.Context, gate, outcome string) {
	m.GateOutcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gate", gate),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordVoiceDecision records one speaker-identification outcome.
func (m *Metrics) RecordVoiceDecision(ctx context.Context, decision string) {
	m.VoiceDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
}

// RecordProviderRequest records one out-of-process provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}
