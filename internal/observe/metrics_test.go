package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics backs a Metrics instance with a ManualReader so tests can
// pull recorded data on demand.
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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

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

// requireSum fetches a named counter and asserts it aggregated as an
// int64 sum.
func requireSum(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Sum[int64] {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q aggregated as %T, want Sum[int64]", name, met.Data)
	}
	return sum
}

// requireHistogram fetches a named histogram of float64 samples.
func requireHistogram(t *testing.T, rm metricdata.ResourceMetrics, name string) metricdata.Histogram[float64] {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q aggregated as %T, want Histogram[float64]", name, met.Data)
	}
	return hist
}

// sumValueFor returns the counter value of the data point whose attribute set
// contains key=value, or -1 if no such point exists.
func sumValueFor(sum metricdata.Sum[int64], key, value string) int64 {
	for _, dp := range sum.DataPoints {
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value
			}
		}
	}
	return -1
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
		h    metric.Float64Histogram
	}{
		{"foyer.voice.pipeline.duration", m.VoicePipelineDuration},
		{"foyer.llm.chat.duration", m.ChatDuration},
		{"foyer.learning.pipeline.duration", m.LearningPipelineDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			hist := requireHistogram(t, rm, tc.name)
			if len(hist.DataPoints) == 0 {
				t.Fatal("no data points")
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestHistogramUsesLatencyBuckets(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.VoicePipelineDuration.Record(context.Background(), 0.2)

	hist := requireHistogram(t, collect(t, reader), "foyer.voice.pipeline.duration")
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}

	// Local model inference can take tens of seconds; the top bucket
	// must cover it.
	bounds := hist.DataPoints[0].Bounds
	if len(bounds) != len(latencyBuckets) {
		t.Fatalf("got %d bucket bounds, want %d", len(bounds), len(latencyBuckets))
	}
	if got := bounds[len(bounds)-1]; got != 60 {
		t.Errorf("last bucket bound = %v, want 60", got)
	}
}

func TestProviderRequestsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "ollama", "ok")
	m.RecordProviderRequest(ctx, "ollama", "ok")
	m.RecordProviderRequest(ctx, "ollama", "error")

	sum := requireSum(t, collect(t, reader), "foyer.provider.requests")
	if got := sumValueFor(sum, "status", "ok"); got != 2 {
		t.Errorf("requests with status=ok = %d, want 2", got)
	}
	if got := sumValueFor(sum, "status", "error"); got != 1 {
		t.Errorf("requests with status=error = %d, want 1", got)
	}
}

func TestMemoryOpsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordMemoryOp(ctx, "add", "ok")
	m.RecordMemoryOp(ctx, "add", "ok")
	m.RecordMemoryOp(ctx, "search", "error")

	sum := requireSum(t, collect(t, reader), "foyer.memory.ops")
	if got := sumValueFor(sum, "op", "add"); got != 2 {
		t.Errorf("ops with op=add = %d, want 2", got)
	}
	if got := sumValueFor(sum, "op", "search"); got != 1 {
		t.Errorf("ops with op=search = %d, want 1", got)
	}
}

func TestGateOutcomesCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordGateOutcome(ctx, "gate1", "pass")
	m.RecordGateOutcome(ctx, "gate1", "pass")
	m.RecordGateOutcome(ctx, "gate2a", "reject")

	sum := requireSum(t, collect(t, reader), "foyer.learning.gate_outcomes")
	if got := sumValueFor(sum, "gate", "gate1"); got != 2 {
		t.Errorf("outcomes with gate=gate1 = %d, want 2", got)
	}
	if got := sumValueFor(sum, "gate", "gate2a"); got != 1 {
		t.Errorf("outcomes with gate=gate2a = %d, want 1", got)
	}
}

func TestVoiceDecisionsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordVoiceDecision(ctx, "identified")
	m.RecordVoiceDecision(ctx, "identified")
	m.RecordVoiceDecision(ctx, "fallback")

	sum := requireSum(t, collect(t, reader), "foyer.voice.decisions")
	if got := sumValueFor(sum, "decision", "identified"); got != 2 {
		t.Errorf("decisions with decision=identified = %d, want 2", got)
	}
	if got := sumValueFor(sum, "decision", "fallback"); got != 1 {
		t.Errorf("decisions with decision=fallback = %d, want 1", got)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "whisper")
	m.RecordProviderError(ctx, "whisper")

	sum := requireSum(t, collect(t, reader), "foyer.provider.errors")
	if got := sumValueFor(sum, "provider", "whisper"); got != 2 {
		t.Errorf("errors with provider=whisper = %d, want 2", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}
