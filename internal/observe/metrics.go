// Package observe carries the service's observability: OpenTelemetry
// metrics and traces, trace-annotated slog logging, and the HTTP middleware
// that ties them together per request.
//
// Metrics flow through the OTel Metrics API into the Prometheus registry
// set up by [InitProvider], so the usual /metrics scrape keeps working.
// Production code shares the [DefaultMetrics] instance; tests build their
// own with [NewMetrics] and a private meter provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation scope for every metric this service emits.
const meterName = "github.com/hmori/gamecoach"

// Metrics holds the service's metric instruments. The instruments do their
// own synchronisation, so one instance serves every goroutine.
type Metrics struct {
	// Per-stage latency histograms. CoachingDuration spans the whole
	// pipeline, recording stop to delivered reply.
	STTDuration            metric.Float64Histogram
	LLMDuration            metric.Float64Histogram
	TTSDuration            metric.Float64Histogram
	GuideRetrievalDuration metric.Float64Histogram
	CoachingDuration       metric.Float64Histogram

	// ProviderRequests counts backend calls, attributed by provider, kind
	// and status; ProviderErrors by provider and kind.
	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter

	// TranscriptsSuppressed counts recordings the hallucination filter
	// dropped, by reason ("no_speech" or "denylist").
	TranscriptsSuppressed metric.Int64Counter

	// TranscriptCorrections counts normalizer rule firings, by rule.
	TranscriptCorrections metric.Int64Counter

	// CoachReplies counts delivered replies, by game_id.
	CoachReplies metric.Int64Counter

	// ActiveSessions and ActiveStreams are live counts of recording
	// sessions and connected WebSocket audio streams.
	ActiveSessions metric.Int64UpDownCounter
	ActiveStreams  metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by the middleware, by method and
	// path.
	HTTPRequestDuration metric.Float64Histogram
}

// Voice-pipeline latencies cluster between tens of milliseconds (a VAD
// decision) and a few seconds (a full LLM reply), so the buckets spread
// across that range.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// instruments creates instruments on one meter, keeping the first error
// instead of forcing a check per instrument.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) latency(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	)
	if b.err == nil {
		b.err = err
	}
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return g
}

func (b *instruments) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
	)
	if b.err == nil {
		b.err = err
	}
	return h
}

// NewMetrics creates every instrument on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}

	m := &Metrics{
		STTDuration: b.latency("gamecoach.stt.duration",
			"Latency of speech-to-text transcription."),
		LLMDuration: b.latency("gamecoach.llm.duration",
			"Latency of LLM inference."),
		TTSDuration: b.latency("gamecoach.tts.duration",
			"Latency of text-to-speech synthesis."),
		GuideRetrievalDuration: b.latency("gamecoach.guide.retrieval.duration",
			"Latency of strategy-guide passage retrieval."),
		CoachingDuration: b.latency("gamecoach.coaching.duration",
			"End-to-end latency from completed recording to coaching reply."),

		ProviderRequests: b.counter("gamecoach.provider.requests",
			"Total provider API requests by provider, kind, and status."),
		ProviderErrors: b.counter("gamecoach.provider.errors",
			"Total provider errors by provider and kind."),
		TranscriptsSuppressed: b.counter("gamecoach.transcripts.suppressed",
			"Total transcripts dropped by the hallucination filter, by reason."),
		TranscriptCorrections: b.counter("gamecoach.transcripts.corrections",
			"Total normalizer rule firings by rule name."),
		CoachReplies: b.counter("gamecoach.coach.replies",
			"Total coaching replies delivered by game ID."),

		ActiveSessions: b.gauge("gamecoach.active_sessions",
			"Number of live recording sessions."),
		ActiveStreams: b.gauge("gamecoach.active_streams",
			"Number of connected WebSocket audio streams."),

		HTTPRequestDuration: b.histogram("gamecoach.http.request.duration",
			"HTTP request latency by method and path."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared instance built on the global meter
// provider, creating it on first use. Panics if instrument creation fails,
// which the global provider never does.
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

// Attr shortens attribute.String at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the request counter with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError increments the error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordSuppression counts a transcript the filter dropped.
func (m *Metrics) RecordSuppression(ctx context.Context, reason string) {
	m.TranscriptsSuppressed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCorrection counts one normalizer rule firing.
func (m *Metrics) RecordCorrection(ctx context.Context, rule string) {
	m.TranscriptCorrections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("rule", rule)))
}

// RecordCoachReply counts a delivered coaching reply.
func (m *Metrics) RecordCoachReply(ctx context.Context, gameID string) {
	m.CoachReplies.Add(ctx, 1,
		metric.WithAttributes(attribute.String("game_id", gameID)))
}
