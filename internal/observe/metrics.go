// Package observe holds Lorekeeper's observability plumbing: OpenTelemetry
// instruments for the retrieval pipeline, tracing helpers that carry the chat
// session ID, and the gin middleware that ties requests to both.
//
// [InitProvider] bridges the instruments to Prometheus. Code that is not
// handed a [Metrics] uses [DefaultMetrics]; tests build their own with
// [NewMetrics] on a private meter provider.
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every Lorekeeper instrument.
const meterName = "github.com/MrWong99/lorekeeper"

// Metrics bundles the application's instruments. Prefer the Record helpers,
// which attach the expected attributes.
type Metrics struct {
	// RetrievalDuration is labelled by "stage": trigram, semantic, fulltext,
	// enhance or assemble.
	RetrievalDuration metric.Float64Histogram
	// LLMDuration is labelled by "purpose": rewrite, summary or answer.
	LLMDuration metric.Float64Histogram
	// EmbeddingDuration is labelled by "input": query or document.
	EmbeddingDuration metric.Float64Histogram
	// HTTPRequestDuration is labelled by method, route template and status.
	HTTPRequestDuration metric.Float64Histogram
	// FusedResults counts logs or entities left after fusion, by "kind".
	FusedResults metric.Int64Histogram

	ProviderRequests metric.Int64Counter
	ProviderErrors   metric.Int64Counter
	// CacheLookups is labelled by "result": hit, miss or expired.
	CacheLookups metric.Int64Counter
	// ChatTurns is labelled by "outcome": answered, not_found, error or cached.
	ChatTurns   metric.Int64Counter
	MemoryFolds metric.Int64Counter
}

// latencyBuckets span a trigram lookup (milliseconds) up to a slow answer
// generation (tens of seconds).
var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// countBuckets fit the per-kind result caps of the context assembler.
var countBuckets = []float64{0, 1, 2, 5, 10, 15, 25, 50}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}

	seconds := func(dst *metric.Float64Histogram, name, desc string, buckets ...float64) error {
		opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
		if len(buckets) > 0 {
			opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
		}
		h, err := meter.Float64Histogram(name, opts...)
		*dst = h
		return err
	}
	counter := func(dst *metric.Int64Counter, name, desc string) error {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		*dst = c
		return err
	}

	fused, fusedErr := meter.Int64Histogram("lorekeeper.fused.results",
		metric.WithDescription("Logs or entities kept after fusion and trimming."),
		metric.WithExplicitBucketBoundaries(countBuckets...))
	m.FusedResults = fused

	err := errors.Join(
		seconds(&m.RetrievalDuration, "lorekeeper.retrieval.duration", "Latency of one retrieval stage.", latencyBuckets...),
		seconds(&m.LLMDuration, "lorekeeper.llm.duration", "Latency of one generation call.", latencyBuckets...),
		seconds(&m.EmbeddingDuration, "lorekeeper.embedding.duration", "Latency of one embedding request.", latencyBuckets...),
		seconds(&m.HTTPRequestDuration, "lorekeeper.http.request.duration", "HTTP request latency."),
		fusedErr,
		counter(&m.ProviderRequests, "lorekeeper.provider.requests", "Model backend calls by provider, kind and status."),
		counter(&m.ProviderErrors, "lorekeeper.provider.errors", "Failed model backend calls by provider and kind."),
		counter(&m.CacheLookups, "lorekeeper.cache.lookups", "Answer cache lookups by result."),
		counter(&m.ChatTurns, "lorekeeper.chat.turns", "Questions handled, by outcome."),
		counter(&m.MemoryFolds, "lorekeeper.memory.folds", "Chat messages folded into session summaries."),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide [Metrics] on the global meter
// provider, creating it on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		if defaultMetrics, err = NewMetrics(otel.GetMeterProvider()); err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func since(start time.Time) float64 { return time.Since(start).Seconds() }

func with(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(kv...)
}

// RecordStage records the latency of a retrieval stage begun at start.
func (m *Metrics) RecordStage(ctx context.Context, stage string, start time.Time) {
	m.RetrievalDuration.Record(ctx, since(start), with(attribute.String("stage", stage)))
}

// RecordLLM records the latency of a generation call begun at start.
func (m *Metrics) RecordLLM(ctx context.Context, purpose string, start time.Time) {
	m.LLMDuration.Record(ctx, since(start), with(attribute.String("purpose", purpose)))
}

// RecordEmbedding records the latency of embedding a query or a batch of
// document chunks begun at start.
func (m *Metrics) RecordEmbedding(ctx context.Context, input string, start time.Time) {
	m.EmbeddingDuration.Record(ctx, since(start), with(attribute.String("input", input)))
}

// RecordProviderRequest counts one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, with(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one failed backend call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, with(attribute.String("provider", provider), attribute.String("kind", kind)))
}

// RecordCacheLookup counts one answer cache lookup.
func (m *Metrics) RecordCacheLookup(ctx context.Context, result string) {
	m.CacheLookups.Add(ctx, 1, with(attribute.String("result", result)))
}

// RecordChatTurn counts one handled question.
func (m *Metrics) RecordChatTurn(ctx context.Context, outcome string) {
	m.ChatTurns.Add(ctx, 1, with(attribute.String("outcome", outcome)))
}

// RecordFused records how many items of kind survived fusion.
func (m *Metrics) RecordFused(ctx context.Context, kind string, n int) {
	m.FusedResults.Record(ctx, int64(n), with(attribute.String("kind", kind)))
}
