package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/harborlight/corpusd/internal/embeddings"

// Metrics holds embedding-related instruments on the global meter. With no
// meter provider configured these are no-ops.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a Metrics instance for embeddings.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)

	duration, _ := meter.Float64Histogram(
		"corpusd.embedding.request_duration_seconds",
		metric.WithDescription("Duration of embedding requests in seconds, labeled by provider and model"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0),
	)
	errCounter, _ := meter.Int64Counter(
		"corpusd.embedding.errors_total",
		metric.WithDescription("Embedding failures after retries, labeled by provider and model"),
		metric.WithUnit("{error}"),
	)

	return &Metrics{duration: duration, errors: errCounter}
}

// RecordEmbed records one embedding call.
func (m *Metrics) RecordEmbed(ctx context.Context, provider, model string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
