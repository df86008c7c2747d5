package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/harborlight/corpusd/internal/vectorstore"

// Metrics holds vector store instruments on the global meter.
type Metrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates a Metrics instance for the vector store client.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)

	duration, _ := meter.Float64Histogram(
		"corpusd.vectorstore.request_duration_seconds",
		metric.WithDescription("Duration of vector store calls in seconds, labeled by operation (upsert, query, delete_by_filter)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 8.0),
	)
	errCounter, _ := meter.Int64Counter(
		"corpusd.vectorstore.errors_total",
		metric.WithDescription("Vector store call failures, labeled by operation"),
		metric.WithUnit("{error}"),
	)

	return &Metrics{duration: duration, errors: errCounter}
}

// RecordOp records one vector store call.
func (m *Metrics) RecordOp(ctx context.Context, op string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("operation", op))
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
