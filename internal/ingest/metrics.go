package ingest

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/harborlight/corpusd/internal/ingest"

var (
	metricsOnce    sync.Once
	ingestDuration metric.Float64Histogram
	ingestChunks   metric.Int64Counter
	ingestFailures metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter(instrumentationName)

	ingestDuration, _ = meter.Float64Histogram(
		"corpusd.ingest.duration_seconds",
		metric.WithDescription("Duration of one document indexing run in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	ingestChunks, _ = meter.Int64Counter(
		"corpusd.ingest.chunks_total",
		metric.WithDescription("Chunks written to the vector index"),
		metric.WithUnit("{chunk}"),
	)
	ingestFailures, _ = meter.Int64Counter(
		"corpusd.ingest.failures_total",
		metric.WithDescription("Indexing runs that ended in error"),
		metric.WithUnit("{error}"),
	)
}

// recordIngest records one indexing run on the global meter. With no meter
// provider configured these are no-ops.
func recordIngest(ctx context.Context, elapsed time.Duration, chunks int, err error) {
	metricsOnce.Do(initMetrics)

	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("status", status))

	if ingestDuration != nil {
		ingestDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if chunks > 0 && ingestChunks != nil {
		ingestChunks.Add(ctx, int64(chunks), attrs)
	}
	if err != nil && ingestFailures != nil {
		ingestFailures.Add(ctx, 1)
	}
}
