package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/tramline/tramline/internal/telemetry"

// UpstreamMetrics holds metrics for upstream calls such as graph engine queries.
type UpstreamMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewUpstreamMetrics creates metrics for monitoring upstream calls.
func NewUpstreamMetrics() (*UpstreamMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"upstream.request.duration",
		metric.WithDescription("Duration of upstream requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"upstream.request.total",
		metric.WithDescription("Total number of upstream requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"upstream.cache.hit",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"upstream.cache.miss",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &UpstreamMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordRequest records metrics for an upstream request. A nil receiver is a no-op.
func (m *UpstreamMetrics) RecordRequest(upstream, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
	}

	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Background context so cancelled requests are still counted
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCache records cache hits and misses of one lookup batch.
func (m *UpstreamMetrics) RecordCache(upstream, operation string, hits, misses int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("upstream.name", upstream),
		attribute.String("upstream.operation", operation),
	)
	ctx := context.Background()
	if hits > 0 {
		m.cacheHit.Add(ctx, int64(hits), attrs)
	}
	if misses > 0 {
		m.cacheMiss.Add(ctx, int64(misses), attrs)
	}
}
