package storage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics holds the metric instruments for the storage manager. They are
// created once in NewManager and reused for every operation.
type otelMetrics struct {
	// opCounter increments per operation, tagged with op, tier, and outcome.
	opCounter metric.Int64Counter

	// durationHistogram records operation latency in milliseconds.
	durationHistogram metric.Float64Histogram
}

// initMetrics creates the instruments. A nil provider disables metrics; all
// recording calls become no-ops.
func initMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter("github.com/strata-ai/strata/storage")

	var (
		m   otelMetrics
		err error
	)
	m.opCounter, err = meter.Int64Counter(
		"strata.storage.operations",
		metric.WithDescription("Number of storage operations performed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: create operation counter: %w", err)
	}

	m.durationHistogram, err = meter.Float64Histogram(
		"strata.storage.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: create duration histogram: %w", err)
	}
	return &m, nil
}

// observe records one operation's outcome and latency.
func (m *otelMetrics) observe(ctx context.Context, op string, tier string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("tier", tier),
		attribute.String("status", status),
	)
	m.opCounter.Add(ctx, 1, attrs)
	m.durationHistogram.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
}
