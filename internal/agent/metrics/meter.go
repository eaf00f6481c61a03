package metrics

import "context"

// Int64Counter is the minimal subset of otel/metric.Int64Counter the
// collector needs.
type Int64Counter interface {
	Add(ctx context.Context, delta int64, attrs map[string]string)
}

// Float64Histogram is the minimal subset of otel/metric.Float64Histogram
// the collector needs.
type Float64Histogram interface {
	Record(ctx context.Context, value float64, attrs map[string]string)
}

// MeterProvider is the optional telemetry sink a Collector exports into. It
// mirrors go.opentelemetry.io/otel/metric.Meter's shape closely enough that
// an adapter over a real otel Meter is a few lines, while letting
// internal/telemetry/promsink implement it directly against
// github.com/prometheus/client_golang without otel in the loop at all.
type MeterProvider interface {
	Int64Counter(name string) (Int64Counter, error)
	Float64Histogram(name string) (Float64Histogram, error)
}
