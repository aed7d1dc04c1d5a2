package observability

import (
	"context"
	"ratelimiter/internal/ratelimit"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const rateLimitScope = "ratelimiter/ratelimit"

var _ ratelimit.Observer = (*RateLimitMetrics)(nil)

// RateLimitMetrics records admission decisions as OpenTelemetry metrics. It
// implements ratelimit.Observer.
type RateLimitMetrics struct {
	decisions  metric.Int64Counter
	retryAfter metric.Float64Histogram
}

// NewRateLimitMetrics registers the decision instruments and a gauge that
// reports the number of live partitions in store.
func NewRateLimitMetrics(store *ratelimit.PartitionStore) (*RateLimitMetrics, error) {
	meter := otel.Meter(rateLimitScope)

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Number of admission decisions by algorithm and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	retryAfter, err := meter.Float64Histogram(
		"ratelimit.retry_after",
		metric.WithDescription("Retry-After hint returned with rejections"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	if store != nil {
		_, err = meter.Int64ObservableGauge(
			"ratelimit.partitions",
			metric.WithDescription("Number of partitions with a live limiter"),
			metric.WithUnit("{partition}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(int64(store.Len()))
				return nil
			}),
		)
		if err != nil {
			return nil, err
		}
	}

	return &RateLimitMetrics{decisions: decisions, retryAfter: retryAfter}, nil
}

func (m *RateLimitMetrics) ObserveDecision(ctx context.Context, d ratelimit.Decision) {
	outcome := "rejected"
	if d.Lease.Granted {
		outcome = "admitted"
	}

	attrs := metric.WithAttributes(
		attribute.String("algorithm", string(d.Algorithm)),
		attribute.String("outcome", outcome),
		attribute.Bool("authenticated", d.Identity.Authenticated),
	)
	m.decisions.Add(ctx, 1, attrs)

	if hint, ok := d.Lease.RetryAfterHint(); ok && !d.Lease.Granted {
		m.retryAfter.Record(ctx, hint.Seconds(),
			metric.WithAttributes(attribute.String("algorithm", string(d.Algorithm))))
	}
}
