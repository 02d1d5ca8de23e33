package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const authMetricsNamespace = "github.com/techmart/storefront-api/internal/platform/auth"

// AuthMetrics records webhook signature and OIDC verification outcomes as OpenTelemetry instruments.
type AuthMetrics struct {
	attempts metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewAuthMetrics registers the verification instruments on meter, or on the global meter when nil.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(authMetricsNamespace)
	}
	attempts, err := meter.Int64Counter("auth.verifications",
		metric.WithDescription("Count of request verification attempts by kind and outcome"))
	if err != nil {
		return nil, fmt.Errorf("observability: register verification counter: %w", err)
	}
	latency, err := meter.Float64Histogram("auth.verification.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of request verification"))
	if err != nil {
		return nil, fmt.Errorf("observability: register verification latency: %w", err)
	}
	return &AuthMetrics{attempts: attempts, latency: latency}, nil
}

// RecordVerification implements auth.MetricsRecorder.
func (m *AuthMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.attempts.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}
