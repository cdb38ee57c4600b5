package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BusinessMetrics defines the interface for recording business operation metrics.
// Implementations track operation counts and durations for observability across
// the core domains (seal, keyring, transit, lease, dbengine).
type BusinessMetrics interface {
	// RecordOperation records a business operation with its status.
	// Domain examples: "seal", "transit", "lease"
	// Operation examples: "unseal_share", "transit_encrypt", "lease_renew"
	// Status examples: "success", "error"
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records the duration of a business operation with its status.
	// Duration is recorded in seconds as a histogram for percentile calculations.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)

	// SetSealState records the current seal state as a gauge:
	// 0 = sealed, 1 = unsealing, 2 = unsealed.
	SetSealState(ctx context.Context, state int64)

	// SetActiveLeases records the number of non-terminal leases.
	SetActiveLeases(ctx context.Context, count int64)
}

// businessMetrics implements BusinessMetrics using OpenTelemetry metrics.
type businessMetrics struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
	sealStateGauge   metric.Int64Gauge
	activeLeaseGauge metric.Int64Gauge
}

// NewBusinessMetrics creates a new BusinessMetrics implementation using the provided meter provider.
// The namespace parameter is used as a prefix for all metric names (e.g., "custodia").
// Returns error if meters cannot be initialized.
func NewBusinessMetrics(meterProvider metric.MeterProvider, namespace string) (BusinessMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of business operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of business operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	sealStateGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_seal_state", namespace),
		metric.WithDescription("Current seal state (0 sealed, 1 unsealing, 2 unsealed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create seal state gauge: %w", err)
	}

	activeLeaseGauge, err := meter.Int64Gauge(
		fmt.Sprintf("%s_active_leases", namespace),
		metric.WithDescription("Number of non-terminal leases"),
		metric.WithUnit("{lease}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active lease gauge: %w", err)
	}

	return &businessMetrics{
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
		sealStateGauge:   sealStateGauge,
		activeLeaseGauge: activeLeaseGauge,
	}, nil
}

// RecordOperation increments the operation counter with domain, operation, and status labels.
func (b *businessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	b.operationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordDuration records the operation duration in seconds with domain, operation, and status labels.
func (b *businessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	b.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("domain", domain),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// SetSealState records the current seal state.
func (b *businessMetrics) SetSealState(ctx context.Context, state int64) {
	b.sealStateGauge.Record(ctx, state)
}

// SetActiveLeases records the number of non-terminal leases.
func (b *businessMetrics) SetActiveLeases(ctx context.Context, count int64) {
	b.activeLeaseGauge.Record(ctx, count)
}

// NoOpBusinessMetrics is a no-op implementation of BusinessMetrics for when metrics are disabled.
type NoOpBusinessMetrics struct{}

// NewNoOpBusinessMetrics creates a no-op BusinessMetrics implementation.
func NewNoOpBusinessMetrics() BusinessMetrics {
	return &NoOpBusinessMetrics{}
}

// RecordOperation does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	// No-op
}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) RecordDuration(
	ctx context.Context,
	domain, operation string,
	duration time.Duration,
	status string,
) {
	// No-op
}

// SetSealState does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) SetSealState(ctx context.Context, state int64) {
	// No-op
}

// SetActiveLeases does nothing when metrics are disabled.
func (n *NoOpBusinessMetrics) SetActiveLeases(ctx context.Context, count int64) {
	// No-op
}
