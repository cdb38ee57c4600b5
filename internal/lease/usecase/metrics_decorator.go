package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
	"github.com/custodia/custodia/internal/metrics"
)

// leaseManagerWithMetrics decorates LeaseManager with metrics instrumentation.
type leaseManagerWithMetrics struct {
	next    LeaseManager
	metrics metrics.BusinessMetrics
}

// NewLeaseManagerWithMetrics wraps a LeaseManager with metrics recording.
func NewLeaseManagerWithMetrics(manager LeaseManager, m metrics.BusinessMetrics) LeaseManager {
	return &leaseManagerWithMetrics{
		next:    manager,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one call.
func (l *leaseManagerWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordOperation(ctx, "lease", operation, status)
	l.metrics.RecordDuration(ctx, "lease", operation, time.Since(start), status)
}

// Create records metrics for lease creation.
func (l *leaseManagerWithMetrics) Create(ctx context.Context, params CreateLeaseParams) (*leaseDomain.Lease, error) {
	start := time.Now()
	lease, err := l.next.Create(ctx, params)
	l.record(ctx, "lease_create", start, err)
	return lease, err
}

// Get records metrics for lease lookups.
func (l *leaseManagerWithMetrics) Get(ctx context.Context, id uuid.UUID) (*leaseDomain.Lease, error) {
	start := time.Now()
	lease, err := l.next.Get(ctx, id)
	l.record(ctx, "lease_get", start, err)
	return lease, err
}

// Renew records metrics for lease renewals.
func (l *leaseManagerWithMetrics) Renew(ctx context.Context, id uuid.UUID, increment time.Duration) (*leaseDomain.Lease, error) {
	start := time.Now()
	lease, err := l.next.Renew(ctx, id, increment)
	l.record(ctx, "lease_renew", start, err)
	return lease, err
}

// Revoke records metrics for lease revocations.
func (l *leaseManagerWithMetrics) Revoke(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := l.next.Revoke(ctx, id)
	l.record(ctx, "lease_revoke", start, err)
	return err
}

// List records metrics for lease listings and refreshes the active lease gauge.
func (l *leaseManagerWithMetrics) List(ctx context.Context) ([]*leaseDomain.Lease, error) {
	start := time.Now()
	leases, err := l.next.List(ctx)
	l.record(ctx, "lease_list", start, err)

	if err == nil {
		live := int64(0)
		for _, lease := range leases {
			if !lease.Terminal() {
				live++
			}
		}
		l.metrics.SetActiveLeases(ctx, live)
	}
	return leases, err
}

// ExpireDue records metrics for expiry sweeps.
func (l *leaseManagerWithMetrics) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	n, err := l.next.ExpireDue(ctx, now)
	l.record(ctx, "lease_expire_sweep", start, err)
	return n, err
}

// AutoRenewDue records metrics for auto-renew sweeps.
func (l *leaseManagerWithMetrics) AutoRenewDue(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	start := time.Now()
	n, err := l.next.AutoRenewDue(ctx, now, window)
	l.record(ctx, "lease_auto_renew_sweep", start, err)
	return n, err
}
