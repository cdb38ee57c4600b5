// Package worker runs the periodic lease sweeps: expiry of lapsed leases and
// renewal of auto-renewing ones. Sweepers are plain loops driven by the
// caller's context; shutdown is cancellation.
package worker

import (
	"context"
	"log/slog"
	"time"

	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
)

// Default sweep intervals.
const (
	DefaultExpiryInterval    = 5 * time.Minute
	DefaultAutoRenewInterval = time.Minute
)

// ExpirySweeper periodically moves lapsed leases to Expired through the
// lease manager's confirmed-revocation path.
type ExpirySweeper struct {
	manager  leaseUsecase.LeaseManager
	interval time.Duration
	logger   *slog.Logger
}

// NewExpirySweeper creates an expiry sweeper. A non-positive interval falls
// back to the default.
func NewExpirySweeper(manager leaseUsecase.LeaseManager, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	return &ExpirySweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the sweep loop until the context is canceled.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.logger.Info("starting lease expiry sweeper", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping lease expiry sweeper")
			return ctx.Err()
		case <-ticker.C:
			expired, err := s.manager.ExpireDue(ctx, time.Now().UTC())
			if err != nil {
				s.logger.Error("lease expiry sweep failed", slog.Any("error", err))
				continue
			}
			if expired > 0 {
				s.logger.Info("lease expiry sweep completed", slog.Int("expired", expired))
			}
		}
	}
}

// AutoRenewSweeper periodically renews auto-renewing leases nearing expiry.
// Refused renewals fall through to the expiry sweeper.
type AutoRenewSweeper struct {
	manager  leaseUsecase.LeaseManager
	interval time.Duration
	logger   *slog.Logger
}

// NewAutoRenewSweeper creates an auto-renew sweeper. A non-positive interval
// falls back to the default.
func NewAutoRenewSweeper(manager leaseUsecase.LeaseManager, interval time.Duration, logger *slog.Logger) *AutoRenewSweeper {
	if interval <= 0 {
		interval = DefaultAutoRenewInterval
	}
	return &AutoRenewSweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the sweep loop until the context is canceled. Each pass renews
// leases expiring within two sweep intervals so a lease is never missed
// between passes.
func (s *AutoRenewSweeper) Start(ctx context.Context) error {
	s.logger.Info("starting lease auto-renew sweeper", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping lease auto-renew sweeper")
			return ctx.Err()
		case <-ticker.C:
			renewed, err := s.manager.AutoRenewDue(ctx, time.Now().UTC(), 2*s.interval)
			if err != nil {
				s.logger.Error("lease auto-renew sweep failed", slog.Any("error", err))
				continue
			}
			if renewed > 0 {
				s.logger.Info("lease auto-renew sweep completed", slog.Int("renewed", renewed))
			}
		}
	}
}
