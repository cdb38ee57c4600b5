package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	"github.com/custodia/custodia/internal/storage"
)

type countingRevoker struct {
	mu    sync.Mutex
	count int
}

func (c *countingRevoker) RevokeSecret(ctx context.Context, engine, secretRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return nil
}

func (c *countingRevoker) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func newSweeperFixture(t *testing.T) (leaseUsecase.LeaseManager, *countingRevoker) {
	t.Helper()
	revoker := &countingRevoker{}
	manager := leaseUsecase.NewLeaseManager(
		storage.NewMemoryBackend(),
		revoker,
		authz.AllowAll(),
		audit.NopRecorder{},
		slog.Default(),
		leaseUsecase.WithRevokeRetry(0, time.Millisecond),
	)
	return manager, revoker
}

func TestExpirySweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	manager, revoker := newSweeperFixture(t)

	lease, err := manager.Create(ctx, leaseUsecase.CreateLeaseParams{
		Engine: "database", SecretRef: "v-short", TTL: time.Millisecond,
	})
	require.NoError(t, err)

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	sweeper := NewExpirySweeper(manager, 10*time.Millisecond, slog.Default())
	go func() {
		done <- sweeper.Start(sweepCtx)
	}()

	require.Eventually(t, func() bool {
		loaded, err := manager.Get(ctx, lease.ID)
		return err == nil && loaded.Status == leaseDomain.StatusExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// revoke hook ran exactly once despite repeated sweeps
	assert.Equal(t, 1, revoker.callCount())
}

func TestAutoRenewSweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	manager, _ := newSweeperFixture(t)

	lease, err := manager.Create(ctx, leaseUsecase.CreateLeaseParams{
		Engine: "database", SecretRef: "v-auto", TTL: time.Hour, Renewable: true, AutoRenew: true,
	})
	require.NoError(t, err)

	sweepCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	sweeper := NewAutoRenewSweeper(manager, 10*time.Millisecond, slog.Default())
	go func() {
		done <- sweeper.Start(sweepCtx)
	}()

	// the lease is far from expiry, so the sweeper should leave it alone
	time.Sleep(50 * time.Millisecond)
	loaded, err := manager.Get(ctx, lease.ID)
	require.NoError(t, err)
	assert.Zero(t, loaded.RenewalCount)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// a lease inside the window is renewed directly
	renewed, err := manager.AutoRenewDue(ctx, time.Now().UTC(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)
}

func TestSweeper_DefaultIntervals(t *testing.T) {
	manager, _ := newSweeperFixture(t)

	expiry := NewExpirySweeper(manager, 0, slog.Default())
	assert.Equal(t, DefaultExpiryInterval, expiry.interval)

	autoRenew := NewAutoRenewSweeper(manager, -time.Second, slog.Default())
	assert.Equal(t, DefaultAutoRenewInterval, autoRenew.interval)
}
