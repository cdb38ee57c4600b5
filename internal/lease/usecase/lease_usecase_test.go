package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
	"github.com/custodia/custodia/internal/storage"
)

// fakeRevoker records revocation side effects and can be told to fail.
type fakeRevoker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRevoker) RevokeSecret(ctx context.Context, engine, secretRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, engine+"/"+secretRef)
	return f.err
}

func (f *fakeRevoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRevoker) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestLeaseManager(t *testing.T, opts ...Option) (LeaseManager, *fakeRevoker) {
	t.Helper()

	revoker := &fakeRevoker{}
	base := []Option{WithRevokeRetry(0, time.Millisecond)}
	manager := NewLeaseManager(
		storage.NewMemoryBackend(),
		revoker,
		authz.AllowAll(),
		audit.NopRecorder{},
		slog.Default(),
		append(base, opts...)...,
	)
	return manager, revoker
}

func activeLease(t *testing.T, manager LeaseManager, params CreateLeaseParams) *leaseDomain.Lease {
	t.Helper()
	lease, err := manager.Create(context.Background(), params)
	require.NoError(t, err)
	return lease
}

func TestLeaseManager_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)

		lease := activeLease(t, manager, CreateLeaseParams{
			Engine:    "database",
			SecretRef: "v-readonly-a1b2c3d4",
			Owner:     "svc-reporting",
			TTL:       time.Hour,
			Renewable: true,
		})

		assert.Equal(t, leaseDomain.StatusActive, lease.Status)
		assert.Equal(t, time.Hour, lease.TTL)
		assert.WithinDuration(t, lease.IssuedAt.Add(time.Hour), lease.ExpiresAt, time.Second)

		loaded, err := manager.Get(ctx, lease.ID)
		require.NoError(t, err)
		assert.Equal(t, lease.ID, loaded.ID)
	})

	t.Run("Success_TTLCappedToMax", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t, WithMaxTTL(30*time.Minute))

		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: 4 * time.Hour,
		})
		assert.Equal(t, 30*time.Minute, lease.TTL)
	})

	t.Run("Error_InvalidTTL", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)

		_, err := manager.Create(ctx, CreateLeaseParams{Engine: "database", SecretRef: "u"})
		assert.ErrorIs(t, err, leaseDomain.ErrInvalidTTL)
	})

	t.Run("Error_Denied", func(t *testing.T) {
		manager := NewLeaseManager(
			storage.NewMemoryBackend(), &fakeRevoker{}, authz.DenyAll(),
			audit.NopRecorder{}, slog.Default(),
		)

		_, err := manager.Create(ctx, CreateLeaseParams{Engine: "database", SecretRef: "u", TTL: time.Hour})
		assert.ErrorIs(t, err, authz.ErrDenied)
	})
}

func TestLeaseManager_Renew(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_ExtendsExpiry", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})

		renewed, err := manager.Renew(ctx, lease.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, renewed.RenewalCount)
		assert.Len(t, renewed.RenewalHistory, 1)
		assert.True(t, renewed.ExpiresAt.After(lease.ExpiresAt) || renewed.ExpiresAt.Equal(lease.ExpiresAt))
	})

	t.Run("Success_NeverExceedsAbsoluteCap", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t, WithMaxTTL(90*time.Minute))
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})

		renewed, err := manager.Renew(ctx, lease.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, lease.IssuedAt.Add(90*time.Minute), renewed.ExpiresAt)
	})

	t.Run("Success_IncrementOverridesTTL", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})

		renewed, err := manager.Renew(ctx, lease.ID, 10*time.Minute)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), renewed.ExpiresAt, time.Second)
	})

	t.Run("Success_IncrementClampedToAbsoluteCap", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t, WithMaxTTL(90*time.Minute))
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})

		renewed, err := manager.Renew(ctx, lease.ID, 6*time.Hour)
		require.NoError(t, err)
		assert.Equal(t, lease.IssuedAt.Add(90*time.Minute), renewed.ExpiresAt)
	})

	t.Run("Error_StuckLeaseStaysStuck", func(t *testing.T) {
		manager, revoker := newTestLeaseManager(t, WithStuckThreshold(1))
		revoker.setErr(errors.New("connection refused"))

		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})

		err := manager.Revoke(ctx, lease.ID)
		assert.ErrorIs(t, err, leaseDomain.ErrRevocationSideEffectFailed)

		loaded, getErr := manager.Get(ctx, lease.ID)
		require.NoError(t, getErr)
		require.Equal(t, leaseDomain.StatusStuck, loaded.Status)

		// a lease with a pending revocation must not be extendable
		_, err = manager.Renew(ctx, lease.ID, 0)
		assert.ErrorIs(t, err, leaseDomain.ErrLeaseNotRenewable)

		loaded, getErr = manager.Get(ctx, lease.ID)
		require.NoError(t, getErr)
		assert.Equal(t, leaseDomain.StatusStuck, loaded.Status)
	})

	t.Run("Error_NotRenewable", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour,
		})

		_, err := manager.Renew(ctx, lease.ID, 0)
		assert.ErrorIs(t, err, leaseDomain.ErrLeaseNotRenewable)
	})

	t.Run("Error_RenewalLimitExceeded", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true, MaxRenewals: 1,
		})

		_, err := manager.Renew(ctx, lease.ID, 0)
		require.NoError(t, err)

		_, err = manager.Renew(ctx, lease.ID, 0)
		assert.ErrorIs(t, err, leaseDomain.ErrRenewalLimitExceeded)
	})

	t.Run("Error_UnknownLease", func(t *testing.T) {
		manager, _ := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
		})
		require.NoError(t, manager.Revoke(ctx, lease.ID))

		_, err := manager.Renew(ctx, lease.ID, 0)
		assert.ErrorIs(t, err, leaseDomain.ErrLeaseNotRenewable)
	})
}

func TestLeaseManager_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_SideEffectConfirmedOnce", func(t *testing.T) {
		manager, revoker := newTestLeaseManager(t)
		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "v-app-x", TTL: time.Hour,
		})

		require.NoError(t, manager.Revoke(ctx, lease.ID))
		assert.Equal(t, []string{"database/v-app-x"}, revoker.calls)

		loaded, err := manager.Get(ctx, lease.ID)
		require.NoError(t, err)
		assert.Equal(t, leaseDomain.StatusRevoked, loaded.Status)

		// idempotent: terminal lease does not re-run the side effect
		require.NoError(t, manager.Revoke(ctx, lease.ID))
		assert.Equal(t, 1, revoker.callCount())
	})

	t.Run("Error_SideEffectFailureKeepsLeaseLive", func(t *testing.T) {
		manager, revoker := newTestLeaseManager(t, WithStuckThreshold(2))
		revoker.setErr(errors.New("connection refused"))

		lease := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "u", TTL: time.Hour,
		})

		err := manager.Revoke(ctx, lease.ID)
		assert.ErrorIs(t, err, leaseDomain.ErrRevocationSideEffectFailed)

		loaded, getErr := manager.Get(ctx, lease.ID)
		require.NoError(t, getErr)
		assert.Equal(t, leaseDomain.StatusActive, loaded.Status)
		assert.Equal(t, 1, loaded.RevocationAttempts)

		// second failure crosses the threshold and flags the lease
		err = manager.Revoke(ctx, lease.ID)
		assert.ErrorIs(t, err, leaseDomain.ErrRevocationSideEffectFailed)

		loaded, getErr = manager.Get(ctx, lease.ID)
		require.NoError(t, getErr)
		assert.Equal(t, leaseDomain.StatusStuck, loaded.Status)

		// once the engine recovers, revocation completes
		revoker.setErr(nil)
		require.NoError(t, manager.Revoke(ctx, lease.ID))

		loaded, getErr = manager.Get(ctx, lease.ID)
		require.NoError(t, getErr)
		assert.Equal(t, leaseDomain.StatusRevoked, loaded.Status)
	})
}

func TestLeaseManager_ExpireDue(t *testing.T) {
	ctx := context.Background()
	manager, revoker := newTestLeaseManager(t)

	expiring := activeLease(t, manager, CreateLeaseParams{
		Engine: "database", SecretRef: "v-short", TTL: time.Millisecond,
	})
	longLived := activeLease(t, manager, CreateLeaseParams{
		Engine: "database", SecretRef: "v-long", TTL: time.Hour,
	})

	expired, err := manager.ExpireDue(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, revoker.callCount())

	loaded, err := manager.Get(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, leaseDomain.StatusExpired, loaded.Status)

	loaded, err = manager.Get(ctx, longLived.ID)
	require.NoError(t, err)
	assert.Equal(t, leaseDomain.StatusActive, loaded.Status)

	// second sweep finds nothing and never re-runs the side effect
	expired, err = manager.ExpireDue(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Zero(t, expired)
	assert.Equal(t, 1, revoker.callCount())
}

func TestLeaseManager_AutoRenewDue(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestLeaseManager(t)

	autoRenewing := activeLease(t, manager, CreateLeaseParams{
		Engine: "database", SecretRef: "a", TTL: time.Hour, Renewable: true, AutoRenew: true,
	})
	exhausted := activeLease(t, manager, CreateLeaseParams{
		Engine: "database", SecretRef: "b", TTL: time.Hour, Renewable: true, AutoRenew: true, MaxRenewals: 1,
	})
	_, err := manager.Renew(ctx, exhausted.ID, 0)
	require.NoError(t, err)

	renewed, err := manager.AutoRenewDue(ctx, time.Now().UTC(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, renewed)

	loaded, err := manager.Get(ctx, autoRenewing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.RenewalCount)

	t.Run("OutsideWindowLeftAlone", func(t *testing.T) {
		renewed, err := manager.AutoRenewDue(ctx, time.Now().UTC(), time.Minute)
		require.NoError(t, err)
		assert.Zero(t, renewed)
	})

	t.Run("StuckLeaseLeftForSweepers", func(t *testing.T) {
		manager, revoker := newTestLeaseManager(t, WithStuckThreshold(1))
		revoker.setErr(errors.New("connection refused"))

		stuck := activeLease(t, manager, CreateLeaseParams{
			Engine: "database", SecretRef: "c", TTL: time.Hour, Renewable: true, AutoRenew: true,
		})
		err := manager.Revoke(ctx, stuck.ID)
		assert.ErrorIs(t, err, leaseDomain.ErrRevocationSideEffectFailed)

		renewed, err := manager.AutoRenewDue(ctx, time.Now().UTC(), 2*time.Hour)
		require.NoError(t, err)
		assert.Zero(t, renewed)

		loaded, err := manager.Get(ctx, stuck.ID)
		require.NoError(t, err)
		assert.Equal(t, leaseDomain.StatusStuck, loaded.Status)
	})
}

func TestLeaseManager_RevokeWinsOverRenew(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestLeaseManager(t)

	lease := activeLease(t, manager, CreateLeaseParams{
		Engine: "database", SecretRef: "u", TTL: time.Hour, Renewable: true,
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = manager.Renew(ctx, lease.ID, 0)
		}()
	}

	require.NoError(t, manager.Revoke(ctx, lease.ID))
	wg.Wait()

	// once revoke has returned success the lease can never read Active again
	loaded, err := manager.Get(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, leaseDomain.StatusRevoked, loaded.Status)

	_, err = manager.Renew(ctx, lease.ID, 0)
	assert.ErrorIs(t, err, leaseDomain.ErrLeaseNotRenewable)
}
