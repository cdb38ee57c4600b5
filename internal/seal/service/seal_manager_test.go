package service

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/custodia/internal/audit"
	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	sealDomain "github.com/custodia/custodia/internal/seal/domain"
	"github.com/custodia/custodia/internal/shamir"
	"github.com/custodia/custodia/internal/storage"
)

func newTestSealManager(t *testing.T, opts ...Option) (*SealManager, *storage.MemoryBackend) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	manager := NewSealManager(
		backend,
		cryptoService.NewAEADManager(),
		audit.NopRecorder{},
		slog.Default(),
		opts...,
	)
	return manager, backend
}

func TestSealManager_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("LeavesSystemUnsealed", func(t *testing.T) {
		manager, backend := newTestSealManager(t)

		shares, err := manager.Initialize(ctx, 5, 3)
		require.NoError(t, err)
		assert.Len(t, shares, 5)

		status := manager.Status()
		assert.True(t, status.Initialized)
		assert.Equal(t, sealDomain.Unsealed, status.State)
		assert.Equal(t, 3, status.Threshold)
		assert.NoError(t, manager.CheckUnsealed())

		// wrapped root record and config are durable; shares are not
		_, err = backend.Get(ctx, storage.RootRecordKey)
		assert.NoError(t, err)
		_, err = backend.Get(ctx, storage.SealConfigKey)
		assert.NoError(t, err)
	})

	t.Run("SecondInitializeFails", func(t *testing.T) {
		manager, _ := newTestSealManager(t)

		_, err := manager.Initialize(ctx, 5, 3)
		require.NoError(t, err)

		_, err = manager.Initialize(ctx, 5, 3)
		assert.ErrorIs(t, err, sealDomain.ErrAlreadyInitialized)
	})

	t.Run("InvalidParameters", func(t *testing.T) {
		manager, _ := newTestSealManager(t)

		_, err := manager.Initialize(ctx, 2, 3)
		assert.ErrorIs(t, err, shamir.ErrInvalidParameters)
	})
}

func TestSealManager_SealUnseal(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestSealManager(t)

	shares, err := manager.Initialize(ctx, 5, 3)
	require.NoError(t, err)

	manager.Seal(ctx)
	assert.ErrorIs(t, manager.CheckUnsealed(), sealDomain.ErrSealed)
	assert.Equal(t, sealDomain.Sealed, manager.Status().State)

	t.Run("AnyThreeSharesUnseal", func(t *testing.T) {
		for _, share := range []shamir.Share{shares[4], shares[0], shares[2]} {
			status, err := manager.SubmitUnsealShare(ctx, share)
			require.NoError(t, err)
			if status.State == sealDomain.Unsealed {
				break
			}
		}
		assert.NoError(t, manager.CheckUnsealed())
	})

	t.Run("WrongShareFailsAndClearsBuffer", func(t *testing.T) {
		manager.Seal(ctx)

		_, err := manager.SubmitUnsealShare(ctx, shares[0])
		require.NoError(t, err)
		status, err := manager.SubmitUnsealShare(ctx, shares[1])
		require.NoError(t, err)
		assert.Equal(t, sealDomain.Unsealing, status.State)
		assert.Equal(t, 2, status.SharesProvided)

		bogus := shamir.Share{X: 200, Y: make([]byte, len(shares[0].Y))}
		status, err = manager.SubmitUnsealShare(ctx, bogus)
		assert.ErrorIs(t, err, sealDomain.ErrInvalidShares)
		assert.Equal(t, sealDomain.Sealed, status.State)
		assert.Zero(t, status.SharesProvided)
	})

	t.Run("DuplicateShareIsIgnored", func(t *testing.T) {
		manager.Seal(ctx)

		_, err := manager.SubmitUnsealShare(ctx, shares[0])
		require.NoError(t, err)
		status, err := manager.SubmitUnsealShare(ctx, shares[0])
		require.NoError(t, err)
		assert.Equal(t, 1, status.SharesProvided)
	})
}

func TestSealManager_SubmitBeforeInitialize(t *testing.T) {
	manager, _ := newTestSealManager(t)

	_, err := manager.SubmitUnsealShare(context.Background(), shamir.Share{X: 1, Y: []byte{1}})
	assert.ErrorIs(t, err, sealDomain.ErrNotInitialized)
}

func TestSealManager_WrapUnwrap(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestSealManager(t)

	t.Run("FailsWhileSealed", func(t *testing.T) {
		_, err := manager.Wrap([]byte("record"), nil)
		assert.ErrorIs(t, err, sealDomain.ErrSealed)
	})

	_, err := manager.Initialize(ctx, 1, 1)
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		blob, err := manager.Wrap([]byte("keyring record"), []byte("keyring/payments"))
		require.NoError(t, err)

		plaintext, err := manager.Unwrap(blob, []byte("keyring/payments"))
		require.NoError(t, err)
		assert.Equal(t, []byte("keyring record"), plaintext)
	})

	t.Run("SurvivesSealUnsealCycle", func(t *testing.T) {
		blob, err := manager.Wrap([]byte("durable"), nil)
		require.NoError(t, err)

		shares, err := manager.Rotate(ctx, 3, 2)
		require.NoError(t, err)
		manager.Seal(ctx)

		_, err = manager.SubmitUnsealShare(ctx, shares[0])
		require.NoError(t, err)
		_, err = manager.SubmitUnsealShare(ctx, shares[1])
		require.NoError(t, err)

		plaintext, err := manager.Unwrap(blob, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("durable"), plaintext)
	})
}

func TestSealManager_AuditSigningKey(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestSealManager(t)

	t.Run("FailsWhileSealed", func(t *testing.T) {
		_, err := manager.AuditSigningKey()
		assert.ErrorIs(t, err, sealDomain.ErrSealed)
	})

	shares, err := manager.Initialize(ctx, 1, 1)
	require.NoError(t, err)

	t.Run("StableAcrossSealUnseal", func(t *testing.T) {
		first, err := manager.AuditSigningKey()
		require.NoError(t, err)
		require.Len(t, first, 32)

		manager.Seal(ctx)
		_, err = manager.AuditSigningKey()
		assert.ErrorIs(t, err, sealDomain.ErrSealed)

		_, err = manager.SubmitUnsealShare(ctx, shares[0])
		require.NoError(t, err)

		second, err := manager.AuditSigningKey()
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestSealManager_Rotate(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestSealManager(t)

	t.Run("FailsWhileSealed", func(t *testing.T) {
		_, err := manager.Rotate(ctx, 5, 3)
		assert.ErrorIs(t, err, sealDomain.ErrSealed)
	})

	oldShares, err := manager.Initialize(ctx, 5, 3)
	require.NoError(t, err)

	newShares, err := manager.Rotate(ctx, 7, 4)
	require.NoError(t, err)
	assert.Len(t, newShares, 7)

	t.Run("OldSharesNoLongerUnseal", func(t *testing.T) {
		manager.Seal(ctx)

		for _, share := range oldShares[:3] {
			_, err = manager.SubmitUnsealShare(ctx, share)
			require.NoError(t, err)
		}
		// the fourth old share reaches the new threshold; the old root cannot
		// open the replaced root record
		_, err = manager.SubmitUnsealShare(ctx, oldShares[3])
		assert.ErrorIs(t, err, sealDomain.ErrInvalidShares)
		assert.Equal(t, sealDomain.Sealed, manager.Status().State)

		for _, share := range newShares[:4] {
			_, err = manager.SubmitUnsealShare(ctx, share)
		}
		require.NoError(t, err)
		assert.NoError(t, manager.CheckUnsealed())
	})
}

func TestSealManager_KMSAutoUnseal(t *testing.T) {
	ctx := context.Background()

	// Local base64key keeper, 32 random bytes.
	keyURI := "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

	t.Run("RoundTrip", func(t *testing.T) {
		keeper, err := NewKMSService().OpenKeeper(ctx, keyURI)
		require.NoError(t, err)

		manager, backend := newTestSealManager(t, WithKMSKeeper(keeper))

		_, err = manager.Initialize(ctx, 3, 2)
		require.NoError(t, err)

		// Initialize additionally stored a KMS-wrapped root record.
		_, err = backend.Get(ctx, storage.KMSRootKey)
		require.NoError(t, err)

		manager.Seal(ctx)
		require.Error(t, manager.CheckUnsealed())

		require.NoError(t, manager.UnsealWithKMS(ctx))
		assert.NoError(t, manager.CheckUnsealed())
	})

	t.Run("NoKeeperConfigured", func(t *testing.T) {
		manager, _ := newTestSealManager(t)

		_, err := manager.Initialize(ctx, 3, 2)
		require.NoError(t, err)
		manager.Seal(ctx)

		assert.ErrorIs(t, manager.UnsealWithKMS(ctx), sealDomain.ErrKMSUnavailable)
	})
}

func TestSealManager_UnsealRateLimit(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestSealManager(t, WithUnsealRateLimit(1, 1))

	shares, err := manager.Initialize(ctx, 5, 3)
	require.NoError(t, err)
	manager.Seal(ctx)

	_, err = manager.SubmitUnsealShare(ctx, shares[0])
	require.NoError(t, err)

	_, err = manager.SubmitUnsealShare(ctx, shares[1])
	assert.ErrorIs(t, err, sealDomain.ErrUnsealRateLimited)
}

func TestSealManager_LoadConfig(t *testing.T) {
	ctx := context.Background()
	manager, backend := newTestSealManager(t)

	_, err := manager.Initialize(ctx, 5, 3)
	require.NoError(t, err)

	// a new manager over the same backend starts sealed but initialized
	restarted := NewSealManager(backend, cryptoService.NewAEADManager(), audit.NopRecorder{}, slog.Default())
	require.NoError(t, restarted.LoadConfig(ctx))

	status := restarted.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, sealDomain.Sealed, status.State)
	assert.Equal(t, 3, status.Threshold)
}
