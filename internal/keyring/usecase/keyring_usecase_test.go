package usecase

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/custodia/internal/audit"
	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	apperrors "github.com/custodia/custodia/internal/errors"
	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	sealService "github.com/custodia/custodia/internal/seal/service"
	"github.com/custodia/custodia/internal/storage"
)

func newTestKeyring(t *testing.T) (KeyringUseCase, *sealService.SealManager) {
	t.Helper()

	backend := storage.NewMemoryBackend()
	manager := sealService.NewSealManager(
		backend,
		cryptoService.NewAEADManager(),
		audit.NopRecorder{},
		slog.Default(),
	)
	_, err := manager.Initialize(context.Background(), 1, 1)
	require.NoError(t, err)

	uc := NewKeyringUseCase(manager, backend, cryptoService.NewSigner(), audit.NopRecorder{}, slog.Default())
	return uc, manager
}

func TestKeyringUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_EncryptionKey", func(t *testing.T) {
		uc, _ := newTestKeyring(t)

		key, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
		require.NoError(t, err)
		assert.Equal(t, 1, key.LatestVersion)
		assert.Equal(t, 1, key.MinDecryptionVersion)
		assert.Len(t, key.Versions[1].Key, cryptoDomain.KeySize)

		loaded, err := uc.Get(ctx, "payments")
		require.NoError(t, err)
		assert.Equal(t, key.Versions[1].Key, loaded.Versions[1].Key)
	})

	t.Run("Success_SigningKey", func(t *testing.T) {
		uc, _ := newTestKeyring(t)

		key, err := uc.Create(ctx, "audit-signer", keyringDomain.TypeSigning, string(cryptoDomain.Ed25519), false)
		require.NoError(t, err)
		assert.NotEmpty(t, key.Versions[1].PrivateKey)
		assert.NotEmpty(t, key.Versions[1].PublicKey)
		assert.Empty(t, key.Versions[1].Key)
	})

	t.Run("Error_DuplicateName", func(t *testing.T) {
		uc, _ := newTestKeyring(t)

		_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
		require.NoError(t, err)

		_, err = uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
		assert.ErrorIs(t, err, keyringDomain.ErrKeyExists)
	})

	t.Run("Error_InvalidName", func(t *testing.T) {
		uc, _ := newTestKeyring(t)

		_, err := uc.Create(ctx, "../core/root", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_UnsupportedAlgorithm", func(t *testing.T) {
		uc, _ := newTestKeyring(t)

		_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, "des-cbc", false)
		assert.ErrorIs(t, err, cryptoDomain.ErrUnsupportedAlgorithm)
	})

	t.Run("Error_Sealed", func(t *testing.T) {
		uc, manager := newTestKeyring(t)
		manager.Seal(ctx)

		_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
		assert.ErrorIs(t, err, apperrors.ErrSealed)
	})
}

func TestKeyringUseCase_Rotate(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	created, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
	require.NoError(t, err)

	rotated, err := uc.Rotate(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, 2, rotated.LatestVersion)
	assert.Equal(t, 1, rotated.MinDecryptionVersion)

	// version 1 material survives rotation unchanged
	assert.Equal(t, created.Versions[1].Key, rotated.Versions[1].Key)
	assert.NotEqual(t, rotated.Versions[1].Key, rotated.Versions[2].Key)

	t.Run("Error_UnknownKey", func(t *testing.T) {
		_, err := uc.Rotate(ctx, "missing")
		assert.ErrorIs(t, err, keyringDomain.ErrKeyNotFound)
	})
}

func TestKeyringUseCase_ConcurrentRotateAndGet(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
	require.NoError(t, err)

	const rotations = 20
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rotations; i++ {
			_, err := uc.Rotate(ctx, "payments")
			assert.NoError(t, err)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < rotations; i++ {
			key, err := uc.Get(ctx, "payments")
			assert.NoError(t, err)
			// Readers always see a complete version list.
			assert.Len(t, key.Versions, key.LatestVersion)
			for v := 1; v <= key.LatestVersion; v++ {
				assert.NotNil(t, key.Versions[v])
			}
		}
	}()

	wg.Wait()

	key, err := uc.Get(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, 1+rotations, key.LatestVersion)
}

func TestKeyringUseCase_UpdateConfig(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
	require.NoError(t, err)
	_, err = uc.Rotate(ctx, "payments")
	require.NoError(t, err)

	t.Run("Success_RaiseMinDecryptionVersion", func(t *testing.T) {
		two := 2
		key, err := uc.UpdateConfig(ctx, "payments", keyringDomain.ConfigUpdate{MinDecryptionVersion: &two})
		require.NoError(t, err)
		assert.Equal(t, 2, key.MinDecryptionVersion)

		_, err = key.VersionForDecrypt(1)
		assert.ErrorIs(t, err, keyringDomain.ErrKeyVersionDisabled)
	})

	t.Run("Error_BoundAboveLatest", func(t *testing.T) {
		five := 5
		_, err := uc.UpdateConfig(ctx, "payments", keyringDomain.ConfigUpdate{MinDecryptionVersion: &five})
		assert.ErrorIs(t, err, keyringDomain.ErrInvalidVersionBound)
	})
}

func TestKeyringUseCase_Delete(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
	require.NoError(t, err)

	t.Run("Error_DeletionNotAllowedByDefault", func(t *testing.T) {
		err := uc.Delete(ctx, "payments")
		assert.ErrorIs(t, err, keyringDomain.ErrDeletionNotAllowed)
	})

	t.Run("Success_AfterEnablingDeletion", func(t *testing.T) {
		allowed := true
		_, err := uc.UpdateConfig(ctx, "payments", keyringDomain.ConfigUpdate{DeletionAllowed: &allowed})
		require.NoError(t, err)

		require.NoError(t, uc.Delete(ctx, "payments"))

		_, err = uc.Get(ctx, "payments")
		assert.ErrorIs(t, err, keyringDomain.ErrKeyNotFound)
	})
}

func TestKeyringUseCase_List(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	_, err := uc.Create(ctx, "payments", keyringDomain.TypeEncryption, string(cryptoDomain.AESGCM), false)
	require.NoError(t, err)
	_, err = uc.Create(ctx, "audit-signer", keyringDomain.TypeSigning, string(cryptoDomain.Ed25519), false)
	require.NoError(t, err)

	names, err := uc.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"payments", "audit-signer"}, names)
}

func TestNamedKey_Sanitized(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestKeyring(t)

	key, err := uc.Create(ctx, "audit-signer", keyringDomain.TypeSigning, string(cryptoDomain.Ed25519), false)
	require.NoError(t, err)

	sanitized := key.Sanitized()
	assert.Empty(t, sanitized.Versions[1].PrivateKey)
	assert.NotEmpty(t, sanitized.Versions[1].PublicKey)

	// original untouched
	assert.NotEmpty(t, key.Versions[1].PrivateKey)
}
