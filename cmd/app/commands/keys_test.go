package commands

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	keyringUsecase "github.com/custodia/custodia/internal/keyring/usecase"
	sealService "github.com/custodia/custodia/internal/seal/service"
)

// newUnsealedKeyring initializes a fresh container and returns its keyring
// and seal manager, already unsealed.
func newUnsealedKeyring(t *testing.T) (keyringUsecase.KeyringUseCase, *sealService.SealManager) {
	t.Helper()

	container := newTestContainer(t)
	manager, err := container.SealManager()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunInit(context.Background(), manager, testLogger(), &out, 1, 1))

	keyring, err := container.KeyringUseCase()
	require.NoError(t, err)
	return keyring, manager
}

func TestKeyCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("create-rotate-list-delete", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.NoError(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"payments", "encryption", "aes256-gcm", false))
		assert.Contains(t, out.String(), `Created key "payments"`)

		out.Reset()
		require.NoError(t, RunRotateKey(ctx, keyring, manager, testLogger(), &out, nil, "payments"))
		assert.Contains(t, out.String(), "version 2")

		out.Reset()
		require.NoError(t, RunListKeys(ctx, keyring, manager, &out, nil))
		assert.Contains(t, out.String(), "payments")

		// Deletion is forbidden until the config allows it.
		out.Reset()
		require.Error(t, RunDeleteKey(ctx, keyring, manager, testLogger(), &out, nil, "payments"))

		require.NoError(t, RunUpdateKeyConfig(ctx, keyring, manager, testLogger(), &out, nil,
			"payments", 0, 0, "true"))
		require.NoError(t, RunDeleteKey(ctx, keyring, manager, testLogger(), &out, nil, "payments"))

		out.Reset()
		require.NoError(t, RunListKeys(ctx, keyring, manager, &out, nil))
		assert.Contains(t, out.String(), "No keys.")
	})

	t.Run("get-key-strips-key-material", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.NoError(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"payments", "encryption", "aes256-gcm", false))
		require.NoError(t, RunRotateKey(ctx, keyring, manager, testLogger(), &out, nil, "payments"))

		out.Reset()
		require.NoError(t, RunGetKey(ctx, keyring, manager, &out, nil, "payments"))
		assert.Contains(t, out.String(), "Name:                   payments")
		assert.Contains(t, out.String(), "Latest version:         2")
		assert.Contains(t, out.String(), "v1")
		assert.Contains(t, out.String(), "v2")

		// the rendered view must never carry symmetric key material
		key, err := keyring.Get(ctx, "payments")
		require.NoError(t, err)
		defer key.Zero()
		for _, kv := range key.Versions {
			assert.NotContains(t, out.String(), base64.StdEncoding.EncodeToString(kv.Key))
		}
	})

	t.Run("get-key-shows-public-keys", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.NoError(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"releases", "signing", "ed25519", false))

		out.Reset()
		require.NoError(t, RunGetKey(ctx, keyring, manager, &out, nil, "releases"))
		assert.Contains(t, out.String(), "public_key")

		key, err := keyring.Get(ctx, "releases")
		require.NoError(t, err)
		defer key.Zero()
		for _, kv := range key.Versions {
			assert.NotContains(t, out.String(), base64.StdEncoding.EncodeToString(kv.PrivateKey))
		}
	})

	t.Run("update-config-bounds", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.NoError(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"audit", "signing", "ed25519", false))
		require.NoError(t, RunRotateKey(ctx, keyring, manager, testLogger(), &out, nil, "audit"))

		out.Reset()
		require.NoError(t, RunUpdateKeyConfig(ctx, keyring, manager, testLogger(), &out, nil,
			"audit", 2, 0, ""))
		assert.Contains(t, out.String(), "min_decryption_version=2")

		// Bound above the latest version is rejected.
		require.Error(t, RunUpdateKeyConfig(ctx, keyring, manager, testLogger(), &out, nil,
			"audit", 9, 0, ""))
	})

	t.Run("invalid-deletion-allowed", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.NoError(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"cache", "encryption", "chacha20-poly1305", false))

		err := RunUpdateKeyConfig(ctx, keyring, manager, testLogger(), &out, nil,
			"cache", 0, 0, "maybe")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --deletion-allowed value")
	})

	t.Run("invalid-algorithm", func(t *testing.T) {
		keyring, manager := newUnsealedKeyring(t)
		var out bytes.Buffer

		require.Error(t, RunCreateKey(ctx, keyring, manager, testLogger(), &out, nil,
			"legacy", "encryption", "des-cbc", false))
	})
}
