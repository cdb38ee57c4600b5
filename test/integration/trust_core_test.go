// Package integration provides end-to-end tests for the trust core: seal
// lifecycle, named keys, transit operations and the lease ledger wired
// through the application container.
package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/custodia/internal/app"
	"github.com/custodia/custodia/internal/config"
	"github.com/custodia/custodia/internal/engine"
	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	leaseDomain "github.com/custodia/custodia/internal/lease/domain"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	"github.com/custodia/custodia/internal/shamir"
)

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	cfg := &config.Config{
		StorageBackend:           "memory",
		LogLevel:                 "error",
		AuditMode:                "fail-open",
		AuditSink:                "log",
		MetricsEnabled:           false,
		LeaseMaxTTL:              72 * time.Hour,
		LeaseStuckThreshold:      5,
		LeaseExpirySweepInterval: time.Minute,
		LeaseAutoRenewInterval:   time.Minute,
	}
	container := app.NewContainer(cfg)
	t.Cleanup(func() { _ = container.Shutdown(context.Background()) })
	return container
}

// TestTrustCore_EndToEnd walks the full lifecycle: initialize, seal and
// unseal with a threshold of shares, create and use a transit key, rotate
// it, and retire the old version.
func TestTrustCore_EndToEnd(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)

	manager, err := container.SealManager()
	require.NoError(t, err)

	shares, err := manager.Initialize(ctx, 5, 3)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	// Seal, then unseal with any 3 of the 5 shares.
	manager.Seal(ctx)
	require.Error(t, manager.CheckUnsealed())
	for _, share := range []shamir.Share{shares[4], shares[1], shares[2]} {
		_, err = manager.SubmitUnsealShare(ctx, share)
		require.NoError(t, err)
	}
	require.NoError(t, manager.CheckUnsealed())

	keyring, err := container.KeyringUseCase()
	require.NoError(t, err)
	transit, err := container.TransitUseCase()
	require.NoError(t, err)

	_, err = keyring.Create(ctx, "payments", keyringDomain.TypeEncryption, "aes256-gcm", false)
	require.NoError(t, err)

	v1Ciphertext, err := transit.Encrypt(ctx, "payments", []byte("4111111111111111"), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v1Ciphertext, "vault:v1:"))

	plaintext, err := transit.Decrypt(ctx, "payments", v1Ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", string(plaintext))

	// Rotation: new ciphertexts use v2, v1 ciphertexts stay readable.
	_, err = keyring.Rotate(ctx, "payments")
	require.NoError(t, err)

	v2Ciphertext, err := transit.Encrypt(ctx, "payments", []byte("4111111111111111"), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(v2Ciphertext, "vault:v2:"))

	_, err = transit.Decrypt(ctx, "payments", v1Ciphertext, nil)
	require.NoError(t, err)

	// Raising min_decryption_version retires v1 ciphertexts without
	// deleting key material.
	minDecryption := 2
	_, err = keyring.UpdateConfig(ctx, "payments", keyringDomain.ConfigUpdate{
		MinDecryptionVersion: &minDecryption,
	})
	require.NoError(t, err)

	_, err = transit.Decrypt(ctx, "payments", v1Ciphertext, nil)
	assert.ErrorIs(t, err, keyringDomain.ErrKeyVersionDisabled)

	_, err = transit.Decrypt(ctx, "payments", v2Ciphertext, nil)
	assert.NoError(t, err)
}

// TestTrustCore_SealGate verifies operations fail fast while sealed and
// recover after unsealing.
func TestTrustCore_SealGate(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)

	manager, err := container.SealManager()
	require.NoError(t, err)
	shares, err := manager.Initialize(ctx, 3, 2)
	require.NoError(t, err)

	keyring, err := container.KeyringUseCase()
	require.NoError(t, err)
	_, err = keyring.Create(ctx, "orders", keyringDomain.TypeEncryption, "chacha20-poly1305", false)
	require.NoError(t, err)

	transit, err := container.TransitUseCase()
	require.NoError(t, err)
	ciphertext, err := transit.Encrypt(ctx, "orders", []byte("payload"), nil)
	require.NoError(t, err)

	manager.Seal(ctx)

	_, err = transit.Decrypt(ctx, "orders", ciphertext, nil)
	require.Error(t, err)
	_, err = keyring.List(ctx)
	require.Error(t, err)

	for _, share := range shares[:2] {
		_, err = manager.SubmitUnsealShare(ctx, share)
		require.NoError(t, err)
	}

	plaintext, err := transit.Decrypt(ctx, "orders", ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(plaintext))
}

// countingEngine records revocations so sweeps can be asserted on.
type countingEngine struct {
	revoked []string
}

func (e *countingEngine) Type() engine.Type { return engine.TypeKV }

func (e *countingEngine) RevokeSecret(ctx context.Context, secretRef string) error {
	e.revoked = append(e.revoked, secretRef)
	return nil
}

// TestTrustCore_LeaseLifecycle drives the lease ledger through the expiry
// sweep against the container-wired manager.
func TestTrustCore_LeaseLifecycle(t *testing.T) {
	ctx := context.Background()
	container := newTestContainer(t)

	manager, err := container.SealManager()
	require.NoError(t, err)
	_, err = manager.Initialize(ctx, 1, 1)
	require.NoError(t, err)

	issuer := &countingEngine{}
	require.NoError(t, container.EngineRegistry().Mount("kv", issuer))

	leases, err := container.LeaseManager()
	require.NoError(t, err)

	lease, err := leases.Create(ctx, leaseUsecase.CreateLeaseParams{
		Engine:    "kv",
		SecretRef: "kv/session-token",
		Owner:     "integration",
		TTL:       time.Second,
		Renewable: true,
	})
	require.NoError(t, err)
	assert.Equal(t, leaseDomain.StatusActive, lease.Status)

	renewed, err := leases.Renew(ctx, lease.ID, 0)
	require.NoError(t, err)
	assert.True(t, renewed.ExpiresAt.After(lease.ExpiresAt) || renewed.ExpiresAt.Equal(lease.ExpiresAt))

	// An expiry sweep past the TTL revokes through the issuing engine and
	// expires the lease.
	expired, err := leases.ExpireDue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, []string{"kv/session-token"}, issuer.revoked)

	loaded, err := leases.Get(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, leaseDomain.StatusExpired, loaded.Status)
}
