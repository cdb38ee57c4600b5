// Package service implements the seal state machine protecting the root of
// the key hierarchy, and the optional KMS auto-unseal keeper.
package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia/custodia/internal/audit"
	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	apperrors "github.com/custodia/custodia/internal/errors"
	sealDomain "github.com/custodia/custodia/internal/seal/domain"
	"github.com/custodia/custodia/internal/shamir"
	"github.com/custodia/custodia/internal/storage"
)

// SealManager owns the seal state machine and the in-memory barrier key.
//
// The Shamir-split root key wraps a persisted barrier key; everything else in
// the hierarchy is wrapped under the barrier key, so root rotation only
// re-wraps one record. The root key exists in memory only inside Initialize,
// unseal and Rotate, and is zeroed before those calls return. The barrier key
// is held while unsealed and zeroed by Seal().
//
// All state mutations are serialized through one mutex; the "is unsealed"
// gate consulted by every engine operation is a lock-free atomic.
type SealManager struct {
	backend     storage.Backend
	aeadManager cryptoService.AEADManager
	recorder    audit.Recorder
	logger      *slog.Logger
	keeper      sealDomain.KMSKeeper
	limiter     *rate.Limiter

	unsealed atomic.Bool

	mu         sync.RWMutex
	config     *sealDomain.Config
	barrierKey []byte
	buffer     []shamir.Share
}

// Option configures a SealManager.
type Option func(*SealManager)

// WithKMSKeeper enables KMS auto-unseal: Initialize and Rotate additionally
// store the root key wrapped by the keeper, and UnsealWithKMS restores it
// without shares. Shamir shares remain the recovery path.
func WithKMSKeeper(keeper sealDomain.KMSKeeper) Option {
	return func(m *SealManager) { m.keeper = keeper }
}

// WithUnsealRateLimit throttles unseal share submission to damp share
// brute-forcing. Zero perSec disables the limiter.
func WithUnsealRateLimit(perSec float64, burst int) Option {
	return func(m *SealManager) {
		if perSec > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// NewSealManager creates a sealed SealManager over the given storage backend.
// Call LoadConfig to pick up an existing seal configuration.
func NewSealManager(
	backend storage.Backend,
	aeadManager cryptoService.AEADManager,
	recorder audit.Recorder,
	logger *slog.Logger,
	opts ...Option,
) *SealManager {
	m := &SealManager{
		backend:     backend,
		aeadManager: aeadManager,
		recorder:    recorder,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadConfig reads the persisted seal configuration, if any. Safe to call on
// an uninitialized system.
func (m *SealManager) LoadConfig(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.backend.Get(ctx, storage.SealConfigKey)
	if apperrors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to load seal config")
	}

	var cfg sealDomain.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return apperrors.Wrap(err, "failed to decode seal config")
	}
	m.config = &cfg
	return nil
}

// Initialized reports whether a seal configuration exists.
func (m *SealManager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config != nil
}

// CheckUnsealed is the lock-free gate every engine operation consults first.
// Returns ErrSealed without touching any other state when sealed.
func (m *SealManager) CheckUnsealed() error {
	if !m.unsealed.Load() {
		return sealDomain.ErrSealed
	}
	return nil
}

// Status returns a snapshot of the seal state machine.
func (m *SealManager) Status() sealDomain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := sealDomain.Status{
		Initialized: m.config != nil,
		State:       sealDomain.Sealed,
	}
	if m.config != nil {
		status.Shares = m.config.SecretShares
		status.Threshold = m.config.SecretThreshold
	}
	status.SharesProvided = len(m.buffer)

	if m.unsealed.Load() {
		status.State = sealDomain.Unsealed
	} else if len(m.buffer) > 0 {
		status.State = sealDomain.Unsealing
	}
	return status
}

// Initialize generates the root key, splits it into n shares with threshold k,
// wraps a fresh barrier key under the root key on durable storage and leaves
// the system unsealed. Valid exactly once; the shares are returned to the
// caller and never persisted.
func (m *SealManager) Initialize(ctx context.Context, n, k int) ([]shamir.Share, error) {
	if err := m.auditAttempt(ctx, "seal.initialize", "core/seal"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config != nil {
		m.audit(ctx, "seal.initialize", "core/seal", audit.ResultFailure)
		return nil, sealDomain.ErrAlreadyInitialized
	}
	if _, err := m.backend.Get(ctx, storage.RootRecordKey); err == nil {
		m.audit(ctx, "seal.initialize", "core/seal", audit.ResultFailure)
		return nil, sealDomain.ErrAlreadyInitialized
	}

	rootKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(rootKey); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate root key")
	}
	defer cryptoDomain.Zero(rootKey)

	barrierKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(barrierKey); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate barrier key")
	}

	shares, err := shamir.Split(rootKey, n, k)
	if err != nil {
		cryptoDomain.Zero(barrierKey)
		return nil, err
	}

	cfg := &sealDomain.Config{
		SecretShares:    n,
		SecretThreshold: k,
		CreatedAt:       time.Now().UTC(),
	}
	err = storage.WithinTx(ctx, m.backend, func(ctx context.Context) error {
		if err := m.persistRootRecord(ctx, rootKey, barrierKey); err != nil {
			return err
		}
		return m.persistConfig(ctx, cfg)
	})
	if err != nil {
		cryptoDomain.Zero(barrierKey)
		return nil, err
	}

	m.config = cfg
	m.barrierKey = barrierKey
	m.unsealed.Store(true)

	m.audit(ctx, "seal.initialize", "core/seal", audit.ResultSuccess)
	m.logger.Info("seal initialized", slog.Int("shares", n), slog.Int("threshold", k))
	return shares, nil
}

// SubmitUnsealShare buffers one share, deduplicating by x-coordinate. Once the
// threshold is reached it attempts reconstruction; on success the system is
// unsealed and the buffer cleared, on failure the buffer is cleared and
// ErrInvalidShares returned without revealing which share was wrong.
// Reconstruction runs to completion once started; it cannot be half-applied.
func (m *SealManager) SubmitUnsealShare(ctx context.Context, share shamir.Share) (sealDomain.Status, error) {
	if m.limiter != nil && !m.limiter.Allow() {
		return m.Status(), sealDomain.ErrUnsealRateLimited
	}
	if err := m.auditAttempt(ctx, "seal.unseal_share", "core/seal"); err != nil {
		return m.Status(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil {
		return m.statusLocked(), sealDomain.ErrNotInitialized
	}
	if m.unsealed.Load() {
		return m.statusLocked(), nil
	}

	for _, buffered := range m.buffer {
		if buffered.X == share.X {
			return m.statusLocked(), nil
		}
	}
	m.buffer = append(m.buffer, share)

	if len(m.buffer) < m.config.SecretThreshold {
		return m.statusLocked(), nil
	}

	err := m.tryUnseal(ctx)
	m.clearBufferLocked()
	if err != nil {
		m.audit(ctx, "seal.unseal", "core/seal", audit.ResultFailure)
		return m.statusLocked(), err
	}

	m.audit(ctx, "seal.unseal", "core/seal", audit.ResultSuccess)
	m.logger.Info("system unsealed")
	return m.statusLocked(), nil
}

// tryUnseal combines the buffered shares and unwraps the barrier key.
// Caller holds the write lock.
func (m *SealManager) tryUnseal(ctx context.Context) error {
	rootKey, err := shamir.Combine(m.buffer)
	if err != nil {
		return sealDomain.ErrInvalidShares
	}
	defer cryptoDomain.Zero(rootKey)

	return m.unsealWithRootLocked(ctx, rootKey)
}

// unsealWithRootLocked decrypts the persisted root record with the given root
// key and installs the barrier key. Caller holds the write lock.
func (m *SealManager) unsealWithRootLocked(ctx context.Context, rootKey []byte) error {
	record, err := m.loadRootRecord(ctx)
	if err != nil {
		return err
	}

	cipher, err := m.aeadManager.CreateCipher(rootKey, cryptoDomain.Algorithm(record.Algorithm))
	if err != nil {
		return sealDomain.ErrInvalidShares
	}

	barrierKey, err := cipher.Decrypt(record.WrappedKey, record.Nonce, nil)
	if err != nil {
		return sealDomain.ErrInvalidShares
	}

	m.barrierKey = barrierKey
	m.unsealed.Store(true)
	return nil
}

// UnsealWithKMS restores the root key through the configured KMS keeper and
// unseals without shares.
func (m *SealManager) UnsealWithKMS(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keeper == nil {
		return sealDomain.ErrKMSUnavailable
	}
	if m.config == nil {
		return sealDomain.ErrNotInitialized
	}
	if m.unsealed.Load() {
		return nil
	}

	wrapped, err := m.backend.Get(ctx, storage.KMSRootKey)
	if err != nil {
		return apperrors.Wrap(err, "failed to load KMS root record")
	}

	rootKey, err := m.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		m.audit(ctx, "seal.unseal_kms", "core/seal", audit.ResultFailure)
		return apperrors.Wrap(err, "failed to decrypt root key with KMS")
	}
	defer cryptoDomain.Zero(rootKey)

	if err := m.unsealWithRootLocked(ctx, rootKey); err != nil {
		m.audit(ctx, "seal.unseal_kms", "core/seal", audit.ResultFailure)
		return err
	}

	m.audit(ctx, "seal.unseal_kms", "core/seal", audit.ResultSuccess)
	m.logger.Info("system unsealed via KMS")
	return nil
}

// Seal zeroes the in-memory barrier key and share buffer immediately.
// Always succeeds, from any state.
func (m *SealManager) Seal(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unsealed.Store(false)
	cryptoDomain.Zero(m.barrierKey)
	m.barrierKey = nil
	m.clearBufferLocked()

	m.audit(ctx, "seal.seal", "core/seal", audit.ResultSuccess)
	m.logger.Info("system sealed")
}

// Rotate generates a new root key while unsealed, re-wraps the barrier key
// under it and returns a fresh share set. The old share set is invalidated by
// the replaced root record.
func (m *SealManager) Rotate(ctx context.Context, n, k int) ([]shamir.Share, error) {
	if err := m.auditAttempt(ctx, "seal.rotate_root", "core/seal"); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.unsealed.Load() {
		m.audit(ctx, "seal.rotate_root", "core/seal", audit.ResultFailure)
		return nil, sealDomain.ErrSealed
	}

	rootKey := make([]byte, cryptoDomain.KeySize)
	if _, err := rand.Read(rootKey); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate root key")
	}
	defer cryptoDomain.Zero(rootKey)

	shares, err := shamir.Split(rootKey, n, k)
	if err != nil {
		return nil, err
	}

	cfg := &sealDomain.Config{
		SecretShares:    n,
		SecretThreshold: k,
		CreatedAt:       time.Now().UTC(),
	}
	err = storage.WithinTx(ctx, m.backend, func(ctx context.Context) error {
		if err := m.persistRootRecord(ctx, rootKey, m.barrierKey); err != nil {
			return err
		}
		return m.persistConfig(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	m.config = cfg

	m.audit(ctx, "seal.rotate_root", "core/seal", audit.ResultSuccess)
	m.logger.Info("root key rotated", slog.Int("shares", n), slog.Int("threshold", k))
	return shares, nil
}

// Wrap encrypts plaintext under the barrier key. The keyring persists every
// record through this path so nothing below the barrier is plaintext at rest.
func (m *SealManager) Wrap(plaintext, aad []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.unsealed.Load() {
		return nil, sealDomain.ErrSealed
	}

	cipher, err := m.aeadManager.CreateCipher(m.barrierKey, cryptoDomain.AESGCM)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// AuditSigningKey derives the audit trail signing key from the barrier key.
// Satisfies the audit key source contract; the storage sink signs records
// with this key while unsealed and stores them unsigned while sealed. The
// caller owns zeroing the returned key.
func (m *SealManager) AuditSigningKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.unsealed.Load() {
		return nil, sealDomain.ErrSealed
	}
	return audit.DeriveSigningKey(m.barrierKey)
}

// Unwrap decrypts a blob produced by Wrap.
func (m *SealManager) Unwrap(blob, aad []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.unsealed.Load() {
		return nil, sealDomain.ErrSealed
	}
	if len(blob) < gcmNonceSize {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	cipher, err := m.aeadManager.CreateCipher(m.barrierKey, cryptoDomain.AESGCM)
	if err != nil {
		return nil, err
	}
	return cipher.Decrypt(blob[gcmNonceSize:], blob[:gcmNonceSize], aad)
}

// gcmNonceSize is the standard GCM nonce length used by Wrap/Unwrap blobs.
const gcmNonceSize = 12

// persistRootRecord wraps the barrier key under rootKey and stores the record.
// When a KMS keeper is configured the root key is additionally stored wrapped
// by the keeper for auto-unseal. Caller holds the write lock.
func (m *SealManager) persistRootRecord(ctx context.Context, rootKey, barrierKey []byte) error {
	cipher, err := m.aeadManager.CreateCipher(rootKey, cryptoDomain.AESGCM)
	if err != nil {
		return err
	}

	wrapped, nonce, err := cipher.Encrypt(barrierKey, nil)
	if err != nil {
		return apperrors.Wrap(err, "failed to wrap barrier key")
	}

	record := sealDomain.RootRecord{
		Algorithm:  string(cryptoDomain.AESGCM),
		Nonce:      nonce,
		WrappedKey: wrapped,
		CreatedAt:  time.Now().UTC(),
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode root record")
	}
	if err := m.backend.Put(ctx, storage.RootRecordKey, raw); err != nil {
		return apperrors.Wrap(err, "failed to persist root record")
	}

	if m.keeper != nil {
		kmsWrapped, err := m.keeper.Encrypt(ctx, rootKey)
		if err != nil {
			return apperrors.Wrap(err, "failed to wrap root key with KMS")
		}
		if err := m.backend.Put(ctx, storage.KMSRootKey, kmsWrapped); err != nil {
			return apperrors.Wrap(err, "failed to persist KMS root record")
		}
	}
	return nil
}

// loadRootRecord reads and decodes the persisted root record.
func (m *SealManager) loadRootRecord(ctx context.Context) (*sealDomain.RootRecord, error) {
	raw, err := m.backend.Get(ctx, storage.RootRecordKey)
	if apperrors.Is(err, storage.ErrKeyNotFound) {
		return nil, sealDomain.ErrNotInitialized
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load root record")
	}

	var record sealDomain.RootRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode root record")
	}
	return &record, nil
}

// persistConfig stores the seal configuration.
func (m *SealManager) persistConfig(ctx context.Context, cfg *sealDomain.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode seal config")
	}
	if err := m.backend.Put(ctx, storage.SealConfigKey, raw); err != nil {
		return apperrors.Wrap(err, "failed to persist seal config")
	}
	return nil
}

// statusLocked builds a Status snapshot. Caller holds at least the read lock.
func (m *SealManager) statusLocked() sealDomain.Status {
	status := sealDomain.Status{
		Initialized: m.config != nil,
		State:       sealDomain.Sealed,
	}
	if m.config != nil {
		status.Shares = m.config.SecretShares
		status.Threshold = m.config.SecretThreshold
	}
	status.SharesProvided = len(m.buffer)
	if m.unsealed.Load() {
		status.State = sealDomain.Unsealed
	} else if len(m.buffer) > 0 {
		status.State = sealDomain.Unsealing
	}
	return status
}

// clearBufferLocked zeroes and drops all buffered shares. Caller holds the
// write lock.
func (m *SealManager) clearBufferLocked() {
	for i := range m.buffer {
		cryptoDomain.Zero(m.buffer[i].Y)
	}
	m.buffer = nil
}

// auditAttempt records the attempt before the operation runs. In fail-closed
// mode a sink failure blocks the operation; in fail-open mode this never fails.
func (m *SealManager) auditAttempt(ctx context.Context, operation, resource string) error {
	return m.recorder.Record(ctx, audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    "attempt",
		Timestamp: time.Now().UTC(),
	})
}

// audit emits a seal audit event with the actor resolved from context.
func (m *SealManager) audit(ctx context.Context, operation, resource, result string) {
	event := audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := m.recorder.Record(ctx, event); err != nil {
		m.logger.Warn("failed to record seal audit event", slog.Any("error", err))
	}
}
