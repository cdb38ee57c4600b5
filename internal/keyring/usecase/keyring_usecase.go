// Package usecase implements business logic orchestration for the named-key
// registry.
//
// The registry maintains per-purpose named keys, each with an ordered,
// append-only list of key versions. Records are serialized and wrapped under
// the barrier key before persistence, so no key material is plaintext at
// rest. Per-key operations are serialized by a per-name lock so no caller
// observes a partially-rotated version list.
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/custodia/custodia/internal/audit"
	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	apperrors "github.com/custodia/custodia/internal/errors"
	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	"github.com/custodia/custodia/internal/storage"
	appvalidation "github.com/custodia/custodia/internal/validation"
)

// keyringUseCase implements KeyringUseCase over a wrapped key-value store.
type keyringUseCase struct {
	barrier  Barrier
	backend  storage.Backend
	signer   cryptoService.Signer
	recorder audit.Recorder
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyringUseCase creates a new keyring use case instance.
func NewKeyringUseCase(
	barrier Barrier,
	backend storage.Backend,
	signer cryptoService.Signer,
	recorder audit.Recorder,
	logger *slog.Logger,
) KeyringUseCase {
	return &keyringUseCase{
		barrier:  barrier,
		backend:  backend,
		signer:   signer,
		recorder: recorder,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing operations on one named key.
func (k *keyringUseCase) lockFor(name string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()

	lock, ok := k.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[name] = lock
	}
	return lock
}

// Create creates a named key with version 1.
//
// Encryption keys get fresh random material for the configured AEAD
// algorithm; signing keys get a fresh key pair. The record is wrapped under
// the barrier key and persisted. Fails with ErrKeyExists if the name is
// already taken.
func (k *keyringUseCase) Create(
	ctx context.Context,
	name string,
	keyType keyringDomain.KeyType,
	algorithm string,
	exportable bool,
) (*keyringDomain.NamedKey, error) {
	if err := validation.Validate(name, validation.Required, appvalidation.KeyName); err != nil {
		return nil, appvalidation.WrapValidationError(err)
	}
	if err := validateTypeAndAlgorithm(keyType, algorithm); err != nil {
		return nil, err
	}
	if err := k.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}
	if err := k.auditAttempt(ctx, "keyring.create_key", name); err != nil {
		return nil, err
	}

	lock := k.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := k.backend.Get(ctx, storage.KeyringPrefix+name); err == nil {
		k.audit(ctx, "keyring.create_key", name, audit.ResultFailure)
		return nil, keyringDomain.ErrKeyExists
	}

	now := time.Now().UTC()
	key := &keyringDomain.NamedKey{
		Name:                 name,
		Type:                 keyType,
		Algorithm:            algorithm,
		Exportable:           exportable,
		LatestVersion:        1,
		MinEncryptionVersion: 1,
		MinDecryptionVersion: 1,
		Versions:             make(map[int]*keyringDomain.KeyVersion),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	version, err := k.generateVersion(key, 1)
	if err != nil {
		return nil, err
	}
	key.Versions[1] = version

	if err := k.persist(ctx, key); err != nil {
		return nil, err
	}

	k.audit(ctx, "keyring.create_key", name, audit.ResultSuccess)
	k.logger.Info("named key created",
		slog.String("name", name),
		slog.String("type", string(keyType)),
		slog.String("algorithm", algorithm),
	)
	return key, nil
}

// Rotate appends a new key version with fresh material and makes it the
// latest. Old versions remain usable for decryption down to the minimum
// decryption version.
func (k *keyringUseCase) Rotate(ctx context.Context, name string) (*keyringDomain.NamedKey, error) {
	if err := k.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}
	if err := k.auditAttempt(ctx, "keyring.rotate_key", name); err != nil {
		return nil, err
	}

	lock := k.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	key, err := k.load(ctx, name)
	if err != nil {
		k.audit(ctx, "keyring.rotate_key", name, audit.ResultFailure)
		return nil, err
	}

	next := key.LatestVersion + 1
	version, err := k.generateVersion(key, next)
	if err != nil {
		return nil, err
	}
	key.Versions[next] = version
	key.LatestVersion = next
	key.UpdatedAt = time.Now().UTC()

	if err := k.persist(ctx, key); err != nil {
		return nil, err
	}

	k.audit(ctx, "keyring.rotate_key", name, audit.ResultSuccess)
	k.logger.Info("named key rotated", slog.String("name", name), slog.Int("version", next))
	return key, nil
}

// UpdateConfig updates the key's version bounds and deletion policy. Raising
// the minimum decryption version deprecates older ciphertexts without
// deleting their key material. Neither bound may exceed the latest version.
func (k *keyringUseCase) UpdateConfig(
	ctx context.Context,
	name string,
	update keyringDomain.ConfigUpdate,
) (*keyringDomain.NamedKey, error) {
	if err := k.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}
	if err := k.auditAttempt(ctx, "keyring.update_config", name); err != nil {
		return nil, err
	}

	lock := k.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	key, err := k.load(ctx, name)
	if err != nil {
		k.audit(ctx, "keyring.update_config", name, audit.ResultFailure)
		return nil, err
	}

	if update.MinDecryptionVersion != nil {
		v := *update.MinDecryptionVersion
		if v < 1 || v > key.LatestVersion {
			return nil, keyringDomain.ErrInvalidVersionBound
		}
		key.MinDecryptionVersion = v
	}
	if update.MinEncryptionVersion != nil {
		v := *update.MinEncryptionVersion
		if v < 1 || v > key.LatestVersion {
			return nil, keyringDomain.ErrInvalidVersionBound
		}
		key.MinEncryptionVersion = v
	}
	if update.DeletionAllowed != nil {
		key.DeletionAllowed = *update.DeletionAllowed
	}
	key.UpdatedAt = time.Now().UTC()

	if err := k.persist(ctx, key); err != nil {
		return nil, err
	}

	k.audit(ctx, "keyring.update_config", name, audit.ResultSuccess)
	return key, nil
}

// Delete removes a named key and all its versions. Only allowed when the
// key's configuration permits deletion; irreversible.
func (k *keyringUseCase) Delete(ctx context.Context, name string) error {
	if err := k.barrier.CheckUnsealed(); err != nil {
		return err
	}
	if err := k.auditAttempt(ctx, "keyring.delete_key", name); err != nil {
		return err
	}

	lock := k.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	key, err := k.load(ctx, name)
	if err != nil {
		k.audit(ctx, "keyring.delete_key", name, audit.ResultFailure)
		return err
	}
	if !key.DeletionAllowed {
		k.audit(ctx, "keyring.delete_key", name, audit.ResultFailure)
		return keyringDomain.ErrDeletionNotAllowed
	}

	if err := k.backend.Delete(ctx, storage.KeyringPrefix+name); err != nil {
		return apperrors.Wrap(err, "failed to delete named key")
	}

	k.audit(ctx, "keyring.delete_key", name, audit.ResultSuccess)
	k.logger.Info("named key deleted", slog.String("name", name))
	return nil
}

// Get loads a named key with its plaintext material.
func (k *keyringUseCase) Get(ctx context.Context, name string) (*keyringDomain.NamedKey, error) {
	if err := k.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}

	lock := k.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	return k.load(ctx, name)
}

// List returns the names of all keys in the registry.
func (k *keyringUseCase) List(ctx context.Context) ([]string, error) {
	if err := k.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}

	keys, err := k.backend.List(ctx, storage.KeyringPrefix)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list named keys")
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, storage.KeyringPrefix))
	}
	return names, nil
}

// generateVersion creates fresh key material for one version of the key.
func (k *keyringUseCase) generateVersion(key *keyringDomain.NamedKey, version int) (*keyringDomain.KeyVersion, error) {
	kv := &keyringDomain.KeyVersion{
		Version:   version,
		CreatedAt: time.Now().UTC(),
	}

	switch key.Type {
	case keyringDomain.TypeEncryption:
		material := make([]byte, cryptoDomain.KeySize)
		if _, err := rand.Read(material); err != nil {
			return nil, apperrors.Wrap(err, "failed to generate key material")
		}
		kv.Key = material
	case keyringDomain.TypeSigning:
		private, public, err := k.signer.GenerateKeyPair(key.SigningAlg())
		if err != nil {
			return nil, err
		}
		kv.PrivateKey = private
		kv.PublicKey = public
	default:
		return nil, keyringDomain.ErrInvalidKeyType
	}
	return kv, nil
}

// load reads and unwraps a named key record.
func (k *keyringUseCase) load(ctx context.Context, name string) (*keyringDomain.NamedKey, error) {
	storageKey := storage.KeyringPrefix + name

	blob, err := k.backend.Get(ctx, storageKey)
	if apperrors.Is(err, storage.ErrKeyNotFound) {
		return nil, keyringDomain.ErrKeyNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load named key")
	}

	raw, err := k.barrier.Unwrap(blob, []byte(storageKey))
	if err != nil {
		return nil, err
	}

	var key keyringDomain.NamedKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode named key")
	}
	return &key, nil
}

// persist wraps a named key record under the barrier key and stores it. The
// storage key is bound as associated data so records cannot be swapped
// between names.
func (k *keyringUseCase) persist(ctx context.Context, key *keyringDomain.NamedKey) error {
	storageKey := storage.KeyringPrefix + key.Name

	raw, err := json.Marshal(key)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode named key")
	}

	blob, err := k.barrier.Wrap(raw, []byte(storageKey))
	if err != nil {
		return err
	}
	if err := k.backend.Put(ctx, storageKey, blob); err != nil {
		return apperrors.Wrap(err, "failed to persist named key")
	}
	return nil
}

// validateTypeAndAlgorithm checks the key type and algorithm combination.
func validateTypeAndAlgorithm(keyType keyringDomain.KeyType, algorithm string) error {
	switch keyType {
	case keyringDomain.TypeEncryption:
		if !cryptoDomain.ValidAlgorithm(cryptoDomain.Algorithm(algorithm)) {
			return cryptoDomain.ErrUnsupportedAlgorithm
		}
	case keyringDomain.TypeSigning:
		if !cryptoDomain.ValidSigningAlgorithm(cryptoDomain.SigningAlgorithm(algorithm)) {
			return cryptoDomain.ErrUnsupportedAlgorithm
		}
	default:
		return keyringDomain.ErrInvalidKeyType
	}
	return nil
}

// auditAttempt records the attempt before the operation runs. In fail-closed
// mode a sink failure blocks the operation.
func (k *keyringUseCase) auditAttempt(ctx context.Context, operation, resource string) error {
	return k.recorder.Record(ctx, audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    "attempt",
		Timestamp: time.Now().UTC(),
	})
}

// audit emits a keyring audit event with the actor resolved from context.
func (k *keyringUseCase) audit(ctx context.Context, operation, resource, result string) {
	event := audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := k.recorder.Record(ctx, event); err != nil {
		k.logger.Warn("failed to record keyring audit event", slog.Any("error", err))
	}
}
