// Package usecase implements encryption-as-a-service on top of the named-key
// registry.
//
// Clients encrypt and decrypt data without ever seeing key material. Every
// ciphertext carries the key version that produced it, so rotation never
// breaks decryption of existing data: encryption always uses the latest
// version, decryption accepts any version at or above the key's minimum
// decryption version.
//
// All operations consult the external authorizer first and emit audit events
// carrying metadata only.
package usecase

import (
	"context"
	"crypto/rand"
	"log/slog"
	"time"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	cryptoService "github.com/custodia/custodia/internal/crypto/service"
	apperrors "github.com/custodia/custodia/internal/errors"
	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	keyringUsecase "github.com/custodia/custodia/internal/keyring/usecase"
	transitDomain "github.com/custodia/custodia/internal/transit/domain"
)

// nonceSize is the standard nonce length for AES-GCM and ChaCha20-Poly1305.
const nonceSize = 12

// transitUseCase implements TransitUseCase over the keyring.
type transitUseCase struct {
	keyring     keyringUsecase.KeyringUseCase
	aeadManager cryptoService.AEADManager
	signer      cryptoService.Signer
	authorizer  authz.Authorizer
	recorder    audit.Recorder
	logger      *slog.Logger
}

// NewTransitUseCase creates a new transit use case instance.
func NewTransitUseCase(
	keyring keyringUsecase.KeyringUseCase,
	aeadManager cryptoService.AEADManager,
	signer cryptoService.Signer,
	authorizer authz.Authorizer,
	recorder audit.Recorder,
	logger *slog.Logger,
) TransitUseCase {
	return &transitUseCase{
		keyring:     keyring,
		aeadManager: aeadManager,
		signer:      signer,
		authorizer:  authorizer,
		recorder:    recorder,
		logger:      logger,
	}
}

// Encrypt encrypts plaintext under the latest version of the named key.
func (t *transitUseCase) Encrypt(ctx context.Context, keyName string, plaintext, keyContext []byte) (string, error) {
	if err := t.begin(ctx, "transit.encrypt", keyName); err != nil {
		return "", err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.encrypt", keyName, audit.ResultFailure)
		return "", err
	}
	defer key.Zero()

	envelope, err := t.encryptWithKey(key, plaintext, keyContext)
	if err != nil {
		t.audit(ctx, "transit.encrypt", keyName, audit.ResultFailure)
		return "", err
	}

	t.audit(ctx, "transit.encrypt", keyName, audit.ResultSuccess)
	return envelope, nil
}

// Decrypt decrypts a ciphertext envelope with the key version it names.
func (t *transitUseCase) Decrypt(ctx context.Context, keyName, ciphertext string, keyContext []byte) ([]byte, error) {
	if err := t.begin(ctx, "transit.decrypt", keyName); err != nil {
		return nil, err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.decrypt", keyName, audit.ResultFailure)
		return nil, err
	}
	defer key.Zero()

	plaintext, err := t.decryptWithKey(key, ciphertext, keyContext)
	if err != nil {
		t.audit(ctx, "transit.decrypt", keyName, audit.ResultFailure)
		return nil, err
	}

	t.audit(ctx, "transit.decrypt", keyName, audit.ResultSuccess)
	return plaintext, nil
}

// Rewrap re-encrypts a ciphertext under the latest key version. The
// intermediate plaintext never crosses the engine boundary: it is zeroed
// before the method returns.
func (t *transitUseCase) Rewrap(ctx context.Context, keyName, ciphertext string, keyContext []byte) (string, error) {
	if err := t.begin(ctx, "transit.rewrap", keyName); err != nil {
		return "", err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.rewrap", keyName, audit.ResultFailure)
		return "", err
	}
	defer key.Zero()

	plaintext, err := t.decryptWithKey(key, ciphertext, keyContext)
	if err != nil {
		t.audit(ctx, "transit.rewrap", keyName, audit.ResultFailure)
		return "", err
	}
	defer cryptoDomain.Zero(plaintext)

	envelope, err := t.encryptWithKey(key, plaintext, keyContext)
	if err != nil {
		t.audit(ctx, "transit.rewrap", keyName, audit.ResultFailure)
		return "", err
	}

	t.audit(ctx, "transit.rewrap", keyName, audit.ResultSuccess)
	return envelope, nil
}

// GenerateDataKey returns fresh key material plus the same material wrapped
// under the named key. The caller owns zeroing the plaintext half after use.
func (t *transitUseCase) GenerateDataKey(ctx context.Context, keyName string, bits int) (*transitDomain.DataKey, error) {
	if err := t.begin(ctx, "transit.generate_data_key", keyName); err != nil {
		return nil, err
	}

	switch bits {
	case 128, 256, 512:
	default:
		return nil, transitDomain.ErrInvalidDataKeyBits
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.generate_data_key", keyName, audit.ResultFailure)
		return nil, err
	}
	defer key.Zero()

	material := make([]byte, bits/8)
	if _, err := rand.Read(material); err != nil {
		return nil, apperrors.Wrap(err, "failed to generate data key")
	}

	envelope, err := t.encryptWithKey(key, material, nil)
	if err != nil {
		cryptoDomain.Zero(material)
		t.audit(ctx, "transit.generate_data_key", keyName, audit.ResultFailure)
		return nil, err
	}

	t.audit(ctx, "transit.generate_data_key", keyName, audit.ResultSuccess)
	return &transitDomain.DataKey{
		Plaintext:  material,
		Ciphertext: envelope,
	}, nil
}

// Sign hashes and signs a message with the latest version of a signing key.
func (t *transitUseCase) Sign(ctx context.Context, keyName string, message []byte) (string, error) {
	if err := t.begin(ctx, "transit.sign", keyName); err != nil {
		return "", err
	}

	key, err := t.signingKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.sign", keyName, audit.ResultFailure)
		return "", err
	}
	defer key.Zero()

	version := key.EncryptionVersion()
	kv, ok := key.Versions[version]
	if !ok {
		return "", keyringDomain.ErrUnknownKeyVersion
	}

	signature, err := t.signer.Sign(key.SigningAlg(), kv.PrivateKey, message)
	if err != nil {
		t.audit(ctx, "transit.sign", keyName, audit.ResultFailure)
		return "", err
	}

	t.audit(ctx, "transit.sign", keyName, audit.ResultSuccess)
	return transitDomain.Envelope{Version: version, Payload: signature}.String(), nil
}

// Verify checks a signature envelope against the key version it names.
func (t *transitUseCase) Verify(ctx context.Context, keyName string, message []byte, signature string) error {
	if err := t.begin(ctx, "transit.verify", keyName); err != nil {
		return err
	}

	envelope, err := transitDomain.ParseEnvelope(signature)
	if err != nil {
		return err
	}

	key, err := t.signingKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.verify", keyName, audit.ResultFailure)
		return err
	}
	defer key.Zero()

	kv, err := key.VersionForDecrypt(envelope.Version)
	if err != nil {
		t.audit(ctx, "transit.verify", keyName, audit.ResultFailure)
		return err
	}

	if err := t.signer.Verify(key.SigningAlg(), kv.PublicKey, message, envelope.Payload); err != nil {
		t.audit(ctx, "transit.verify", keyName, audit.ResultFailure)
		return err
	}

	t.audit(ctx, "transit.verify", keyName, audit.ResultSuccess)
	return nil
}

// BatchEncrypt applies Encrypt to each item independently. The named key is
// loaded once for the whole batch.
func (t *transitUseCase) BatchEncrypt(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchEncryptItem,
) ([]transitDomain.BatchResult, error) {
	if err := t.begin(ctx, "transit.batch_encrypt", keyName); err != nil {
		return nil, err
	}
	if err := validateBatchSize(len(items)); err != nil {
		return nil, err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.batch_encrypt", keyName, audit.ResultFailure)
		return nil, err
	}
	defer key.Zero()

	results := make([]transitDomain.BatchResult, len(items))
	for i, item := range items {
		envelope, err := t.encryptWithKey(key, item.Plaintext, item.Context)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Ciphertext = envelope
	}

	t.audit(ctx, "transit.batch_encrypt", keyName, audit.ResultSuccess)
	return results, nil
}

// BatchDecrypt applies Decrypt to each item independently.
func (t *transitUseCase) BatchDecrypt(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchDecryptItem,
) ([]transitDomain.BatchResult, error) {
	if err := t.begin(ctx, "transit.batch_decrypt", keyName); err != nil {
		return nil, err
	}
	if err := validateBatchSize(len(items)); err != nil {
		return nil, err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.batch_decrypt", keyName, audit.ResultFailure)
		return nil, err
	}
	defer key.Zero()

	results := make([]transitDomain.BatchResult, len(items))
	for i, item := range items {
		plaintext, err := t.decryptWithKey(key, item.Ciphertext, item.Context)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Plaintext = plaintext
	}

	t.audit(ctx, "transit.batch_decrypt", keyName, audit.ResultSuccess)
	return results, nil
}

// BatchRewrap applies Rewrap to each item independently. Each intermediate
// plaintext is zeroed before the next item is processed.
func (t *transitUseCase) BatchRewrap(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchRewrapItem,
) ([]transitDomain.BatchResult, error) {
	if err := t.begin(ctx, "transit.batch_rewrap", keyName); err != nil {
		return nil, err
	}
	if err := validateBatchSize(len(items)); err != nil {
		return nil, err
	}

	key, err := t.encryptionKey(ctx, keyName)
	if err != nil {
		t.audit(ctx, "transit.batch_rewrap", keyName, audit.ResultFailure)
		return nil, err
	}
	defer key.Zero()

	results := make([]transitDomain.BatchResult, len(items))
	for i, item := range items {
		plaintext, err := t.decryptWithKey(key, item.Ciphertext, item.Context)
		if err != nil {
			results[i].Err = err
			continue
		}

		envelope, err := t.encryptWithKey(key, plaintext, item.Context)
		cryptoDomain.Zero(plaintext)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].Ciphertext = envelope
	}

	t.audit(ctx, "transit.batch_rewrap", keyName, audit.ResultSuccess)
	return results, nil
}

// encryptWithKey encrypts plaintext under the key's latest version and
// returns the ciphertext envelope.
func (t *transitUseCase) encryptWithKey(key *keyringDomain.NamedKey, plaintext, aad []byte) (string, error) {
	version := key.EncryptionVersion()
	kv, ok := key.Versions[version]
	if !ok {
		return "", keyringDomain.ErrUnknownKeyVersion
	}

	cipher, err := t.aeadManager.CreateCipher(kv.Key, key.AEADAlgorithm())
	if err != nil {
		return "", err
	}

	ciphertext, nonce, err := cipher.Encrypt(plaintext, aad)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encrypt plaintext")
	}

	//nolint:gocritic // intentionally creating new slice with combined nonce and ciphertext
	payload := append(nonce, ciphertext...)
	return transitDomain.Envelope{Version: version, Payload: payload}.String(), nil
}

// decryptWithKey parses a ciphertext envelope and decrypts it with the key
// version it names, enforcing the key's version bounds.
func (t *transitUseCase) decryptWithKey(key *keyringDomain.NamedKey, ciphertext string, aad []byte) ([]byte, error) {
	envelope, err := transitDomain.ParseEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}

	kv, err := key.VersionForDecrypt(envelope.Version)
	if err != nil {
		return nil, err
	}
	if len(envelope.Payload) < nonceSize {
		return nil, cryptoDomain.ErrAuthenticationFailed
	}

	cipher, err := t.aeadManager.CreateCipher(kv.Key, key.AEADAlgorithm())
	if err != nil {
		return nil, err
	}

	return cipher.Decrypt(envelope.Payload[nonceSize:], envelope.Payload[:nonceSize], aad)
}

// encryptionKey loads a named key and checks it is an encryption key.
func (t *transitUseCase) encryptionKey(ctx context.Context, keyName string) (*keyringDomain.NamedKey, error) {
	return t.typedKey(ctx, keyName, keyringDomain.TypeEncryption)
}

// signingKey loads a named key and checks it is a signing key.
func (t *transitUseCase) signingKey(ctx context.Context, keyName string) (*keyringDomain.NamedKey, error) {
	return t.typedKey(ctx, keyName, keyringDomain.TypeSigning)
}

func (t *transitUseCase) typedKey(ctx context.Context, keyName string, want keyringDomain.KeyType) (*keyringDomain.NamedKey, error) {
	key, err := t.keyring.Get(ctx, keyName)
	if err != nil {
		return nil, err
	}
	if key.Type != want {
		key.Zero()
		return nil, keyringDomain.ErrInvalidKeyType
	}
	return key, nil
}

// begin runs the authorization check and the pre-operation audit record
// shared by every transit operation.
func (t *transitUseCase) begin(ctx context.Context, operation, keyName string) error {
	if err := t.authorizer.Authorize(ctx, operation, keyName); err != nil {
		return err
	}
	return t.recorder.Record(ctx, audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  keyName,
		Result:    "attempt",
		Timestamp: time.Now().UTC(),
	})
}

// validateBatchSize enforces the batch item limit.
func validateBatchSize(n int) error {
	if n == 0 {
		return transitDomain.ErrEmptyBatch
	}
	if n > transitDomain.MaxBatchItems {
		return transitDomain.ErrBatchTooLarge
	}
	return nil
}

// audit emits a transit audit event with the actor resolved from context.
func (t *transitUseCase) audit(ctx context.Context, operation, resource, result string) {
	event := audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := t.recorder.Record(ctx, event); err != nil {
		t.logger.Warn("failed to record transit audit event", slog.Any("error", err))
	}
}
