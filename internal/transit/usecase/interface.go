package usecase

import (
	"context"

	transitDomain "github.com/custodia/custodia/internal/transit/domain"
)

// TransitUseCase defines the interface for encryption-as-a-service operations
// built on the named-key registry.
type TransitUseCase interface {
	// Encrypt encrypts plaintext under the latest version of the named key.
	// An optional context is bound as AEAD associated data.
	Encrypt(ctx context.Context, keyName string, plaintext, context []byte) (string, error)

	// Decrypt decrypts a ciphertext envelope with the key version it names.
	//
	// Security Note: Callers MUST zero the returned plaintext after use by
	// calling cryptoDomain.Zero on it.
	Decrypt(ctx context.Context, keyName, ciphertext string, context []byte) ([]byte, error)

	// Rewrap re-encrypts a ciphertext envelope under the latest key version
	// without exposing plaintext to the caller.
	Rewrap(ctx context.Context, keyName, ciphertext string, context []byte) (string, error)

	// GenerateDataKey returns fresh key material plus the same material
	// wrapped under the named key, implementing envelope encryption.
	GenerateDataKey(ctx context.Context, keyName string, bits int) (*transitDomain.DataKey, error)

	// Sign hashes and signs a message with the latest version of a signing key.
	Sign(ctx context.Context, keyName string, message []byte) (string, error)

	// Verify checks a signature envelope against the key version it names.
	// Returns nil for a valid signature.
	Verify(ctx context.Context, keyName string, message []byte, signature string) error

	// BatchEncrypt applies Encrypt to up to MaxBatchItems items. Each item
	// reports its own outcome; the call is not transactional.
	BatchEncrypt(ctx context.Context, keyName string, items []transitDomain.BatchEncryptItem) ([]transitDomain.BatchResult, error)

	// BatchDecrypt applies Decrypt to up to MaxBatchItems items.
	BatchDecrypt(ctx context.Context, keyName string, items []transitDomain.BatchDecryptItem) ([]transitDomain.BatchResult, error)

	// BatchRewrap applies Rewrap to up to MaxBatchItems items. Plaintext
	// never crosses the engine boundary.
	BatchRewrap(ctx context.Context, keyName string, items []transitDomain.BatchRewrapItem) ([]transitDomain.BatchResult, error)
}
