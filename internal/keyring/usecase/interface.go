package usecase

import (
	"context"

	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
)

// Barrier wraps and unwraps keyring records under the barrier key. Implemented
// by the seal manager; all operations fail with ErrSealed while sealed.
type Barrier interface {
	CheckUnsealed() error
	Wrap(plaintext, aad []byte) ([]byte, error)
	Unwrap(blob, aad []byte) ([]byte, error)
}

// KeyringUseCase defines the interface for named-key lifecycle operations.
type KeyringUseCase interface {
	Create(ctx context.Context, name string, keyType keyringDomain.KeyType, algorithm string, exportable bool) (*keyringDomain.NamedKey, error)
	Rotate(ctx context.Context, name string) (*keyringDomain.NamedKey, error)
	UpdateConfig(ctx context.Context, name string, update keyringDomain.ConfigUpdate) (*keyringDomain.NamedKey, error)
	Delete(ctx context.Context, name string) error
	// Get returns the key with plaintext material for internal engine use.
	//
	// Security Note: The returned NamedKey contains plaintext key material.
	// Callers MUST zero it after use by calling key.Zero().
	Get(ctx context.Context, name string) (*keyringDomain.NamedKey, error)
	List(ctx context.Context) ([]string, error)
}
