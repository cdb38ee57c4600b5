// Package domain defines the named-key registry's domain models: named keys
// with ordered, append-only version lists and their configuration.
package domain

import (
	"time"

	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
)

// KeyType distinguishes symmetric AEAD keys from asymmetric signing keys.
type KeyType string

// Supported key types.
const (
	TypeEncryption KeyType = "encryption"
	TypeSigning    KeyType = "signing"
)

// ValidKeyType reports whether t names a supported key type.
func ValidKeyType(t KeyType) bool {
	return t == TypeEncryption || t == TypeSigning
}

// KeyVersion is one generation of key material for a NamedKey. Symmetric keys
// populate Key; signing keys populate PrivateKey (PKCS#8 DER) and PublicKey
// (PKIX DER). Records are wrapped under the barrier key at rest, so plaintext
// material exists only in memory while unsealed.
type KeyVersion struct {
	Version    int       `json:"version"`
	Key        []byte    `json:"key,omitempty"`
	PrivateKey []byte    `json:"private_key,omitempty"`
	PublicKey  []byte    `json:"public_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NamedKey is a logical encryption or signing key with an append-only version
// history. LatestVersion only increases, and only via rotation.
type NamedKey struct {
	Name                 string              `json:"name"`
	Type                 KeyType             `json:"type"`
	Algorithm            string              `json:"algorithm"`
	Exportable           bool                `json:"exportable"`
	DeletionAllowed      bool                `json:"deletion_allowed"`
	LatestVersion        int                 `json:"latest_version"`
	MinEncryptionVersion int                 `json:"min_encryption_version"`
	MinDecryptionVersion int                 `json:"min_decryption_version"`
	Versions             map[int]*KeyVersion `json:"versions"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// ConfigUpdate carries the optional configuration fields UpdateConfig may
// change. Nil fields are left untouched.
type ConfigUpdate struct {
	MinDecryptionVersion *int
	MinEncryptionVersion *int
	DeletionAllowed      *bool
}

// EncryptionVersion returns the version new ciphertext must use. Encryption
// always uses the latest version.
func (k *NamedKey) EncryptionVersion() int {
	return k.LatestVersion
}

// VersionForDecrypt returns the key version for decrypting ciphertext tagged
// with version v, enforcing the minimum decryption version.
func (k *NamedKey) VersionForDecrypt(v int) (*KeyVersion, error) {
	if v < 1 || v > k.LatestVersion {
		return nil, ErrUnknownKeyVersion
	}
	if v < k.MinDecryptionVersion {
		return nil, ErrKeyVersionDisabled
	}
	version, ok := k.Versions[v]
	if !ok {
		return nil, ErrUnknownKeyVersion
	}
	return version, nil
}

// AEADAlgorithm returns the key's AEAD algorithm. Valid only for encryption keys.
func (k *NamedKey) AEADAlgorithm() cryptoDomain.Algorithm {
	return cryptoDomain.Algorithm(k.Algorithm)
}

// SigningAlg returns the key's signing algorithm. Valid only for signing keys.
func (k *NamedKey) SigningAlg() cryptoDomain.SigningAlgorithm {
	return cryptoDomain.SigningAlgorithm(k.Algorithm)
}

// Sanitized returns a copy of the key with all private material removed,
// suitable for returning across the API boundary. Public keys are retained.
func (k *NamedKey) Sanitized() *NamedKey {
	out := *k
	out.Versions = make(map[int]*KeyVersion, len(k.Versions))
	for v, kv := range k.Versions {
		out.Versions[v] = &KeyVersion{
			Version:   kv.Version,
			PublicKey: kv.PublicKey,
			CreatedAt: kv.CreatedAt,
		}
	}
	return &out
}

// Zero wipes all plaintext key material held by the named key.
func (k *NamedKey) Zero() {
	for _, kv := range k.Versions {
		cryptoDomain.Zero(kv.Key)
		cryptoDomain.Zero(kv.PrivateKey)
	}
}
