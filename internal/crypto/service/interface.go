// Package service provides the cryptographic primitives used by the seal,
// keyring and transit layers: AEAD ciphers (AES-256-GCM, ChaCha20-Poly1305)
// and asymmetric signing (Ed25519, ECDSA-P256).
package service

import (
	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
)

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// AEADManager defines the interface for creating AEAD cipher instances.
type AEADManager interface {
	// CreateCipher creates an AEAD cipher instance for the specified algorithm.
	CreateCipher(key []byte, alg cryptoDomain.Algorithm) (AEAD, error)
}

// Signer defines hash-then-sign operations over asymmetric key pairs.
// Key material is passed per call; the signer holds no state.
type Signer interface {
	// GenerateKeyPair creates a fresh key pair for the given algorithm.
	// Both halves are returned in their raw encodings.
	GenerateKeyPair(alg cryptoDomain.SigningAlgorithm) (private, public []byte, err error)

	// Sign hashes the message with SHA-256 and signs the digest.
	Sign(alg cryptoDomain.SigningAlgorithm, private, message []byte) ([]byte, error)

	// Verify checks a signature produced by Sign. Returns
	// ErrSignatureInvalid when the signature does not match.
	Verify(alg cryptoDomain.SigningAlgorithm, public, message, signature []byte) error
}
