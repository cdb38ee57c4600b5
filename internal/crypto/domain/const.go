// Package domain defines the core cryptographic domain models: algorithms,
// key types and secure zeroing of key material.
package domain

// Algorithm identifies an AEAD encryption algorithm.
type Algorithm string

// Supported AEAD algorithms. All use 32-byte (256-bit) keys.
const (
	AESGCM   Algorithm = "aes256-gcm"
	ChaCha20 Algorithm = "chacha20-poly1305"
)

// SigningAlgorithm identifies an asymmetric signing algorithm.
type SigningAlgorithm string

// Supported signing algorithms.
const (
	Ed25519   SigningAlgorithm = "ed25519"
	ECDSAP256 SigningAlgorithm = "ecdsa-p256"
)

// KeySize is the required key length in bytes for all AEAD algorithms.
const KeySize = 32

// ValidAlgorithm reports whether alg names a supported AEAD algorithm.
func ValidAlgorithm(alg Algorithm) bool {
	switch alg {
	case AESGCM, ChaCha20:
		return true
	}
	return false
}

// ValidSigningAlgorithm reports whether alg names a supported signing algorithm.
func ValidSigningAlgorithm(alg SigningAlgorithm) bool {
	switch alg {
	case Ed25519, ECDSAP256:
		return true
	}
	return false
}
