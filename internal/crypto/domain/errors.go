package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Cryptographic error definitions.
var (
	// ErrInvalidKeySize indicates a key is not exactly KeySize bytes.
	ErrInvalidKeySize = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "key must be exactly 32 bytes")

	// ErrUnsupportedAlgorithm indicates an unknown encryption or signing algorithm.
	ErrUnsupportedAlgorithm = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "unsupported algorithm")

	// ErrAuthenticationFailed indicates AEAD authentication failed: tampered
	// ciphertext, wrong key version, or mismatched context.
	ErrAuthenticationFailed = errors.Coded("AUTHENTICATION_FAILED", errors.ErrInvalidInput, "message authentication failed")

	// ErrSignatureInvalid indicates a signature did not verify.
	ErrSignatureInvalid = errors.Coded("AUTHENTICATION_FAILED", errors.ErrInvalidInput, "signature verification failed")
)
