package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Seal error definitions.
var (
	// ErrSealed indicates the operation requires the system to be unsealed.
	ErrSealed = errors.Coded("SEALED", errors.ErrSealed, "system is sealed")

	// ErrNotInitialized indicates no seal configuration exists yet.
	ErrNotInitialized = errors.Coded("NOT_INITIALIZED", errors.ErrInvalidInput, "seal is not initialized")

	// ErrAlreadyInitialized indicates Initialize was called with an existing wrapped-root record.
	ErrAlreadyInitialized = errors.Coded("ALREADY_INITIALIZED", errors.ErrConflict, "seal is already initialized")

	// ErrInvalidShares indicates the buffered shares did not reconstruct the
	// root key. The message never reveals which share was wrong.
	ErrInvalidShares = errors.Coded("INVALID_SHARES", errors.ErrInvalidInput, "submitted shares did not unseal the system")

	// ErrUnsealRateLimited indicates unseal attempts are being throttled.
	ErrUnsealRateLimited = errors.Coded("UNSEAL_RATE_LIMITED", errors.ErrRetryable, "too many unseal attempts")

	// ErrKMSUnavailable indicates no KMS keeper is configured for auto-unseal.
	ErrKMSUnavailable = errors.Coded("KMS_UNAVAILABLE", errors.ErrInvalidInput, "no KMS keeper configured")
)
