package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Transit error definitions.
var (
	// ErrInvalidEnvelope indicates the ciphertext envelope is malformed.
	ErrInvalidEnvelope = errors.Coded("INVALID_ENVELOPE", errors.ErrInvalidInput, "invalid ciphertext envelope")

	// ErrInvalidDataKeyBits indicates an unsupported data key size.
	ErrInvalidDataKeyBits = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "data key bits must be 128, 256 or 512")

	// ErrBatchTooLarge indicates a batch exceeds the per-call item limit.
	ErrBatchTooLarge = errors.Coded("BATCH_TOO_LARGE", errors.ErrInvalidInput, "batch exceeds maximum item count")

	// ErrEmptyBatch indicates a batch call with no items.
	ErrEmptyBatch = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "batch contains no items")
)
