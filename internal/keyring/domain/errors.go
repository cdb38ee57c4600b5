package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Keyring error definitions.
var (
	// ErrKeyNotFound indicates no named key exists under the given name.
	ErrKeyNotFound = errors.Coded("KEY_NOT_FOUND", errors.ErrNotFound, "named key not found")

	// ErrKeyExists indicates a create collided with an existing named key.
	ErrKeyExists = errors.Coded("KEY_EXISTS", errors.ErrConflict, "named key already exists")

	// ErrKeyVersionDisabled indicates the ciphertext references a version
	// below the key's minimum decryption version.
	ErrKeyVersionDisabled = errors.Coded("KEY_VERSION_DISABLED", errors.ErrInvalidInput, "key version is disabled for decryption")

	// ErrUnknownKeyVersion indicates the ciphertext references a version the
	// key does not have.
	ErrUnknownKeyVersion = errors.Coded("UNKNOWN_KEY_VERSION", errors.ErrInvalidInput, "unknown key version")

	// ErrDeletionNotAllowed indicates the key's configuration forbids deletion.
	ErrDeletionNotAllowed = errors.Coded("DELETION_NOT_ALLOWED", errors.ErrForbidden, "key deletion is not allowed")

	// ErrInvalidKeyType indicates an unsupported key type or an operation
	// applied to the wrong key type.
	ErrInvalidKeyType = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "invalid key type for operation")

	// ErrInvalidVersionBound indicates a configuration update placed a version
	// bound outside [0, latest_version].
	ErrInvalidVersionBound = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "version bound exceeds latest version")
)
