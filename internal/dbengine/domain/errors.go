package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Database engine error definitions.
var (
	// ErrConnectionNotFound indicates no connection configuration exists
	// under the given name.
	ErrConnectionNotFound = errors.Coded("CONNECTION_NOT_FOUND", errors.ErrNotFound, "database connection not found")

	// ErrRoleNotFound indicates the connection has no role with the given name.
	ErrRoleNotFound = errors.Coded("ROLE_NOT_FOUND", errors.ErrNotFound, "database role not found")

	// ErrConnectorTransient indicates a connector failure that is safe to
	// retry (network, timeout).
	ErrConnectorTransient = errors.Coded("CONNECTOR_TRANSIENT", errors.ErrRetryable, "transient database connector failure")

	// ErrConnectorPermanent indicates a connector failure retrying cannot
	// fix (bad statement, revoked privileges).
	ErrConnectorPermanent = errors.Coded("CONNECTOR_PERMANENT", errors.ErrInvalidInput, "permanent database connector failure")

	// ErrRotationFailed indicates root credential rotation failed the
	// test-then-commit check; the old credential is left intact.
	ErrRotationFailed = errors.Coded("ROTATION_FAILED", errors.ErrInvalidInput, "root credential rotation failed verification")

	// ErrInvalidSecretRef indicates a malformed dynamic credential reference.
	ErrInvalidSecretRef = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "invalid dynamic credential reference")
)
