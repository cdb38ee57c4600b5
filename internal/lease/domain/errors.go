package domain

import (
	"github.com/custodia/custodia/internal/errors"
)

// Lease error definitions.
var (
	// ErrLeaseNotFound indicates no lease exists with the given ID.
	ErrLeaseNotFound = errors.Coded("LEASE_NOT_FOUND", errors.ErrNotFound, "lease not found")

	// ErrLeaseNotRenewable indicates the lease is terminal or was issued
	// without renewal.
	ErrLeaseNotRenewable = errors.Coded("LEASE_NOT_RENEWABLE", errors.ErrInvalidInput, "lease is not renewable")

	// ErrRenewalLimitExceeded indicates the lease reached its renewal limit.
	ErrRenewalLimitExceeded = errors.Coded("RENEWAL_LIMIT_EXCEEDED", errors.ErrInvalidInput, "lease renewal limit exceeded")

	// ErrRevocationSideEffectFailed indicates the engine's revoke hook failed.
	// The lease stays live and flagged; revocation is retried.
	ErrRevocationSideEffectFailed = errors.Coded("REVOCATION_FAILED", errors.ErrRetryable, "engine revocation side effect failed")

	// ErrInvalidTTL indicates a non-positive or out-of-range TTL.
	ErrInvalidTTL = errors.Coded("INVALID_PARAMETERS", errors.ErrInvalidInput, "invalid lease ttl")
)
