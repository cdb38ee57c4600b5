// Package authz defines the authorization contract consumed by the trust
// core. Policy evaluation lives outside the core: engines and the lease
// manager consult an Authorizer before acting and trust its decision.
package authz

import (
	"context"
	"fmt"

	"github.com/custodia/custodia/internal/errors"
)

// ErrDenied indicates the authorizer rejected the operation.
var ErrDenied = errors.Coded("FORBIDDEN", errors.ErrForbidden, "operation denied by policy")

// Authorizer decides whether an operation on a path is allowed.
type Authorizer interface {
	// Authorize returns nil when the operation is allowed and an error
	// wrapping ErrDenied otherwise.
	Authorize(ctx context.Context, operation, path string) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, operation, path string) error

// Authorize calls the wrapped function.
func (f AuthorizerFunc) Authorize(ctx context.Context, operation, path string) error {
	return f(ctx, operation, path)
}

// AllowAll permits every operation. Used by the CLI, which runs with
// operator credentials, and by tests.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, operation, path string) error {
		return nil
	})
}

// DenyAll rejects every operation. Useful as a safe default in tests.
func DenyAll() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, operation, path string) error {
		return fmt.Errorf("%w: %s %s", ErrDenied, operation, path)
	})
}
