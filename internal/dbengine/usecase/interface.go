package usecase

import (
	"context"
	"database/sql"
	"time"

	dbDomain "github.com/custodia/custodia/internal/dbengine/domain"
	"github.com/custodia/custodia/internal/engine"
)

// Barrier wraps and unwraps connection records so DSNs and root passwords are
// never plaintext at rest. Satisfied by the seal manager.
type Barrier interface {
	CheckUnsealed() error
	Wrap(plaintext, aad []byte) ([]byte, error)
	Unwrap(blob, aad []byte) ([]byte, error)
}

// Connector opens a database handle for the given driver and DSN. Injected so
// tests can substitute sqlmock.
type Connector func(driver, dsn string) (*sql.DB, error)

// DatabaseUseCase defines the interface for the dynamic database secrets
// engine. It issues short-lived database users against configured
// connections, registers each under a lease, and drops the user when the
// lease is revoked or expires.
type DatabaseUseCase interface {
	// ConfigureConnection verifies and persists a connection configuration.
	// The record is wrapped under the barrier key before storage.
	ConfigureConnection(ctx context.Context, config dbDomain.ConnectionConfig) error

	// GetConnection loads a connection configuration.
	GetConnection(ctx context.Context, name string) (*dbDomain.ConnectionConfig, error)

	// ListConnections returns the names of all configured connections.
	ListConnections(ctx context.Context) ([]string, error)

	// DeleteConnection removes a connection configuration. Leases issued
	// against it remain in the ledger; their revocation will fail until
	// they are expired or the connection is reconfigured.
	DeleteConnection(ctx context.Context, name string) error

	// CreateCredentials issues a fresh dynamic database user for the role
	// and registers it under a lease. A zero ttl uses the role's default.
	CreateCredentials(ctx context.Context, connection, role string, ttl time.Duration) (*dbDomain.DynamicCredential, error)

	// RotateRootCredentials rotates the connection's root password using
	// the configured rotation statements. The new password is verified
	// against the database before the stored configuration is updated, so
	// a failed rotation leaves the old credential intact.
	RotateRootCredentials(ctx context.Context, connection string) error
}

// DatabaseEngine is the full engine surface: the management operations plus
// the revocation hook the registry routes lease revocations to.
type DatabaseEngine interface {
	DatabaseUseCase
	engine.SecretEngine
}
