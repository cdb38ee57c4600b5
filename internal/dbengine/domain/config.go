// Package domain defines the database secrets engine's domain models:
// connection configurations, roles and dynamic credentials.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// PasswordPlaceholder is substituted with the root password when rendering
// the DSN and with a generated or supplied password in role statements.
const PasswordPlaceholder = "{{password}}"

// Role binds creation and revocation statement sets to a name. Statements
// use {{name}}, {{password}} and {{expiration}} placeholders, substituted at
// issuance time.
type Role struct {
	Name                 string        `json:"name"`
	CreationStatements   []string      `json:"creation_statements"`
	RevocationStatements []string      `json:"revocation_statements"`
	DefaultTTL           time.Duration `json:"default_ttl"`
	MaxTTL               time.Duration `json:"max_ttl"`
}

// ConnectionConfig is one configured database connection. The DSN template
// carries the root credential via the {{password}} placeholder so the root
// password can be rotated without rewriting the template. The record is
// wrapped under the barrier key at rest.
type ConnectionConfig struct {
	Name                   string          `json:"name"`
	Driver                 string          `json:"driver"`
	DSNTemplate            string          `json:"dsn_template"`
	RootPassword           string          `json:"root_password"`
	RootRotationStatements []string        `json:"root_rotation_statements,omitempty"`
	Roles                  map[string]Role `json:"roles"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
}

// DSN renders the connection string with the current root password.
func (c *ConnectionConfig) DSN() string {
	return strings.ReplaceAll(c.DSNTemplate, PasswordPlaceholder, c.RootPassword)
}

// DSNWithPassword renders the connection string with a candidate root
// password, used to verify a rotation before committing it.
func (c *ConnectionConfig) DSNWithPassword(password string) string {
	return strings.ReplaceAll(c.DSNTemplate, PasswordPlaceholder, password)
}

// ValidDriver reports whether the driver is supported.
func ValidDriver(driver string) bool {
	return driver == DriverPostgres || driver == DriverMySQL
}

// DynamicCredential is an ephemeral database credential bound to a lease.
type DynamicCredential struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	LeaseID   uuid.UUID `json:"lease_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
