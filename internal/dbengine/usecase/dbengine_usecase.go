// Package usecase implements the dynamic database secrets engine.
//
// The engine holds connection configurations (driver, DSN template, root
// password, roles) wrapped under the barrier key, and issues ephemeral
// database users by executing role-defined SQL against the target database.
// Every issued credential is registered with the lease manager; the engine's
// RevokeSecret hook drops the user when the lease ends.
package usecase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/custodia/custodia/internal/audit"
	"github.com/custodia/custodia/internal/authz"
	dbDomain "github.com/custodia/custodia/internal/dbengine/domain"
	dbService "github.com/custodia/custodia/internal/dbengine/service"
	"github.com/custodia/custodia/internal/engine"
	apperrors "github.com/custodia/custodia/internal/errors"
	leaseUsecase "github.com/custodia/custodia/internal/lease/usecase"
	"github.com/custodia/custodia/internal/storage"
	appvalidation "github.com/custodia/custodia/internal/validation"
)

// DefaultCredentialTTL applies when a role has no default TTL configured.
const DefaultCredentialTTL = 1 * time.Hour

// Statement placeholders.
const (
	namePlaceholder       = "{{name}}"
	passwordPlaceholder   = dbDomain.PasswordPlaceholder
	expirationPlaceholder = "{{expiration}}"
)

// databaseUseCase implements DatabaseUseCase and engine.SecretEngine.
type databaseUseCase struct {
	mount      string
	barrier    Barrier
	backend    storage.Backend
	leases     leaseUsecase.LeaseManager
	generator  dbService.CredentialGenerator
	authorizer authz.Authorizer
	recorder   audit.Recorder
	logger     *slog.Logger
	connect    Connector

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures the database engine.
type Option func(*databaseUseCase)

// WithConnector overrides how database handles are opened.
func WithConnector(connect Connector) Option {
	return func(d *databaseUseCase) {
		d.connect = connect
	}
}

// WithMount sets the mount name leases are registered under.
func WithMount(mount string) Option {
	return func(d *databaseUseCase) {
		d.mount = mount
	}
}

// NewDatabaseUseCase creates a new database engine instance.
func NewDatabaseUseCase(
	barrier Barrier,
	backend storage.Backend,
	leases leaseUsecase.LeaseManager,
	generator dbService.CredentialGenerator,
	authorizer authz.Authorizer,
	recorder audit.Recorder,
	logger *slog.Logger,
	opts ...Option,
) DatabaseEngine {
	d := &databaseUseCase{
		mount:      "database",
		barrier:    barrier,
		backend:    backend,
		leases:     leases,
		generator:  generator,
		authorizer: authorizer,
		recorder:   recorder,
		logger:     logger,
		connect:    defaultConnector,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func defaultConnector(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// Type returns the engine type for registry routing.
func (d *databaseUseCase) Type() engine.Type {
	return engine.TypeDatabase
}

// lockFor returns the mutex serializing operations on one connection.
func (d *databaseUseCase) lockFor(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[name] = lock
	}
	return lock
}

// ConfigureConnection verifies and persists a connection configuration. The
// connection is opened and pinged before the record is stored, so a bad DSN
// or unreachable database is rejected up front.
func (d *databaseUseCase) ConfigureConnection(ctx context.Context, config dbDomain.ConnectionConfig) error {
	if err := validation.Validate(config.Name, validation.Required, appvalidation.MountName); err != nil {
		return appvalidation.WrapValidationError(err)
	}
	if !dbDomain.ValidDriver(config.Driver) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("unsupported database driver %q", config.Driver))
	}
	if config.DSNTemplate == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "connection DSN is required")
	}
	if err := d.begin(ctx, "database.configure_connection", config.Name); err != nil {
		return err
	}

	lock := d.lockFor(config.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := d.ping(ctx, config.Driver, config.DSN()); err != nil {
		d.audit(ctx, "database.configure_connection", config.Name, audit.ResultFailure)
		return err
	}

	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}
	config.UpdatedAt = now
	if config.Roles == nil {
		config.Roles = make(map[string]dbDomain.Role)
	}

	if err := d.persist(ctx, &config); err != nil {
		d.audit(ctx, "database.configure_connection", config.Name, audit.ResultFailure)
		return err
	}

	d.audit(ctx, "database.configure_connection", config.Name, audit.ResultSuccess)
	d.logger.Info("database connection configured",
		slog.String("connection", config.Name),
		slog.String("driver", config.Driver),
		slog.Int("roles", len(config.Roles)),
	)
	return nil
}

// GetConnection loads a connection configuration.
func (d *databaseUseCase) GetConnection(ctx context.Context, name string) (*dbDomain.ConnectionConfig, error) {
	if err := d.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}
	return d.load(ctx, name)
}

// ListConnections returns the names of all configured connections.
func (d *databaseUseCase) ListConnections(ctx context.Context) ([]string, error) {
	if err := d.barrier.CheckUnsealed(); err != nil {
		return nil, err
	}

	keys, err := d.backend.List(ctx, storage.DBConfigPrefix)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list database connections")
	}

	names := make([]string, 0, len(keys))
	for _, key := range keys {
		names = append(names, strings.TrimPrefix(key, storage.DBConfigPrefix))
	}
	return names, nil
}

// DeleteConnection removes a connection configuration.
func (d *databaseUseCase) DeleteConnection(ctx context.Context, name string) error {
	if err := d.begin(ctx, "database.delete_connection", name); err != nil {
		return err
	}

	lock := d.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if _, err := d.load(ctx, name); err != nil {
		d.audit(ctx, "database.delete_connection", name, audit.ResultFailure)
		return err
	}
	if err := d.backend.Delete(ctx, storage.DBConfigPrefix+name); err != nil {
		return apperrors.Wrap(err, "failed to delete database connection")
	}

	d.audit(ctx, "database.delete_connection", name, audit.ResultSuccess)
	d.logger.Info("database connection deleted", slog.String("connection", name))
	return nil
}

// CreateCredentials issues a fresh dynamic database user.
//
// The username and password are generated anew on every call; a failed
// attempt is never retried with the same username, so a partially-created
// user cannot be hijacked by a later attempt. The user is created by the
// role's creation statements and registered under a renewable lease whose
// revocation runs the role's revocation statements.
func (d *databaseUseCase) CreateCredentials(
	ctx context.Context,
	connection, role string,
	ttl time.Duration,
) (*dbDomain.DynamicCredential, error) {
	resource := connection + "/" + role
	if err := d.begin(ctx, "database.create_credentials", resource); err != nil {
		return nil, err
	}

	config, err := d.load(ctx, connection)
	if err != nil {
		d.audit(ctx, "database.create_credentials", resource, audit.ResultFailure)
		return nil, err
	}
	roleConfig, ok := config.Roles[role]
	if !ok {
		d.audit(ctx, "database.create_credentials", resource, audit.ResultFailure)
		return nil, dbDomain.ErrRoleNotFound
	}

	ttl = effectiveTTL(ttl, roleConfig)

	username, err := d.generator.Username(role)
	if err != nil {
		return nil, err
	}
	password, err := d.generator.Password()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().UTC().Add(ttl)
	replacer := strings.NewReplacer(
		namePlaceholder, username,
		passwordPlaceholder, password,
		expirationPlaceholder, expiresAt.Format(time.RFC3339),
	)
	if err := d.execStatements(ctx, config, roleConfig.CreationStatements, replacer); err != nil {
		d.audit(ctx, "database.create_credentials", resource, audit.ResultFailure)
		return nil, err
	}

	lease, err := d.leases.Create(ctx, leaseUsecase.CreateLeaseParams{
		Engine:    d.mount,
		SecretRef: secretRef(connection, role, username),
		Owner:     audit.ActorFromContext(ctx),
		TTL:       ttl,
		Renewable: true,
	})
	if err != nil {
		// The user exists but has no lease to reap it. Drop it now rather
		// than leak an untracked credential.
		d.dropUser(ctx, config, roleConfig, username)
		d.audit(ctx, "database.create_credentials", resource, audit.ResultFailure)
		return nil, apperrors.Wrap(err, "failed to register credential lease")
	}

	d.audit(ctx, "database.create_credentials", resource, audit.ResultSuccess)
	d.logger.Info("dynamic database credential issued",
		slog.String("connection", connection),
		slog.String("role", role),
		slog.String("username", username),
		slog.String("lease_id", lease.ID.String()),
	)
	return &dbDomain.DynamicCredential{
		Username:  username,
		Password:  password,
		LeaseID:   lease.ID,
		ExpiresAt: lease.ExpiresAt,
	}, nil
}

// RevokeSecret drops the dynamic user named by the lease's secret reference.
// Called by the lease manager through the engine registry; revocation
// statements must tolerate re-execution since a failed attempt is retried.
func (d *databaseUseCase) RevokeSecret(ctx context.Context, ref string) error {
	connection, role, username, err := parseSecretRef(ref)
	if err != nil {
		return err
	}

	config, err := d.load(ctx, connection)
	if err != nil {
		return err
	}
	roleConfig, ok := config.Roles[role]
	if !ok {
		return dbDomain.ErrRoleNotFound
	}

	replacer := strings.NewReplacer(namePlaceholder, username)
	if err := d.execStatements(ctx, config, roleConfig.RevocationStatements, replacer); err != nil {
		return err
	}

	d.logger.Info("dynamic database credential revoked",
		slog.String("connection", connection),
		slog.String("username", username),
	)
	return nil
}

// RotateRootCredentials rotates the connection's root password.
//
// A fresh password is generated and applied through the connection's rotation
// statements, then verified by opening a new connection with it. The stored
// configuration is only updated after the new password authenticates, so a
// failed rotation leaves the persisted credential untouched. The new password
// is never returned; only the platform knows it afterwards.
func (d *databaseUseCase) RotateRootCredentials(ctx context.Context, connection string) error {
	if err := d.begin(ctx, "database.rotate_root", connection); err != nil {
		return err
	}

	lock := d.lockFor(connection)
	lock.Lock()
	defer lock.Unlock()

	config, err := d.load(ctx, connection)
	if err != nil {
		d.audit(ctx, "database.rotate_root", connection, audit.ResultFailure)
		return err
	}
	if len(config.RootRotationStatements) == 0 {
		d.audit(ctx, "database.rotate_root", connection, audit.ResultFailure)
		return apperrors.Wrap(dbDomain.ErrRotationFailed, "connection has no rotation statements")
	}

	newPassword, err := d.generator.Password()
	if err != nil {
		return err
	}

	replacer := strings.NewReplacer(passwordPlaceholder, newPassword)
	if err := d.execStatements(ctx, config, config.RootRotationStatements, replacer); err != nil {
		d.audit(ctx, "database.rotate_root", connection, audit.ResultFailure)
		return err
	}

	// Verify before commit: the new password must authenticate against the
	// database or the stored configuration stays on the old one.
	if err := d.ping(ctx, config.Driver, config.DSNWithPassword(newPassword)); err != nil {
		d.audit(ctx, "database.rotate_root", connection, audit.ResultFailure)
		return apperrors.Wrap(dbDomain.ErrRotationFailed, "new root password failed verification")
	}

	config.RootPassword = newPassword
	config.UpdatedAt = time.Now().UTC()
	if err := d.persist(ctx, config); err != nil {
		d.audit(ctx, "database.rotate_root", connection, audit.ResultFailure)
		return err
	}

	d.audit(ctx, "database.rotate_root", connection, audit.ResultSuccess)
	d.logger.Info("root credential rotated", slog.String("connection", connection))
	return nil
}

// execStatements opens the connection and executes each statement with
// placeholders substituted. Connectivity failures are transient; statement
// failures are permanent.
func (d *databaseUseCase) execStatements(
	ctx context.Context,
	config *dbDomain.ConnectionConfig,
	statements []string,
	replacer *strings.Replacer,
) error {
	db, err := d.connect(config.Driver, config.DSN())
	if err != nil {
		return apperrors.Wrap(dbDomain.ErrConnectorTransient, "failed to open database connection")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrap(dbDomain.ErrConnectorTransient, "database unreachable")
	}

	// The driver error is not propagated into the message: substituted
	// statements carry passwords and some drivers echo the failing query.
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, replacer.Replace(statement)); err != nil {
			return apperrors.Wrap(dbDomain.ErrConnectorPermanent, "statement execution failed")
		}
	}
	return nil
}

// ping verifies a DSN by opening a connection and pinging it.
func (d *databaseUseCase) ping(ctx context.Context, driver, dsn string) error {
	db, err := d.connect(driver, dsn)
	if err != nil {
		return apperrors.Wrap(dbDomain.ErrConnectorTransient, "failed to open database connection")
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return apperrors.Wrap(dbDomain.ErrConnectorTransient, "database unreachable")
	}
	return nil
}

// dropUser best-effort removes a user whose lease registration failed.
func (d *databaseUseCase) dropUser(
	ctx context.Context,
	config *dbDomain.ConnectionConfig,
	role dbDomain.Role,
	username string,
) {
	replacer := strings.NewReplacer(namePlaceholder, username)
	if err := d.execStatements(ctx, config, role.RevocationStatements, replacer); err != nil {
		d.logger.Error("failed to drop orphaned database user",
			slog.String("connection", config.Name),
			slog.String("username", username),
			slog.Any("error", err),
		)
	}
}

// effectiveTTL resolves the credential TTL from the request and role limits.
func effectiveTTL(requested time.Duration, role dbDomain.Role) time.Duration {
	ttl := requested
	if ttl <= 0 {
		ttl = role.DefaultTTL
	}
	if ttl <= 0 {
		ttl = DefaultCredentialTTL
	}
	if role.MaxTTL > 0 && ttl > role.MaxTTL {
		ttl = role.MaxTTL
	}
	return ttl
}

// secretRef encodes the revocation reference stored on the lease.
func secretRef(connection, role, username string) string {
	return fmt.Sprintf("%s/%s/%s", connection, role, username)
}

// parseSecretRef splits a secret reference into connection, role and
// username.
func parseSecretRef(ref string) (connection, role, username string, err error) {
	parts := strings.SplitN(ref, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", dbDomain.ErrInvalidSecretRef
	}
	return parts[0], parts[1], parts[2], nil
}

// load reads and unwraps a connection configuration.
func (d *databaseUseCase) load(ctx context.Context, name string) (*dbDomain.ConnectionConfig, error) {
	storageKey := storage.DBConfigPrefix + name

	blob, err := d.backend.Get(ctx, storageKey)
	if apperrors.Is(err, storage.ErrKeyNotFound) {
		return nil, dbDomain.ErrConnectionNotFound
	}
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to load database connection")
	}

	raw, err := d.barrier.Unwrap(blob, []byte(storageKey))
	if err != nil {
		return nil, err
	}

	var config dbDomain.ConnectionConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode database connection")
	}
	return &config, nil
}

// persist wraps a connection configuration under the barrier key and stores
// it with the storage key bound as associated data.
func (d *databaseUseCase) persist(ctx context.Context, config *dbDomain.ConnectionConfig) error {
	storageKey := storage.DBConfigPrefix + config.Name

	raw, err := json.Marshal(config)
	if err != nil {
		return apperrors.Wrap(err, "failed to encode database connection")
	}

	blob, err := d.barrier.Wrap(raw, []byte(storageKey))
	if err != nil {
		return err
	}
	if err := d.backend.Put(ctx, storageKey, blob); err != nil {
		return apperrors.Wrap(err, "failed to persist database connection")
	}
	return nil
}

// begin runs the unseal check, authorization and the pre-operation audit
// record shared by every engine operation.
func (d *databaseUseCase) begin(ctx context.Context, operation, resource string) error {
	if err := d.barrier.CheckUnsealed(); err != nil {
		return err
	}
	if err := d.authorizer.Authorize(ctx, operation, resource); err != nil {
		return err
	}
	return d.recorder.Record(ctx, audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    "attempt",
		Timestamp: time.Now().UTC(),
	})
}

// audit emits an engine audit event with the actor resolved from context.
func (d *databaseUseCase) audit(ctx context.Context, operation, resource, result string) {
	event := audit.Event{
		Actor:     audit.ActorFromContext(ctx),
		Operation: operation,
		Resource:  resource,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := d.recorder.Record(ctx, event); err != nil {
		d.logger.Warn("failed to record database engine audit event", slog.Any("error", err))
	}
}
