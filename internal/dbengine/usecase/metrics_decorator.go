package usecase

import (
	"context"
	"time"

	dbDomain "github.com/custodia/custodia/internal/dbengine/domain"
	"github.com/custodia/custodia/internal/engine"
	"github.com/custodia/custodia/internal/metrics"
)

// databaseEngineWithMetrics decorates DatabaseEngine with metrics instrumentation.
type databaseEngineWithMetrics struct {
	next    DatabaseEngine
	metrics metrics.BusinessMetrics
}

// NewDatabaseEngineWithMetrics wraps a DatabaseEngine with metrics recording.
func NewDatabaseEngineWithMetrics(eng DatabaseEngine, m metrics.BusinessMetrics) DatabaseEngine {
	return &databaseEngineWithMetrics{
		next:    eng,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one call.
func (d *databaseEngineWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordOperation(ctx, "dbengine", operation, status)
	d.metrics.RecordDuration(ctx, "dbengine", operation, time.Since(start), status)
}

func (d *databaseEngineWithMetrics) Type() engine.Type {
	return d.next.Type()
}

// ConfigureConnection records metrics for connection configuration.
func (d *databaseEngineWithMetrics) ConfigureConnection(ctx context.Context, config dbDomain.ConnectionConfig) error {
	start := time.Now()
	err := d.next.ConfigureConnection(ctx, config)
	d.record(ctx, "db_configure_connection", start, err)
	return err
}

// GetConnection records metrics for connection reads.
func (d *databaseEngineWithMetrics) GetConnection(ctx context.Context, name string) (*dbDomain.ConnectionConfig, error) {
	start := time.Now()
	config, err := d.next.GetConnection(ctx, name)
	d.record(ctx, "db_get_connection", start, err)
	return config, err
}

// ListConnections records metrics for connection listing.
func (d *databaseEngineWithMetrics) ListConnections(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := d.next.ListConnections(ctx)
	d.record(ctx, "db_list_connections", start, err)
	return names, err
}

// DeleteConnection records metrics for connection deletion.
func (d *databaseEngineWithMetrics) DeleteConnection(ctx context.Context, name string) error {
	start := time.Now()
	err := d.next.DeleteConnection(ctx, name)
	d.record(ctx, "db_delete_connection", start, err)
	return err
}

// CreateCredentials records metrics for credential issuance.
func (d *databaseEngineWithMetrics) CreateCredentials(
	ctx context.Context,
	connection, role string,
	ttl time.Duration,
) (*dbDomain.DynamicCredential, error) {
	start := time.Now()
	credential, err := d.next.CreateCredentials(ctx, connection, role, ttl)
	d.record(ctx, "db_create_credentials", start, err)
	return credential, err
}

// RevokeSecret records metrics for credential revocation.
func (d *databaseEngineWithMetrics) RevokeSecret(ctx context.Context, ref string) error {
	start := time.Now()
	err := d.next.RevokeSecret(ctx, ref)
	d.record(ctx, "db_revoke_secret", start, err)
	return err
}

// RotateRootCredentials records metrics for root credential rotation.
func (d *databaseEngineWithMetrics) RotateRootCredentials(ctx context.Context, connection string) error {
	start := time.Now()
	err := d.next.RotateRootCredentials(ctx, connection)
	d.record(ctx, "db_rotate_root", start, err)
	return err
}
