package usecase

import (
	"context"
	"time"

	keyringDomain "github.com/custodia/custodia/internal/keyring/domain"
	"github.com/custodia/custodia/internal/metrics"
)

// keyringUseCaseWithMetrics decorates KeyringUseCase with metrics instrumentation.
type keyringUseCaseWithMetrics struct {
	next    KeyringUseCase
	metrics metrics.BusinessMetrics
}

// NewKeyringUseCaseWithMetrics wraps a KeyringUseCase with metrics recording.
func NewKeyringUseCaseWithMetrics(useCase KeyringUseCase, m metrics.BusinessMetrics) KeyringUseCase {
	return &keyringUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one call.
func (k *keyringUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	k.metrics.RecordOperation(ctx, "keyring", operation, status)
	k.metrics.RecordDuration(ctx, "keyring", operation, time.Since(start), status)
}

// Create records metrics for key creation operations.
func (k *keyringUseCaseWithMetrics) Create(
	ctx context.Context,
	name string,
	keyType keyringDomain.KeyType,
	algorithm string,
	exportable bool,
) (*keyringDomain.NamedKey, error) {
	start := time.Now()
	key, err := k.next.Create(ctx, name, keyType, algorithm, exportable)
	k.record(ctx, "key_create", start, err)
	return key, err
}

// Rotate records metrics for key rotation operations.
func (k *keyringUseCaseWithMetrics) Rotate(ctx context.Context, name string) (*keyringDomain.NamedKey, error) {
	start := time.Now()
	key, err := k.next.Rotate(ctx, name)
	k.record(ctx, "key_rotate", start, err)
	return key, err
}

// UpdateConfig records metrics for key configuration updates.
func (k *keyringUseCaseWithMetrics) UpdateConfig(
	ctx context.Context,
	name string,
	update keyringDomain.ConfigUpdate,
) (*keyringDomain.NamedKey, error) {
	start := time.Now()
	key, err := k.next.UpdateConfig(ctx, name, update)
	k.record(ctx, "key_update_config", start, err)
	return key, err
}

// Delete records metrics for key deletion operations.
func (k *keyringUseCaseWithMetrics) Delete(ctx context.Context, name string) error {
	start := time.Now()
	err := k.next.Delete(ctx, name)
	k.record(ctx, "key_delete", start, err)
	return err
}

// Get records metrics for key retrieval operations.
func (k *keyringUseCaseWithMetrics) Get(ctx context.Context, name string) (*keyringDomain.NamedKey, error) {
	start := time.Now()
	key, err := k.next.Get(ctx, name)
	k.record(ctx, "key_get", start, err)
	return key, err
}

// List records metrics for key listing operations.
func (k *keyringUseCaseWithMetrics) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := k.next.List(ctx)
	k.record(ctx, "key_list", start, err)
	return names, err
}
