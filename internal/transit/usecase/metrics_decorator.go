package usecase

import (
	"context"
	"time"

	"github.com/custodia/custodia/internal/metrics"
	transitDomain "github.com/custodia/custodia/internal/transit/domain"
)

// transitUseCaseWithMetrics decorates TransitUseCase with metrics instrumentation.
type transitUseCaseWithMetrics struct {
	next    TransitUseCase
	metrics metrics.BusinessMetrics
}

// NewTransitUseCaseWithMetrics wraps a TransitUseCase with metrics recording.
func NewTransitUseCaseWithMetrics(useCase TransitUseCase, m metrics.BusinessMetrics) TransitUseCase {
	return &transitUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// record emits the operation counter and duration histogram for one call.
func (t *transitUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordOperation(ctx, "transit", operation, status)
	t.metrics.RecordDuration(ctx, "transit", operation, time.Since(start), status)
}

// Encrypt records metrics for transit encryption operations.
func (t *transitUseCaseWithMetrics) Encrypt(ctx context.Context, keyName string, plaintext, keyContext []byte) (string, error) {
	start := time.Now()
	envelope, err := t.next.Encrypt(ctx, keyName, plaintext, keyContext)
	t.record(ctx, "transit_encrypt", start, err)
	return envelope, err
}

// Decrypt records metrics for transit decryption operations.
func (t *transitUseCaseWithMetrics) Decrypt(ctx context.Context, keyName, ciphertext string, keyContext []byte) ([]byte, error) {
	start := time.Now()
	plaintext, err := t.next.Decrypt(ctx, keyName, ciphertext, keyContext)
	t.record(ctx, "transit_decrypt", start, err)
	return plaintext, err
}

// Rewrap records metrics for rewrap operations.
func (t *transitUseCaseWithMetrics) Rewrap(ctx context.Context, keyName, ciphertext string, keyContext []byte) (string, error) {
	start := time.Now()
	envelope, err := t.next.Rewrap(ctx, keyName, ciphertext, keyContext)
	t.record(ctx, "transit_rewrap", start, err)
	return envelope, err
}

// GenerateDataKey records metrics for data key generation.
func (t *transitUseCaseWithMetrics) GenerateDataKey(ctx context.Context, keyName string, bits int) (*transitDomain.DataKey, error) {
	start := time.Now()
	dataKey, err := t.next.GenerateDataKey(ctx, keyName, bits)
	t.record(ctx, "transit_generate_data_key", start, err)
	return dataKey, err
}

// Sign records metrics for signing operations.
func (t *transitUseCaseWithMetrics) Sign(ctx context.Context, keyName string, message []byte) (string, error) {
	start := time.Now()
	signature, err := t.next.Sign(ctx, keyName, message)
	t.record(ctx, "transit_sign", start, err)
	return signature, err
}

// Verify records metrics for verification operations.
func (t *transitUseCaseWithMetrics) Verify(ctx context.Context, keyName string, message []byte, signature string) error {
	start := time.Now()
	err := t.next.Verify(ctx, keyName, message, signature)
	t.record(ctx, "transit_verify", start, err)
	return err
}

// BatchEncrypt records metrics for batch encryption operations.
func (t *transitUseCaseWithMetrics) BatchEncrypt(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchEncryptItem,
) ([]transitDomain.BatchResult, error) {
	start := time.Now()
	results, err := t.next.BatchEncrypt(ctx, keyName, items)
	t.record(ctx, "transit_batch_encrypt", start, err)
	return results, err
}

// BatchDecrypt records metrics for batch decryption operations.
func (t *transitUseCaseWithMetrics) BatchDecrypt(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchDecryptItem,
) ([]transitDomain.BatchResult, error) {
	start := time.Now()
	results, err := t.next.BatchDecrypt(ctx, keyName, items)
	t.record(ctx, "transit_batch_decrypt", start, err)
	return results, err
}

// BatchRewrap records metrics for batch rewrap operations.
func (t *transitUseCaseWithMetrics) BatchRewrap(
	ctx context.Context,
	keyName string,
	items []transitDomain.BatchRewrapItem,
) ([]transitDomain.BatchResult, error) {
	start := time.Now()
	results, err := t.next.BatchRewrap(ctx, keyName, items)
	t.record(ctx, "transit_batch_rewrap", start, err)
	return results, err
}
