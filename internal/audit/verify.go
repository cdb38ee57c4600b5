package audit

import (
	"context"
	"encoding/json"
	"fmt"

	cryptoDomain "github.com/custodia/custodia/internal/crypto/domain"
	"github.com/custodia/custodia/internal/storage"
)

// TrailReport summarizes a verification pass over the stored audit trail.
type TrailReport struct {
	TotalChecked  int
	SignedCount   int
	UnsignedCount int
	ValidCount    int
	InvalidCount  int
	// InvalidKeys are the storage keys of records that failed verification.
	InvalidKeys []string
}

// Passed reports whether every signed record verified.
func (r *TrailReport) Passed() bool {
	return r.InvalidCount == 0
}

// VerifyTrail checks the signature of every stored audit record against the
// signing key supplied by source. Unsigned records are counted, not failed:
// events recorded while the system was sealed carry no signature.
func VerifyTrail(ctx context.Context, backend storage.Backend, source KeySource) (*TrailReport, error) {
	signingKey, err := source.AuditSigningKey()
	if err != nil {
		return nil, err
	}
	defer cryptoDomain.Zero(signingKey)

	keys, err := backend.List(ctx, storage.AuditPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	signer := NewEventSigner()
	report := &TrailReport{}
	for _, key := range keys {
		raw, err := backend.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to load audit record: %w", err)
		}
		report.TotalChecked++

		var record SignedEvent
		if err := json.Unmarshal(raw, &record); err != nil {
			report.InvalidCount++
			report.InvalidKeys = append(report.InvalidKeys, key)
			continue
		}

		if len(record.Signature) == 0 {
			report.UnsignedCount++
			continue
		}
		report.SignedCount++

		ok, err := signer.Verify(signingKey, &record.Event, record.Signature)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.InvalidCount++
			report.InvalidKeys = append(report.InvalidKeys, key)
			continue
		}
		report.ValidCount++
	}
	return report, nil
}
