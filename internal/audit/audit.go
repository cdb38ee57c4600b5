// Package audit defines the audit event contract the trust core emits on:
// seal/unseal attempts, key lifecycle changes, transit operations and lease
// transitions. Events carry metadata only, never plaintext, key bytes or
// share values.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia/custodia/internal/errors"
)

// Result values for audit events.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Event is one audit record.
type Event struct {
	Actor     string    `json:"actor"`
	Operation string    `json:"operation"`
	Resource  string    `json:"resource"`
	Result    string    `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// Mode selects the behavior when the sink cannot durably record an event.
type Mode string

const (
	// FailClosed blocks the audited operation when the audit write fails.
	FailClosed Mode = "fail-closed"
	// FailOpen records best-effort: sink failures are logged and swallowed.
	FailOpen Mode = "fail-open"
)

// ErrAuditUnavailable indicates the audit sink rejected a write in fail-closed mode.
var ErrAuditUnavailable = errors.Coded("AUDIT_UNAVAILABLE", errors.ErrRetryable, "audit record could not be durably recorded")

// Sink persists audit events.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// KeySource supplies the derived audit signing key. Implemented by the seal
// manager; fails while the barrier key is unavailable. Callers own zeroing
// the returned key.
type KeySource interface {
	AuditSigningKey() ([]byte, error)
}

// Recorder is what core components depend on to emit audit events.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// recorder applies the deployment's fail mode in front of a sink.
type recorder struct {
	sink   Sink
	mode   Mode
	logger *slog.Logger
}

// NewRecorder creates a Recorder with the given sink and fail mode.
func NewRecorder(sink Sink, mode Mode, logger *slog.Logger) Recorder {
	return &recorder{sink: sink, mode: mode, logger: logger}
}

// Record emits the event. In fail-closed mode a sink failure is returned as
// ErrAuditUnavailable so the caller blocks the audited operation; in fail-open
// mode it is logged and discarded.
func (r *recorder) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	err := r.sink.Emit(ctx, event)
	if err == nil {
		return nil
	}

	if r.mode == FailClosed {
		return errors.Wrap(ErrAuditUnavailable, err.Error())
	}

	r.logger.Warn("audit event dropped",
		slog.String("operation", event.Operation),
		slog.String("resource", event.Resource),
		slog.Any("error", err),
	)
	return nil
}

// NopRecorder discards all events. Used in tests and when auditing is disabled.
type NopRecorder struct{}

// Record does nothing.
func (NopRecorder) Record(ctx context.Context, event Event) error { return nil }
