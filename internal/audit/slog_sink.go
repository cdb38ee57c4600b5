package audit

import (
	"context"
	"log/slog"
)

// SlogSink writes audit events to structured logs. This is the default sink;
// deployments that need durable, queryable audit trails use the storage sink.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a SlogSink over the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Emit logs the event at info level.
func (s *SlogSink) Emit(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit",
		slog.String("actor", event.Actor),
		slog.String("operation", event.Operation),
		slog.String("resource", event.Resource),
		slog.String("result", event.Result),
		slog.Time("timestamp", event.Timestamp),
	)
	return nil
}
