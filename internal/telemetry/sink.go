package telemetry

import (
	"context"
	"log/slog"

	"github.com/portcullis-io/portcullis/internal/core/ports"
)

// AuditAppender receives terminal request records for durable audit.
type AuditAppender interface {
	Append(ctx context.Context, rec ports.RequestRecord) error
}

// Sink is the default TelemetrySink: structured logs, prometheus metrics,
// and an optional durable audit trail.
type Sink struct {
	logger *slog.Logger
	audit  AuditAppender // nil disables the audit trail
}

// NewSink builds a sink. audit may be nil.
func NewSink(logger *slog.Logger, audit AuditAppender) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger, audit: audit}
}

var _ ports.TelemetrySink = (*Sink)(nil)

// RecordRequest emits one log line, one metric sample per stage, and one
// audit row for the request. Called exactly once per request by the
// telemetry stage, on every path through the pipeline.
func (s *Sink) RecordRequest(ctx context.Context, rec ports.RequestRecord) {
	RequestsTotal.WithLabelValues(labelOrUnknown(rec.OperationID), rec.Outcome).Inc()
	for _, st := range rec.Stages {
		StageDuration.WithLabelValues(st.Stage).Observe(st.Duration.Seconds())
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "request completed",
		slog.String("request_id", rec.RequestID),
		slog.String("operation", rec.OperationID),
		slog.String("caller", rec.Caller.Subject()),
		slog.String("method", rec.Method),
		slog.String("path", rec.Path),
		slog.Int("status", rec.StatusCode),
		slog.String("outcome", rec.Outcome),
		slog.Duration("duration", rec.Duration),
	)

	if s.audit != nil {
		if err := s.audit.Append(ctx, rec); err != nil {
			s.logger.Error("audit append failed",
				slog.String("request_id", rec.RequestID),
				slog.String("error", err.Error()))
		}
	}
}

// ReloadFailed reports a non-fatal hot-reload failure.
func (s *Sink) ReloadFailed(component string, err error) {
	ReloadFailures.WithLabelValues(component).Inc()
	s.logger.Error("reload failed, keeping last-known-good",
		slog.String("component", component),
		slog.String("error", err.Error()))
}

func labelOrUnknown(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
