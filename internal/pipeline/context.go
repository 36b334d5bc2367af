package pipeline

import (
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// RequestIDHeader is the propagation header for request ids.
const RequestIDHeader = "X-Request-ID"

// buildRequestContext assembles the immutable per-request context. The
// request id is taken from the propagation header when present, otherwise a
// new time-ordered UUIDv7 is generated so ids sort by arrival.
func buildRequestContext(req *domain.Request, span trace.SpanContext, now time.Time) domain.RequestContext {
	requestID := req.Header(RequestIDHeader)
	if requestID == "" {
		requestID = newRequestID()
	}

	var traceID, spanID string
	if span.IsValid() {
		traceID = span.TraceID().String()
		spanID = span.SpanID().String()
	}

	return domain.NewRequestContext(requestID, traceID, spanID, now)
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than dropping the request.
		return uuid.New().String()
	}
	return id.String()
}
