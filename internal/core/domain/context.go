package domain

import "time"

// RequestContext is the immutable per-request metadata created once by the
// context builder and read by every pipeline stage. Fields are unexported so
// stages cannot mutate a context another stage (or the telemetry recorder,
// possibly on another goroutine) is reading; stages that learn new facts
// derive a new context with the With* methods instead.
type RequestContext struct {
	requestID   string
	traceID     string
	spanID      string
	caller      CallerIdentity
	operationID string
	receivedAt  time.Time
}

// NewRequestContext builds a context with the identifiers known at arrival
// time. Identity and operation are filled in by later stages via WithCaller
// and WithOperation.
func NewRequestContext(requestID, traceID, spanID string, receivedAt time.Time) RequestContext {
	return RequestContext{
		requestID:  requestID,
		traceID:    traceID,
		spanID:     spanID,
		caller:     AnonymousCaller(),
		receivedAt: receivedAt,
	}
}

// RequestID returns the time-ordered unique request identifier.
func (c RequestContext) RequestID() string { return c.requestID }

// TraceID returns the trace identifier for the request's span.
func (c RequestContext) TraceID() string { return c.traceID }

// SpanID returns the span identifier for the request's span.
func (c RequestContext) SpanID() string { return c.spanID }

// Caller returns the resolved caller identity.
func (c RequestContext) Caller() CallerIdentity { return c.caller }

// OperationID returns the resolved operation id, or "" before routing.
func (c RequestContext) OperationID() string { return c.operationID }

// ReceivedAt returns the arrival timestamp.
func (c RequestContext) ReceivedAt() time.Time { return c.receivedAt }

// WithCaller derives a context with the caller identity set.
func (c RequestContext) WithCaller(caller CallerIdentity) RequestContext {
	c.caller = caller
	return c
}

// WithOperation derives a context with the resolved operation id set.
func (c RequestContext) WithOperation(operationID string) RequestContext {
	c.operationID = operationID
	return c
}
