package domain

import (
	"fmt"
	"net/http"
	"time"
)

// ErrorKind categorizes pipeline failures. Every stage maps its failure to
// exactly one kind; the orchestrator never retries any of them.
type ErrorKind string

const (
	// KindRouteNotFound means no contract operation matched method+path.
	KindRouteNotFound ErrorKind = "route_not_found"

	// KindInvalidOperation means the contract resolved an operation but no
	// handler is registered for it. Distinct from RouteNotFound: this is a
	// server wiring defect, not a client mistake.
	KindInvalidOperation ErrorKind = "invalid_operation"

	// KindValidationFailed means the request or response body failed schema
	// validation in enforced mode.
	KindValidationFailed ErrorKind = "validation_failed"

	// KindUnauthenticated means policy required an identity and none was
	// presented.
	KindUnauthenticated ErrorKind = "unauthenticated"

	// KindUnauthorized means the policy evaluated to deny.
	KindUnauthorized ErrorKind = "unauthorized"

	// KindHandlerFailed means the business-logic handler returned an error.
	KindHandlerFailed ErrorKind = "handler_failed"

	// KindInternal means an unexpected failure inside the pipeline itself,
	// including per-request timeouts.
	KindInternal ErrorKind = "internal"
)

// Stable envelope codes. The prefix is fixed per category so clients can
// match on it without enumerating every code.
const (
	CodeRouteNotFound   = "NOT_FOUND_ROUTE"
	CodeAuthRequired    = "AUTH_REQUIRED"
	CodeAuthzDenied     = "AUTHZ_DENIED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeResponseInvalid = "VALIDATION_RESPONSE"
	CodeUnregisteredOp  = "INTERNAL_OPERATION_UNREGISTERED"
	CodeHandlerError    = "INTERNAL_HANDLER_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeRequestTimeout  = "INTERNAL_TIMEOUT"
)

// PipelineError is the typed outcome every stage returns on failure. The
// orchestrator maps it to the standard envelope during error normalization.
type PipelineError struct {
	// Kind is the taxonomy category.
	Kind ErrorKind

	// Code is the stable wire-level code (VALIDATION_*, AUTH_*, ...).
	Code string

	// Message is the human-readable description.
	Message string

	// Details carries structured context, e.g. validation error lists.
	Details any

	// StatusCode overrides the kind's default HTTP status when non-zero.
	StatusCode int

	// Err is the wrapped cause, if any.
	Err error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *PipelineError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the status to send for this error.
func (e *PipelineError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Kind {
	case KindRouteNotFound:
		return http.StatusNotFound
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ErrorEnvelope is the wire-level error contract shared platform-wide.
type ErrorEnvelope struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Envelope normalizes the error into the standard envelope. Internal-kind
// messages are replaced with a generic message so internals never leak.
func (e *PipelineError) Envelope(requestID string, now time.Time) ErrorEnvelope {
	msg := e.Message
	if e.Kind == KindInternal && e.Code != CodeRequestTimeout {
		msg = "an internal error occurred"
	}
	return ErrorEnvelope{
		Code:      e.Code,
		Message:   msg,
		Details:   e.Details,
		RequestID: requestID,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// Constructors for the common failures.

// ErrRouteNotFound reports an unmatched method+path pair.
func ErrRouteNotFound(method, path string) *PipelineError {
	return &PipelineError{
		Kind:    KindRouteNotFound,
		Code:    CodeRouteNotFound,
		Message: fmt.Sprintf("no operation matches %s %s", method, path),
	}
}

// ErrInvalidOperation reports a resolved operation with no registered handler.
func ErrInvalidOperation(operationID string) *PipelineError {
	return &PipelineError{
		Kind:    KindInvalidOperation,
		Code:    CodeUnregisteredOp,
		Message: fmt.Sprintf("operation %q is defined in the contract but has no registered handler", operationID),
	}
}

// ErrValidationFailed reports a schema validation failure.
func ErrValidationFailed(outcome ValidationOutcome) *PipelineError {
	return &PipelineError{
		Kind:    KindValidationFailed,
		Code:    CodeValidationError,
		Message: "request body failed schema validation",
		Details: outcome.Errors,
	}
}

// ErrResponseValidationFailed reports a response schema failure. The invalid
// body was produced by the service, not the caller, so the status is a server
// error even though the kind is validation_failed.
func ErrResponseValidationFailed(outcome ValidationOutcome) *PipelineError {
	return &PipelineError{
		Kind:       KindValidationFailed,
		Code:       CodeResponseInvalid,
		Message:    "response body failed schema validation",
		Details:    outcome.Errors,
		StatusCode: http.StatusInternalServerError,
	}
}

// ErrUnauthenticated reports a missing required identity.
func ErrUnauthenticated(reason string) *PipelineError {
	if reason == "" {
		reason = "authentication required"
	}
	return &PipelineError{Kind: KindUnauthenticated, Code: CodeAuthRequired, Message: reason}
}

// ErrUnauthorized reports a policy denial.
func ErrUnauthorized(reason string) *PipelineError {
	if reason == "" {
		reason = "access denied by policy"
	}
	return &PipelineError{Kind: KindUnauthorized, Code: CodeAuthzDenied, Message: reason}
}

// ErrHandlerFailed wraps a business-logic error from the handler.
func ErrHandlerFailed(err error) *PipelineError {
	// Handlers may return a PipelineError directly to control code/status.
	if pe, ok := err.(*PipelineError); ok {
		return pe
	}
	return &PipelineError{
		Kind:    KindHandlerFailed,
		Code:    CodeHandlerError,
		Message: err.Error(),
		Err:     err,
	}
}

// ErrInternal wraps an unexpected pipeline failure.
func ErrInternal(err error) *PipelineError {
	return &PipelineError{
		Kind:    KindInternal,
		Code:    CodeInternalError,
		Message: err.Error(),
		Err:     err,
	}
}

// ErrTimeout reports per-request deadline expiry.
func ErrTimeout() *PipelineError {
	return &PipelineError{
		Kind:       KindInternal,
		Code:       CodeRequestTimeout,
		Message:    "request deadline exceeded",
		StatusCode: http.StatusGatewayTimeout,
	}
}
