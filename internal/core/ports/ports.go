// Package ports defines the boundary interfaces between the pipeline
// orchestrator and its collaborators. Implementations live in their own
// packages; the orchestrator depends only on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/portcullis-io/portcullis/internal/core/domain"
)

// Route is the result of resolving a concrete method+path against the
// contract's path templates.
type Route struct {
	OperationID string
	Params      domain.PathParams
}

// ContractResolver hands out contract snapshots. The pipeline takes one
// snapshot per request and serves routing and both validations from it, so a
// hot reload never changes the contract under an in-flight request.
type ContractResolver interface {
	Snapshot() ContractSnapshot
}

// ContractSnapshot is one immutable contract revision. Implementations must
// be safe for concurrent use.
type ContractSnapshot interface {
	// Resolve maps method+path to an operation. ok is false when no template
	// matches.
	Resolve(method, path string) (route Route, ok bool)

	// ValidateRequest checks body against the operation's request schema.
	// A non-nil error means the validator itself failed, not the body.
	ValidateRequest(operationID string, body []byte) (domain.ValidationOutcome, error)

	// ValidateResponse checks body against the operation's response schema,
	// when one is declared.
	ValidateResponse(operationID string, body []byte) (domain.ValidationOutcome, error)
}

// PolicyEvaluator decides whether a request may proceed. Implementations are
// fail-closed: any input with no matching allow rule yields Allow=false.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error)
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// RequestRecord is the per-request telemetry emitted exactly once, on every
// path through the pipeline.
type RequestRecord struct {
	RequestID   string
	OperationID string
	Caller      domain.CallerIdentity
	Method      string
	Path        string
	StatusCode  int
	Outcome     string // "success", "timeout", or the failing error kind
	Duration    time.Duration
	Stages      []StageTiming
	ReceivedAt  time.Time
}

// TelemetrySink receives request records and operational events. The sink
// implementation (metrics, traces, audit) is external to the pipeline.
type TelemetrySink interface {
	RecordRequest(ctx context.Context, rec RequestRecord)

	// ReloadFailed reports a non-fatal hot-reload failure (the previous
	// artifact stays active).
	ReloadFailed(component string, err error)
}

// Hook is an observe-only extension point invoked around the handler. Hooks
// deliberately return nothing: they cannot short-circuit the fixed stages or
// alter their order.
type Hook func(ctx context.Context, rc domain.RequestContext, req *domain.Request, resp *domain.Response)
