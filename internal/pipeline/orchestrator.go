// Package pipeline runs every request through the fixed enforcement stage
// sequence:
//
//	RequestIdReady → Traced → IdentityResolved → Authorized →
//	RequestValidated → Handling → ResponseValidated →
//	TelemetryRecorded → Normalized
//
// The order is fixed at build time and is not configurable. Any stage
// failure jumps directly to telemetry and error normalization, which run
// exactly once on every path, so every request produces exactly one
// telemetry record and exactly one response.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/portcullis-io/portcullis/internal/core/domain"
	"github.com/portcullis-io/portcullis/internal/core/ports"
	"github.com/portcullis-io/portcullis/internal/registry"
	"github.com/portcullis-io/portcullis/internal/telemetry"
)

// Stage names, used for timings and spans.
const (
	StageRequestID          = "request_id"
	StageTracing            = "tracing"
	StageIdentity           = "identity"
	StageRouting            = "routing"
	StageAuthorization      = "authorization"
	StageRequestValidation  = "request_validation"
	StageHandler            = "handler"
	StageResponseValidation = "response_validation"
)

// Config assembles an orchestrator.
type Config struct {
	Contract ports.ContractResolver
	Policy   ports.PolicyEvaluator
	Registry *registry.Registry
	Sink     ports.TelemetrySink

	// Container is handed to handlers through the Invocation; may be nil.
	Container *registry.Container

	// RequestValidation defaults to enforced, ResponseValidation to disabled.
	RequestValidation  domain.ValidationMode
	ResponseValidation domain.ValidationMode

	// Environment is forwarded to the policy engine.
	Environment string

	// PreHandler and PostHandler are observe-only hooks around the handler.
	PreHandler  ports.Hook
	PostHandler ports.Hook

	Logger *slog.Logger
}

// Orchestrator is the fixed-order pipeline. It owns the RequestContext for
// the lifetime of each request and passes it to stages read-only.
type Orchestrator struct {
	cfg    Config
	tracer trace.Tracer
	logger *slog.Logger
}

// New builds an orchestrator. Contract, Policy, Registry, and Sink are
// required.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Contract == nil {
		return nil, fmt.Errorf("pipeline: contract resolver required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("pipeline: policy evaluator required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("pipeline: handler registry required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("pipeline: telemetry sink required")
	}
	if cfg.RequestValidation == "" {
		cfg.RequestValidation = domain.ValidationEnforced
	}
	if cfg.ResponseValidation == "" {
		cfg.ResponseValidation = domain.ValidationDisabled
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		tracer: otel.Tracer("portcullis/pipeline"),
		logger: cfg.Logger,
	}, nil
}

// result carries the terminal state of one pipeline run into the telemetry
// and normalization steps.
type result struct {
	rc       domain.RequestContext
	response *domain.Response
	err      *domain.PipelineError
	stages   []ports.StageTiming
}

// Process runs one request through the full pipeline and always returns an
// encoded-ready response. Telemetry and error normalization run on every
// path, including timeouts and internal failures.
func (o *Orchestrator) Process(ctx context.Context, req *domain.Request) *domain.Response {
	start := time.Now()

	res := o.run(ctx, req)

	// Telemetry: exactly once per request, regardless of outcome.
	o.recordTelemetry(ctx, req, res, time.Since(start))

	// Error normalization: every failure leaves the core as the standard
	// envelope; successes pass through untouched.
	return o.normalize(res)
}

// run executes the pre-handler stages, the handler, and response validation,
// stopping at the first failure. It never records telemetry itself.
func (o *Orchestrator) run(ctx context.Context, req *domain.Request) *result {
	res := &result{}
	timed := func(stage string, start time.Time) {
		res.stages = append(res.stages, ports.StageTiming{Stage: stage, Duration: time.Since(start)})
	}

	// Stage 1: request id.
	t := time.Now()
	rc := buildRequestContext(req, trace.SpanContextFromContext(ctx), time.Now())
	timed(StageRequestID, t)

	// Stage 2: tracing. The span covers the rest of the pipeline including
	// the handler.
	t = time.Now()
	ctx, span := o.tracer.Start(ctx, req.Method+" "+req.Path,
		trace.WithAttributes(attribute.String("request.id", rc.RequestID())))
	defer span.End()
	sc := span.SpanContext()
	if sc.IsValid() {
		rc = domain.NewRequestContext(rc.RequestID(), sc.TraceID().String(), sc.SpanID().String(), rc.ReceivedAt())
	}
	timed(StageTracing, t)

	// Stage 3: identity.
	t = time.Now()
	rc = rc.WithCaller(resolveIdentity(req))
	timed(StageIdentity, t)

	// Routing: resolve the operation before authorization, which needs the
	// operation id. Cheap template lookup, no body inspection. One contract
	// snapshot serves the whole request; a reload landing mid-request cannot
	// withdraw an operation this request already routed to.
	t = time.Now()
	contract := o.cfg.Contract.Snapshot()
	route, ok := contract.Resolve(req.Method, req.Path)
	if !ok {
		timed(StageRouting, t)
		res.rc = rc
		res.err = domain.ErrRouteNotFound(req.Method, req.Path)
		return o.failSpan(span, res)
	}
	rc = rc.WithOperation(route.OperationID)
	span.SetAttributes(attribute.String("operation.id", route.OperationID))
	timed(StageRouting, t)
	res.rc = rc

	if err := deadline(ctx); err != nil {
		res.err = err
		return o.failSpan(span, res)
	}

	// Stage 4: authorization. Runs before request validation on purpose:
	// it needs only method, path, operation id, and identity, so denied
	// callers are rejected before the more expensive body validation and
	// learn nothing about schema shapes.
	t = time.Now()
	if err := o.authorize(ctx, rc, req); err != nil {
		timed(StageAuthorization, t)
		res.err = err
		return o.failSpan(span, res)
	}
	timed(StageAuthorization, t)

	if err := deadline(ctx); err != nil {
		res.err = err
		return o.failSpan(span, res)
	}

	// Stage 5: request validation.
	t = time.Now()
	if err := o.validateRequest(contract, rc, req); err != nil {
		timed(StageRequestValidation, t)
		res.err = err
		return o.failSpan(span, res)
	}
	timed(StageRequestValidation, t)

	// Stage 6: handler, bracketed by the observe-only hooks.
	t = time.Now()
	resp, err := o.invokeHandler(ctx, rc, req, route.Params)
	timed(StageHandler, t)
	if err != nil {
		res.err = err
		return o.failSpan(span, res)
	}
	res.response = resp

	// Stage 7: response validation.
	t = time.Now()
	if err := o.validateResponse(contract, rc, resp); err != nil {
		timed(StageResponseValidation, t)
		res.err = err
		res.response = nil
		return o.failSpan(span, res)
	}
	timed(StageResponseValidation, t)

	span.SetStatus(codes.Ok, "")
	return res
}

// deadline converts context expiry into the timeout error. Checked at the
// pipeline's suspension points; no stage holds a lock across them.
func deadline(ctx context.Context) *domain.PipelineError {
	if ctx.Err() != nil {
		return domain.ErrTimeout()
	}
	return nil
}

func (o *Orchestrator) failSpan(span trace.Span, res *result) *result {
	span.SetStatus(codes.Error, res.err.Code)
	return res
}

// authorize builds the policy input and evaluates it. A deny for an
// anonymous caller is reported as unauthenticated rather than unauthorized,
// since the policy could never have matched an identity that was not there.
func (o *Orchestrator) authorize(ctx context.Context, rc domain.RequestContext, req *domain.Request) *domain.PipelineError {
	input := domain.PolicyInput{
		Caller:      rc.Caller(),
		OperationID: rc.OperationID(),
		Method:      req.Method,
		Path:        req.Path,
		Headers:     domain.FilterHeaders(req.Headers),
		Timestamp:   rc.ReceivedAt(),
		Environment: o.cfg.Environment,
	}

	decision, err := o.cfg.Policy.Evaluate(ctx, input)
	if err != nil {
		// Fail closed: the engine error denies the request, and the error
		// itself is logged rather than surfaced to the caller.
		o.logger.Error("policy evaluation failed",
			slog.String("request_id", rc.RequestID()),
			slog.String("operation", rc.OperationID()),
			slog.String("error", err.Error()))
	}
	if decision.Allow {
		return nil
	}
	if rc.Caller().IsAnonymous() {
		return domain.ErrUnauthenticated(decision.Reason)
	}
	return domain.ErrUnauthorized(decision.Reason)
}

func (o *Orchestrator) validateRequest(contract ports.ContractSnapshot, rc domain.RequestContext, req *domain.Request) *domain.PipelineError {
	if o.cfg.RequestValidation == domain.ValidationDisabled {
		return nil
	}

	outcome, err := contract.ValidateRequest(rc.OperationID(), req.Body)
	if err != nil {
		return domain.ErrInternal(err)
	}
	if outcome.Valid {
		return nil
	}

	if o.cfg.RequestValidation == domain.ValidationMonitorOnly {
		telemetry.ValidationMonitorFailures.WithLabelValues(rc.OperationID(), "request").Inc()
		o.logger.Warn("request failed schema validation (monitor only)",
			slog.String("request_id", rc.RequestID()),
			slog.String("operation", rc.OperationID()),
			slog.Int("violations", len(outcome.Errors)))
		return nil
	}
	return domain.ErrValidationFailed(outcome)
}

func (o *Orchestrator) validateResponse(contract ports.ContractSnapshot, rc domain.RequestContext, resp *domain.Response) *domain.PipelineError {
	if o.cfg.ResponseValidation == domain.ValidationDisabled {
		return nil
	}

	outcome, err := contract.ValidateResponse(rc.OperationID(), resp.Body)
	if err != nil {
		return domain.ErrInternal(err)
	}
	if outcome.Valid {
		return nil
	}

	if o.cfg.ResponseValidation == domain.ValidationMonitorOnly {
		telemetry.ValidationMonitorFailures.WithLabelValues(rc.OperationID(), "response").Inc()
		o.logger.Warn("response failed schema validation (monitor only)",
			slog.String("request_id", rc.RequestID()),
			slog.String("operation", rc.OperationID()),
			slog.Int("violations", len(outcome.Errors)))
		return nil
	}
	return domain.ErrResponseValidationFailed(outcome)
}

// invokeHandler looks up and runs the handler for the resolved operation.
func (o *Orchestrator) invokeHandler(ctx context.Context, rc domain.RequestContext, req *domain.Request, params domain.PathParams) (*domain.Response, *domain.PipelineError) {
	h, ok := o.cfg.Registry.Lookup(rc.OperationID())
	if !ok {
		return nil, domain.ErrInvalidOperation(rc.OperationID())
	}

	if o.cfg.PreHandler != nil {
		o.cfg.PreHandler(ctx, rc, req, nil)
	}

	inv := &registry.Invocation{
		Method:         req.Method,
		Path:           req.Path,
		Headers:        req.Headers,
		Body:           req.Body,
		Params:         params,
		RequestContext: rc,
		Container:      o.cfg.Container,
	}

	value, err := h.Handle(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrTimeout()
		}
		return nil, domain.ErrHandlerFailed(err)
	}
	if err := deadline(ctx); err != nil {
		return nil, err
	}

	resp, perr := encodeResult(value)
	if perr != nil {
		return nil, perr
	}

	if o.cfg.PostHandler != nil {
		o.cfg.PostHandler(ctx, rc, req, resp)
	}
	return resp, nil
}

// encodeResult turns a handler's return value into a response. Handlers may
// return a *domain.Response for full control, nil for 204, or any JSON-
// serializable value for a 200 with an application/json body.
func encodeResult(value any) (*domain.Response, *domain.PipelineError) {
	switch v := value.(type) {
	case *domain.Response:
		return v, nil
	case nil:
		return &domain.Response{StatusCode: http.StatusNoContent}, nil
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return nil, domain.ErrInternal(fmt.Errorf("encode handler response: %w", err))
		}
		resp := &domain.Response{StatusCode: http.StatusOK, Body: body}
		resp.SetHeader("Content-Type", "application/json")
		return resp, nil
	}
}

// recordTelemetry emits the single per-request record.
func (o *Orchestrator) recordTelemetry(ctx context.Context, req *domain.Request, res *result, total time.Duration) {
	outcome := "success"
	status := http.StatusOK
	if res.response != nil {
		status = res.response.StatusCode
	}
	if res.err != nil {
		status = res.err.HTTPStatusCode()
		if res.err.Code == domain.CodeRequestTimeout {
			outcome = "timeout"
		} else {
			outcome = string(res.err.Kind)
		}
	}

	o.cfg.Sink.RecordRequest(ctx, ports.RequestRecord{
		RequestID:   res.rc.RequestID(),
		OperationID: res.rc.OperationID(),
		Caller:      res.rc.Caller(),
		Method:      req.Method,
		Path:        req.Path,
		StatusCode:  status,
		Outcome:     outcome,
		Duration:    total,
		Stages:      res.stages,
		ReceivedAt:  res.rc.ReceivedAt(),
	})
}

// normalize produces the final wire response. Failures become the standard
// error envelope; every response carries the request id header.
func (o *Orchestrator) normalize(res *result) *domain.Response {
	var resp *domain.Response
	if res.err != nil {
		envelope := res.err.Envelope(res.rc.RequestID(), time.Now())
		body, err := json.Marshal(envelope)
		if err != nil {
			// Marshaling a flat envelope cannot realistically fail; keep a
			// hand-built fallback so normalization itself never errors.
			body = []byte(`{"code":"INTERNAL_ERROR","message":"an internal error occurred"}`)
		}
		resp = &domain.Response{StatusCode: res.err.HTTPStatusCode(), Body: body}
		resp.SetHeader("Content-Type", "application/json")
	} else {
		resp = res.response
	}

	resp.SetHeader(RequestIDHeader, res.rc.RequestID())
	return resp
}
