// Package portcullis provides the public API for embedding the enforcement
// pipeline. This is the stable API for external consumers.
package portcullis

import (
	"context"

	"github.com/portcullis-io/portcullis/internal/config"
	"github.com/portcullis-io/portcullis/internal/core/domain"
	"github.com/portcullis-io/portcullis/internal/registry"
	"github.com/portcullis-io/portcullis/internal/runtime"
)

// Runtime is the main entry point for running the pipeline.
// See internal/runtime.Runtime for full documentation.
type Runtime = runtime.Runtime

// Option is a functional option for configuring a Runtime.
type Option = runtime.Option

// Config is the runtime configuration, typically loaded from a YAML file
// plus PORTCULLIS_ environment variables.
type Config = config.Config

// Handler types for operation registration.
type (
	Handler     = registry.Handler
	HandlerFunc = registry.HandlerFunc
	Invocation  = registry.Invocation
	Container   = registry.Container
	NoBody      = registry.NoBody
)

// Domain types surfaced to handlers.
type (
	RequestContext = domain.RequestContext
	CallerIdentity = domain.CallerIdentity
	Response       = domain.Response
	PipelineError  = domain.PipelineError
)

// New creates a new Runtime from configuration.
// Example:
//
//	cfg, err := portcullis.LoadConfig("config.yaml")
//	rt, err := portcullis.New(cfg, portcullis.WithLogger(logger))
var New = runtime.New

// LoadConfig reads configuration from a YAML file and the environment.
var LoadConfig = config.Load

// Typed wraps a request/response typed function as a Handler, decoding the
// request body as JSON.
func Typed[Req, Res any](fn func(ctx context.Context, inv *Invocation, req Req) (Res, error)) Handler {
	return registry.Typed(fn)
}

var (
	WithLogger        = runtime.WithLogger
	WithTelemetrySink = runtime.WithTelemetrySink
	WithContainer     = runtime.WithContainer
	WithPreHandler    = runtime.WithPreHandler
	WithPostHandler   = runtime.WithPostHandler
)
