package runtime

import (
	"log/slog"

	"github.com/portcullis-io/portcullis/internal/core/ports"
	"github.com/portcullis-io/portcullis/internal/registry"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) error {
		r.logger = logger
		return nil
	}
}

// WithTelemetrySink replaces the default sink (logs + metrics + audit).
func WithTelemetrySink(sink ports.TelemetrySink) Option {
	return func(r *Runtime) error {
		r.sink = sink
		return nil
	}
}

// WithContainer provides the dependency container handed to handlers.
func WithContainer(c *registry.Container) Option {
	return func(r *Runtime) error {
		r.container = c
		return nil
	}
}

// WithPreHandler installs the observe-only hook that runs immediately before
// the handler. It cannot suppress authorization or validation.
func WithPreHandler(hook ports.Hook) Option {
	return func(r *Runtime) error {
		r.preHandler = hook
		return nil
	}
}

// WithPostHandler installs the observe-only hook that runs immediately after
// the handler.
func WithPostHandler(hook ports.Hook) Option {
	return func(r *Runtime) error {
		r.postHandler = hook
		return nil
	}
}
