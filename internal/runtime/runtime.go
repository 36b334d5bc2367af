// Package runtime wires the enforcement pipeline's components together and
// manages their lifecycle: load contract and policy (fatal on failure),
// register handlers, freeze the registry, serve, and hot-reload on file
// changes until shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/portcullis-io/portcullis/internal/audit"
	"github.com/portcullis-io/portcullis/internal/authz"
	"github.com/portcullis-io/portcullis/internal/config"
	"github.com/portcullis-io/portcullis/internal/contract"
	"github.com/portcullis-io/portcullis/internal/core/ports"
	"github.com/portcullis-io/portcullis/internal/pipeline"
	"github.com/portcullis-io/portcullis/internal/registry"
	"github.com/portcullis-io/portcullis/internal/reload"
	"github.com/portcullis-io/portcullis/internal/server"
	"github.com/portcullis-io/portcullis/internal/telemetry"
)

// Runtime owns the pipeline and its collaborators.
type Runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *registry.Registry
	container *registry.Container
	sink      ports.TelemetrySink

	preHandler  ports.Hook
	postHandler ports.Hook

	contracts *contract.Store
	evaluator *authz.Evaluator
	auditing  *audit.Store
	srv       *server.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a runtime from configuration. Handlers must be registered via
// Registry() before Start.
func New(cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("runtime: config required")
	}
	if cfg.Contract.Path == "" {
		return nil, fmt.Errorf("runtime: contract.path is required")
	}
	if cfg.Policy.Path == "" {
		return nil, fmt.Errorf("runtime: policy.path is required")
	}

	r := &Runtime{
		cfg:      cfg,
		logger:   slog.Default(),
		registry: registry.New(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	return r, nil
}

// Registry exposes the handler registry for startup registration.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Start loads all artifacts and begins serving. Contract or policy load
// failure here is startup-blocking by design.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, r.cancel = context.WithCancel(ctx)

	contracts, err := contract.NewStore(r.cfg.Contract.Path, r.logger)
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}
	r.contracts = contracts

	evaluator, err := authz.NewEvaluator(ctx, authz.Config{
		Path:      r.cfg.Policy.Path,
		Query:     r.cfg.Policy.Query,
		CacheTTL:  r.cfg.Policy.CacheTTL,
		CacheSize: r.cfg.Policy.CacheSize,
	}, r.logger)
	if err != nil {
		return fmt.Errorf("load policy bundle: %w", err)
	}
	r.evaluator = evaluator

	if r.sink == nil {
		var appender telemetry.AuditAppender
		if r.cfg.Audit.Path != "" {
			store, err := audit.New(r.cfg.Audit.Path)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			r.auditing = store
			appender = store
		}
		r.sink = telemetry.NewSink(r.logger, appender)
	}

	requestMode, err := r.cfg.Validation.RequestMode()
	if err != nil {
		return err
	}
	responseMode, err := r.cfg.Validation.ResponseMode()
	if err != nil {
		return err
	}

	// Registration is over once we start serving; the handler table is
	// read-only from here on.
	r.registry.Freeze()

	orch, err := pipeline.New(pipeline.Config{
		Contract:           contract.NewValidator(contracts),
		Policy:             evaluator,
		Registry:           r.registry,
		Sink:               r.sink,
		Container:          r.container,
		RequestValidation:  requestMode,
		ResponseValidation: responseMode,
		Environment:        r.cfg.Environment,
		PreHandler:         r.preHandler,
		PostHandler:        r.postHandler,
		Logger:             r.logger,
	})
	if err != nil {
		return err
	}

	r.srv = server.New(r.cfg.Server.Port, r.cfg.Server.RequestTimeout, orch, r.logger)

	g, gctx := errgroup.WithContext(ctx)
	r.group = g

	g.Go(func() error {
		return r.srv.Start()
	})

	if targets := r.reloadTargets(); len(targets) > 0 {
		watcher, err := reload.NewWatcher(targets, r.sink, r.logger)
		if err != nil {
			return fmt.Errorf("start reload watcher: %w", err)
		}
		g.Go(func() error {
			err := watcher.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	r.logger.Info("portcullis started",
		slog.Int("port", r.cfg.Server.Port),
		slog.Int("handlers", len(r.registry.Operations())),
		slog.String("environment", r.cfg.Environment))
	return nil
}

func (r *Runtime) reloadTargets() []reload.Target {
	var targets []reload.Target
	if r.cfg.Contract.Watch {
		targets = append(targets, reload.Target{
			Name: "contract",
			Path: r.cfg.Contract.Path,
			Reload: func(context.Context) error {
				return r.contracts.Reload()
			},
		})
	}
	if r.cfg.Policy.Watch {
		targets = append(targets, reload.Target{
			Name:   "policy",
			Path:   r.cfg.Policy.Path,
			Reload: r.evaluator.Reload,
		})
	}
	return targets
}

// Shutdown drains the server and stops the watcher.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("shutting down")
	if r.cancel != nil {
		r.cancel()
	}

	var firstErr error
	if r.srv != nil {
		if err := r.srv.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if r.group != nil {
		if err := r.group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.auditing != nil {
		if err := r.auditing.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
