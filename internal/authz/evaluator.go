package authz

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/portcullis-io/portcullis/internal/core/domain"
	"github.com/portcullis-io/portcullis/internal/core/ports"
	"github.com/portcullis-io/portcullis/internal/telemetry"
)

// snapshot pairs a bundle with the decision cache built for it. Swapping the
// snapshot pointer replaces both in one atomic step, so no cached decision
// can ever be read against a bundle other than the one that produced it.
type snapshot struct {
	bundle *Bundle
	cache  *expirable.LRU[string, domain.PolicyDecision]
}

// Config tunes the evaluator.
type Config struct {
	// Path of the bundle file or directory.
	Path string

	// Query is the Rego query, e.g. "data.authz.allow".
	Query string

	// CacheTTL bounds decision staleness. Zero disables caching.
	CacheTTL time.Duration

	// CacheSize caps the number of cached decisions.
	CacheSize int
}

// Evaluator implements ports.PolicyEvaluator with caching and hot reload.
type Evaluator struct {
	cfg    Config
	active atomic.Pointer[snapshot]
	logger *slog.Logger
}

var _ ports.PolicyEvaluator = (*Evaluator)(nil)

// NewEvaluator loads the initial bundle. Startup load failure is fatal.
func NewEvaluator(ctx context.Context, cfg Config, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Query == "" {
		cfg.Query = "data.authz.allow"
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}

	bundle, err := LoadBundle(ctx, cfg.Path, cfg.Query)
	if err != nil {
		return nil, err
	}

	e := &Evaluator{cfg: cfg, logger: logger}
	e.active.Store(e.newSnapshot(bundle))
	logger.Info("policy bundle loaded",
		slog.String("revision", bundle.Revision),
		slog.Int("modules", len(bundle.Sources)))
	return e, nil
}

func (e *Evaluator) newSnapshot(bundle *Bundle) *snapshot {
	s := &snapshot{bundle: bundle}
	if e.cfg.CacheTTL > 0 {
		s.cache = expirable.NewLRU[string, domain.PolicyDecision](e.cfg.CacheSize, nil, e.cfg.CacheTTL)
	}
	return s
}

// Evaluate returns a policy decision for the input, serving from the
// decision cache when a fresh entry exists. Engine failures deny (fail
// closed) and surface the error to the caller for telemetry.
func (e *Evaluator) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyDecision, error) {
	snap := e.active.Load()

	var key string
	if snap.cache != nil {
		key = cacheKey(input)
		if d, ok := snap.cache.Get(key); ok {
			telemetry.PolicyCacheHits.Inc()
			return d, nil
		}
	}

	start := time.Now()
	decision, err := snap.bundle.evaluate(ctx, input.AsMap())
	telemetry.PolicyEvalLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.PolicyEvaluations.WithLabelValues("error").Inc()
		denied := domain.Deny("policy evaluation failed")
		denied.BundleRevision = snap.bundle.Revision
		return denied, err
	}

	if decision.Allow {
		telemetry.PolicyEvaluations.WithLabelValues("allow").Inc()
	} else {
		telemetry.PolicyEvaluations.WithLabelValues("deny").Inc()
	}

	if snap.cache != nil {
		snap.cache.Add(key, decision)
	}
	return decision, nil
}

// Reload loads and compiles the bundle fully, then swaps the active snapshot
// and its cache in one atomic pointer store. On failure the previous bundle
// and cache remain active and the error is returned for reporting.
func (e *Evaluator) Reload(ctx context.Context) error {
	bundle, err := LoadBundle(ctx, e.cfg.Path, e.cfg.Query)
	if err != nil {
		return fmt.Errorf("reload policy bundle: %w", err)
	}

	old := e.active.Swap(e.newSnapshot(bundle))
	e.logger.Info("policy bundle reloaded",
		slog.String("old_revision", old.bundle.Revision),
		slog.String("new_revision", bundle.Revision))
	return nil
}

// Revision returns the active bundle revision.
func (e *Evaluator) Revision() string {
	return e.active.Load().bundle.Revision
}

// Path returns the bundle path the evaluator reloads from.
func (e *Evaluator) Path() string { return e.cfg.Path }
