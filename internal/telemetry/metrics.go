package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts terminal pipeline outcomes per operation.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests processed by the pipeline, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// StageDuration tracks per-stage latency.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portcullis",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
		},
		[]string{"stage"},
	)

	// PolicyEvaluations counts policy engine evaluations (cache misses).
	PolicyEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "authz",
			Name:      "evaluations_total",
			Help:      "Policy evaluations, by decision",
		},
		[]string{"decision"},
	)

	// PolicyEvalLatency tracks policy evaluation latency (cache misses only).
	PolicyEvalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "portcullis",
			Subsystem: "authz",
			Name:      "evaluation_latency_seconds",
			Help:      "Time spent evaluating the policy bundle",
		},
	)

	// PolicyCacheHits counts decision cache hits.
	PolicyCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "authz",
			Name:      "cache_hits_total",
			Help:      "Policy decisions served from the decision cache",
		},
	)

	// ValidationMonitorFailures counts monitor-only schema failures that were
	// recorded but allowed to proceed.
	ValidationMonitorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "validation",
			Name:      "monitor_failures_total",
			Help:      "Schema failures observed in monitor-only mode",
		},
		[]string{"operation", "phase"},
	)

	// ReloadFailures counts hot-reload failures by component.
	ReloadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portcullis",
			Subsystem: "reload",
			Name:      "failures_total",
			Help:      "Hot-reload failures (last-known-good artifact kept)",
		},
		[]string{"component"},
	)
)

// MustRegister registers all metrics with the default Prometheus registry.
func MustRegister() {
	prometheus.MustRegister(
		RequestsTotal,
		StageDuration,
		PolicyEvaluations,
		PolicyEvalLatency,
		PolicyCacheHits,
		ValidationMonitorFailures,
		ReloadFailures,
	)
}
