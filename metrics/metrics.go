// Package metrics exposes the engine's Prometheus collectors on a
// dedicated registry so embedding applications can mount them wherever
// they serve /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// SolveDuration records solver runtimes in seconds by solver kind and outcome.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "routeopt_solve_duration_seconds", Help: "Solver runtime in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}},
		[]string{"solver", "outcome"},
	)
	// FallbackAttempts counts candidates tried per fallback chain run.
	FallbackAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "routeopt_fallback_attempts", Help: "Candidates tried per solve_with_fallback call.", Buckets: []float64{1, 2, 3, 4, 5}},
	)
	// MatrixBatchFailures counts zero-filled matrix sub-requests.
	MatrixBatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "routeopt_matrix_batch_failures_total", Help: "Matrix sub-requests that failed and were zero-filled."},
	)
	// MatrixCacheHits / MatrixCacheMisses track the fingerprint cache.
	MatrixCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "routeopt_matrix_cache_hits_total", Help: "Matrix cache hits."},
	)
	MatrixCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "routeopt_matrix_cache_misses_total", Help: "Matrix cache misses."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all engine collectors plus the Go/process
// collectors on Registry. Safe to call more than once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(FallbackAttempts)
		Registry.MustRegister(MatrixBatchFailures)
		Registry.MustRegister(MatrixCacheHits)
		Registry.MustRegister(MatrixCacheMisses)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
