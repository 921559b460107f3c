package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// KestrelAnalysesTotal counts analysis uploads by outcome.
	KestrelAnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_analyses_total",
			Help: "Total number of analysis uploads",
		},
		[]string{"outcome"},
	)

	// KestrelSimulationsTotal counts completed simulations by verdict.
	KestrelSimulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_simulations_total",
			Help: "Total number of completed what-if simulations",
		},
		[]string{"verdict"},
	)

	// KestrelEngineErrorsTotal counts detection engine failures.
	KestrelEngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kestrel_engine_errors_total",
			Help: "Total number of detection engine errors",
		},
		[]string{"operation", "status"},
	)

	// KestrelProjectionSeconds tracks how long mapping an analysis takes.
	KestrelProjectionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kestrel_projection_seconds",
			Help:    "Time spent projecting an engine analysis into the workspace",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(KestrelAnalysesTotal)
	prometheus.MustRegister(KestrelSimulationsTotal)
	prometheus.MustRegister(KestrelEngineErrorsTotal)
	prometheus.MustRegister(KestrelProjectionSeconds)
}
