// Package telemetry holds the process-wide Prometheus collectors and the
// zap logger constructor.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Solve outcomes used as the "result" label.
const (
	ResultConverged  = "converged"
	ResultSuboptimal = "suboptimal"
	ResultFallback   = "fallback"
	ResultRejected   = "rejected"
)

var (
	SolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpc",
		Subsystem: "controller",
		Name:      "solve_duration_seconds",
		Help:      "Wall time of one controller solve, including latency compensation",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	SolveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mpc",
		Subsystem: "controller",
		Name:      "solve_total",
		Help:      "Controller solves by outcome",
	}, []string{"result"})

	SolverIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpc",
		Subsystem: "solver",
		Name:      "inner_iterations",
		Help:      "L-BFGS iterations spent per solve",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	ConstraintViolation = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpc",
		Subsystem: "solver",
		Name:      "constraint_violation",
		Help:      "Constraint violation of the most recent solution",
	})

	CrossTrackError = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpc",
		Subsystem: "sim",
		Name:      "cross_track_error_meters",
		Help:      "Cross-track error observed at the latest closed-loop step",
	})
)
