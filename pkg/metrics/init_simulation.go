package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSimulationMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Total number of Monte Carlo seeds by final status",
		},
		[]string{"status"},
	)

	r.RunDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of one seed from build to final snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	r.TimestepsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "timesteps_total",
			Help:      "Total number of simulated timesteps across all seeds",
		},
	)

	r.ExposuresTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "exposures_total",
			Help:      "New exposures by contact layer",
		},
		[]string{"layer"},
	)

	r.TransitionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transitions_total",
			Help:      "Automatic disease-state transitions by target state",
		},
		[]string{"state"},
	)

	r.SeedsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "seeds_in_flight",
			Help:      "Seeds currently running on the worker pool",
		},
	)

	r.InterventionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "intervention_actions_total",
			Help:      "Agents affected by interventions by action",
		},
		[]string{"action"},
	)
}
