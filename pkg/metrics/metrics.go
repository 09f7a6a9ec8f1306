package metrics

import (
	"runtime"
	"time"
)

// All recording methods are safe on a nil *Registry, so components can run
// without metrics.

// RecordRun records the final status and duration of one seed.
func (r *Registry) RecordRun(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(duration.Seconds())
}

// RecordTimestep counts one simulated timestep.
func (r *Registry) RecordTimestep() {
	if r == nil {
		return
	}
	r.TimestepsTotal.Inc()
}

// RecordExposures adds n exposures on layer.
func (r *Registry) RecordExposures(layer string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.ExposuresTotal.WithLabelValues(layer).Add(float64(n))
}

// RecordTransition counts a transition into state.
func (r *Registry) RecordTransition(state string) {
	if r == nil {
		return
	}
	r.TransitionsTotal.WithLabelValues(state).Inc()
}

// RecordIntervention adds n agents affected by action.
func (r *Registry) RecordIntervention(action string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.InterventionsTotal.WithLabelValues(action).Add(float64(n))
}

// SeedStarted marks a seed as running.
func (r *Registry) SeedStarted() {
	if r == nil {
		return
	}
	r.SeedsInFlight.Inc()
}

// SeedFinished marks a running seed as done.
func (r *Registry) SeedFinished() {
	if r == nil {
		return
	}
	r.SeedsInFlight.Dec()
}

// RecordNetwork records the size of a freshly built network.
func (r *Registry) RecordNetwork(agents int, edgesByLayer map[string]int, build time.Duration) {
	if r == nil {
		return
	}
	r.NetworkAgents.Set(float64(agents))
	for layer, n := range edgesByLayer {
		r.NetworkEdges.WithLabelValues(layer).Set(float64(n))
	}
	r.NetworkBuildSeconds.Observe(build.Seconds())
}

// RecordEmit records one sink emit attempt.
func (r *Registry) RecordEmit(sink, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.ExportEmitsTotal.WithLabelValues(sink, status).Inc()
	r.ExportDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordRetry counts a sink retry.
func (r *Registry) RecordRetry(sink string) {
	if r == nil {
		return
	}
	r.ExportRetriesTotal.WithLabelValues(sink).Inc()
}

// SetQueueDepth reports the backlog of an asynchronous sink.
func (r *Registry) SetQueueDepth(sink string, depth int) {
	if r == nil {
		return
	}
	r.ExportQueueDepth.WithLabelValues(sink).Set(float64(depth))
}

// UpdateSystemMetrics refreshes uptime, goroutine and memory gauges.
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(r.startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
	r.MemorySysBytes.Set(float64(m.Sys))
}
