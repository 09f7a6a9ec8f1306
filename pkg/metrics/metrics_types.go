package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "epinet"

// Registry holds all metrics for a simulation process.
type Registry struct {
	// Simulation Metrics
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
	TimestepsTotal     prometheus.Counter
	ExposuresTotal     *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	SeedsInFlight      prometheus.Gauge
	InterventionsTotal *prometheus.CounterVec

	// Network Metrics
	NetworkAgents       prometheus.Gauge
	NetworkEdges        *prometheus.GaugeVec
	NetworkBuildSeconds prometheus.Histogram

	// Export Metrics
	ExportEmitsTotal   *prometheus.CounterVec
	ExportRetriesTotal *prometheus.CounterVec
	ExportQueueDepth   *prometheus.GaugeVec
	ExportDuration     *prometheus.HistogramVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry  *prometheus.Registry
	startTime time.Time
}

// NewRegistry creates a new metrics registry with all metrics initialized.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry:  reg,
		startTime: time.Now(),
	}

	r.initSimulationMetrics()
	r.initNetworkMetrics()
	r.initExportMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
