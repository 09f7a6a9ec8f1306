package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry() returned nil")
	}

	if r.RunsTotal == nil {
		t.Error("RunsTotal not initialized")
	}
	if r.ExposuresTotal == nil {
		t.Error("ExposuresTotal not initialized")
	}
	if r.NetworkEdges == nil {
		t.Error("NetworkEdges not initialized")
	}
	if r.ExportEmitsTotal == nil {
		t.Error("ExportEmitsTotal not initialized")
	}
	if r.registry == nil {
		t.Error("Prometheus registry not initialized")
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	r.RecordRun("completed", time.Second)
	r.RecordTimestep()
	r.RecordExposures("household", 3)
	r.RecordTransition("Recovered")
	r.RecordIntervention("isolate", 1)
	r.SeedStarted()
	r.SeedFinished()
	r.RecordNetwork(10, map[string]int{"work": 4}, time.Millisecond)
	r.RecordEmit("csv", "ok", time.Millisecond)
	r.RecordRetry("csv")
	r.SetQueueDepth("csv", 2)
	r.UpdateSystemMetrics()
}

func TestRecordRun(t *testing.T) {
	r := NewRegistry()

	r.RecordRun("completed", 100*time.Millisecond)
	r.RecordRun("completed", 200*time.Millisecond)
	r.RecordRun("failed", 5*time.Millisecond)

	counter, err := r.RunsTotal.GetMetricWithLabelValues("completed")
	if err != nil {
		t.Fatalf("Failed to get metric: %v", err)
	}

	var metric dto.Metric
	if err := counter.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2 {
		t.Errorf("Counter value = %v, want 2", metric.Counter.GetValue())
	}

	if got := testutil.CollectAndCount(r.RunDuration); got != 1 {
		t.Errorf("RunDuration series = %d, want 1", got)
	}
}

func TestRecordExposures(t *testing.T) {
	r := NewRegistry()

	r.RecordExposures("household", 3)
	r.RecordExposures("household", 2)
	r.RecordExposures("work", 0)

	if got := testutil.ToFloat64(r.ExposuresTotal.WithLabelValues("household")); got != 5 {
		t.Errorf("household exposures = %v, want 5", got)
	}
	if got := testutil.CollectAndCount(r.ExposuresTotal); got != 1 {
		t.Errorf("zero additions should not create series, got %d", got)
	}
}

func TestSeedsInFlight(t *testing.T) {
	r := NewRegistry()

	r.SeedStarted()
	r.SeedStarted()
	r.SeedFinished()

	if got := testutil.ToFloat64(r.SeedsInFlight); got != 1 {
		t.Errorf("SeedsInFlight = %v, want 1", got)
	}
}

func TestRecordNetwork(t *testing.T) {
	r := NewRegistry()
	r.RecordNetwork(250, map[string]int{"household": 300, "random": 120}, 20*time.Millisecond)

	expected := `
# HELP epinet_network_edges Edges per layer in the most recently built network
# TYPE epinet_network_edges gauge
epinet_network_edges{layer="household"} 300
epinet_network_edges{layer="random"} 120
`
	if err := testutil.CollectAndCompare(r.NetworkEdges, strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
	if got := testutil.ToFloat64(r.NetworkAgents); got != 250 {
		t.Errorf("NetworkAgents = %v, want 250", got)
	}
}

func TestExportMetrics(t *testing.T) {
	r := NewRegistry()

	r.RecordEmit("sqlite", "ok", time.Millisecond)
	r.RecordEmit("sqlite", "error", time.Millisecond)
	r.RecordRetry("sqlite")
	r.SetQueueDepth("sqlite", 7)

	if got := testutil.ToFloat64(r.ExportEmitsTotal.WithLabelValues("sqlite", "error")); got != 1 {
		t.Errorf("error emits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ExportRetriesTotal.WithLabelValues("sqlite")); got != 1 {
		t.Errorf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.ExportQueueDepth.WithLabelValues("sqlite")); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
}

func TestSystemMetrics(t *testing.T) {
	r := NewRegistry()
	r.UpdateSystemMetrics()

	if got := testutil.ToFloat64(r.GoRoutines); got < 1 {
		t.Errorf("GoRoutines = %v, want >= 1", got)
	}
	if got := testutil.ToFloat64(r.MemorySysBytes); got <= 0 {
		t.Errorf("MemorySysBytes = %v, want > 0", got)
	}
}

func TestGetPrometheusRegistry(t *testing.T) {
	r := NewRegistry()
	r.RecordTimestep()

	families, err := r.GetPrometheusRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	found := false
	for _, mf := range families {
		if mf.GetName() == "epinet_timesteps_total" {
			found = true
		}
		if !strings.HasPrefix(mf.GetName(), Namespace+"_") {
			t.Errorf("metric %s lacks namespace prefix", mf.GetName())
		}
	}
	if !found {
		t.Error("epinet_timesteps_total not gathered")
	}
}
