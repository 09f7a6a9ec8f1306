// Package snapshot defines the immutable per-timestep records produced by a
// run and consumed by sinks.
package snapshot

import (
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/network"
)

// AgentState is one agent's exported state at a timestep.
type AgentState struct {
	ID        int64         `json:"id"`
	Ward      string        `json:"ward"`
	Age       int           `json:"age"`
	State     disease.State `json:"state"`
	EnteredAt int           `json:"entered_at"`
	Isolated  bool          `json:"isolated,omitempty"`
}

// Snapshot is the full state of one seed at one timestep. Edges are shared
// with the network and must not be modified.
type Snapshot struct {
	Seed     int64          `json:"seed"`
	Timestep int            `json:"timestep"`
	Agents   []AgentState   `json:"agents"`
	Edges    []network.Edge `json:"edges,omitempty"`
	Counts   disease.Counts `json:"counts"`
}

// Capture records the current state of net.
func Capture(net *network.ContactNetwork, seed int64, t int) *Snapshot {
	s := &Snapshot{
		Seed:     seed,
		Timestep: t,
		Agents:   make([]AgentState, 0, net.Len()),
		Edges:    net.Edges(),
	}
	for _, a := range net.Agents() {
		s.Agents = append(s.Agents, AgentState{
			ID:        a.ID,
			Ward:      a.Ward,
			Age:       a.Age,
			State:     a.State(),
			EnteredAt: a.EnteredAt(),
			Isolated:  a.Isolated(),
		})
		s.Counts[a.State()]++
	}
	return s
}

// Record is what a sink receives per timestep. Snapshot is nil in
// high-performance mode.
type Record struct {
	Snapshot *Snapshot      `json:"snapshot,omitempty"`
	Counts   disease.Counts `json:"counts"`
}

// NewRecord wraps a snapshot, or counts alone when s is nil.
func NewRecord(s *Snapshot, counts disease.Counts) Record {
	if s != nil {
		counts = s.Counts
	}
	return Record{Snapshot: s, Counts: counts}
}
