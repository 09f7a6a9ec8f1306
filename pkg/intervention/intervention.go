// Package intervention applies scheduled policies to a running simulation.
//
// A Schedule is built once from configuration and shared by all seeds. Each
// run gets its own State holding layer multipliers; isolation is recorded on
// the agents themselves. Stored network edges are never modified.
package intervention

import (
	"fmt"
	"math/rand/v2"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// Window is the half-open interval [Start, End). End 0 means open-ended.
type Window struct {
	Start, End int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t int) bool {
	return t >= w.Start && (w.End == 0 || t < w.End)
}

// Result summarises what one Apply call changed.
type Result struct {
	Isolated int
	Released int
}

// Policy is one scheduled intervention.
type Policy interface {
	Name() string
	Window() Window
	Apply(t int, st *State, net *network.ContactNetwork, r *rand.Rand) (Result, error)
}

// LayerScale multiplies a layer's transmission probability while active.
// Factor 0 removes the layer's edges from transmission.
type LayerScale struct {
	Layer  string
	Factor float64
	When   Window
}

func (p *LayerScale) Name() string   { return config.InterventionLayerScale + ":" + p.Layer }
func (p *LayerScale) Window() Window { return p.When }

// Apply changes nothing; the factor is folded in by Schedule.Multipliers.
func (p *LayerScale) Apply(int, *State, *network.ContactNetwork, *rand.Rand) (Result, error) {
	return Result{}, nil
}

func (p *LayerScale) scale(t int, st *State) {
	if p.When.Contains(t) {
		st.multipliers[p.Layer] *= p.Factor
	}
}

// scaler is implemented by policies that adjust layer multipliers.
type scaler interface {
	scale(t int, st *State)
}

// TestAndIsolate detects Symptomatic agents with Probability per timestep and
// isolates them. With ReleaseAfter > 0, agents isolated at least that many
// steps ago who are no longer infectious are released, also after the window.
type TestAndIsolate struct {
	Probability  float64
	ReleaseAfter int
	When         Window
}

func (p *TestAndIsolate) Name() string   { return config.InterventionTestAndIsolate }
func (p *TestAndIsolate) Window() Window { return p.When }

func (p *TestAndIsolate) Apply(t int, st *State, net *network.ContactNetwork, r *rand.Rand) (Result, error) {
	var res Result
	active := p.When.Contains(t)
	for _, a := range net.Agents() {
		switch {
		case active && a.State() == disease.Symptomatic && !a.Isolated():
			if r.Float64() < p.Probability {
				a.Isolate(t)
				st.releaseAfter[a.ID] = p.ReleaseAfter
				res.Isolated++
			}
		case a.Isolated() && st.releaseAfter[a.ID] > 0 && !a.State().IsInfectious():
			if t-a.IsolatedAt() >= st.releaseAfter[a.ID] {
				a.Release()
				delete(st.releaseAfter, a.ID)
				res.Released++
			}
		}
	}
	return res, nil
}

// Schedule is the immutable list of configured policies.
type Schedule struct {
	policies []Policy
}

// NewSchedule builds policies from configuration.
func NewSchedule(specs []config.InterventionSpec) (*Schedule, error) {
	s := &Schedule{}
	for i, spec := range specs {
		w := Window{Start: spec.Start, End: spec.End}
		if w.End != 0 && w.End <= w.Start {
			return nil, simerr.Config("intervention schedule").Field(fmt.Sprintf("interventions[%d]", i)).
				Msg("empty window [%d, %d)", w.Start, w.End)
		}
		switch spec.Kind {
		case config.InterventionLayerScale:
			if !(spec.Factor >= 0 && spec.Factor <= 1) {
				return nil, simerr.Config("intervention schedule").Field(fmt.Sprintf("interventions[%d].factor", i)).
					Msg("factor %g outside [0,1]", spec.Factor)
			}
			s.policies = append(s.policies, &LayerScale{Layer: spec.Layer, Factor: spec.Factor, When: w})
		case config.InterventionTestAndIsolate:
			s.policies = append(s.policies, &TestAndIsolate{Probability: spec.Probability, ReleaseAfter: spec.ReleaseAfter, When: w})
		default:
			return nil, simerr.Config("intervention schedule").Field(fmt.Sprintf("interventions[%d].kind", i)).
				Msg("unknown kind %q", spec.Kind)
		}
	}
	return s, nil
}

// Len returns the number of policies.
func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.policies)
}

// Policies returns the configured policies in order.
func (s *Schedule) Policies() []Policy { return s.policies }

// NewState returns a fresh per-run state with every multiplier at 1.
func (s *Schedule) NewState() *State {
	return &State{
		multipliers:  make(map[string]float64),
		releaseAfter: make(map[int64]int),
	}
}

// Multipliers sets the layer multipliers in effect for transmission at t.
// It must run before the transmission step of t.
func (s *Schedule) Multipliers(t int, st *State, net *network.ContactNetwork) error {
	clear(st.multipliers)
	for _, layer := range config.KnownLayers {
		st.multipliers[layer] = 1
	}
	for layer := range net.LayerCounts() {
		st.multipliers[layer] = 1
	}
	if s != nil {
		for _, p := range s.policies {
			if sc, ok := p.(scaler); ok {
				sc.scale(t, st)
			}
		}
	}
	for layer, m := range st.multipliers {
		if !(m >= 0 && m <= 1) {
			return simerr.Corruption("apply interventions").Timestep(t).Field(layer).
				Msg("layer multiplier %g outside [0,1]", m)
		}
	}
	return nil
}

// Apply runs every policy in order after the progression phase of t.
// Isolation decided here gates edges from t+1 on.
func (s *Schedule) Apply(t int, st *State, net *network.ContactNetwork, r *rand.Rand) (Result, error) {
	var total Result
	if s == nil {
		return total, nil
	}
	for _, p := range s.policies {
		res, err := p.Apply(t, st, net, r)
		if err != nil {
			return total, fmt.Errorf("%s: %w", p.Name(), err)
		}
		total.Isolated += res.Isolated
		total.Released += res.Released
	}
	return total, nil
}

// State holds the per-run modifiers consulted by the transmission engine.
type State struct {
	multipliers  map[string]float64
	releaseAfter map[int64]int
}

// LayerMultiplier returns the current multiplier for layer (1 when unset).
// It is safe on a nil State.
func (st *State) LayerMultiplier(layer string) float64 {
	if st == nil {
		return 1
	}
	if m, ok := st.multipliers[layer]; ok {
		return m
	}
	return 1
}

// EdgeFactor combines the layer multiplier with isolation: an isolated
// endpoint keeps only household contacts.
func (st *State) EdgeFactor(layer string, a, b *disease.Agent) float64 {
	if layer != config.LayerHousehold && (a.Isolated() || b.Isolated()) {
		return 0
	}
	return st.LayerMultiplier(layer)
}
