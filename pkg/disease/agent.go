package disease

import (
	"math/rand/v2"

	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// Transition records one state change.
type Transition struct {
	From State `json:"from"`
	To   State `json:"to"`
	At   int   `json:"at"`
}

// Agent is a simulated individual. Identity fields are fixed at construction;
// disease fields change only through Seed, Expose and Advance.
type Agent struct {
	ID      int64
	Ward    string
	Age     int
	Bracket string

	state      State
	enteredAt  int
	dwell      int
	next       State
	isolated   bool
	isolatedAt int
	history    []Transition
}

// NewAgent returns a Susceptible agent.
func NewAgent(id int64, ward string, age int, bracket string) *Agent {
	return &Agent{ID: id, Ward: ward, Age: age, Bracket: bracket, isolatedAt: -1}
}

// State returns the current compartment.
func (a *Agent) State() State { return a.state }

// EnteredAt returns the timestep at which the current state was entered.
func (a *Agent) EnteredAt() int { return a.enteredAt }

// Dwell returns the sampled duration of the current state (0 for untimed states).
func (a *Agent) Dwell() int { return a.dwell }

// Next returns the state entered when the dwell expires.
func (a *Agent) Next() State { return a.next }

// Isolated reports whether an intervention has removed the agent from
// non-household layers.
func (a *Agent) Isolated() bool { return a.isolated }

// IsolatedAt returns the isolation timestep, or -1.
func (a *Agent) IsolatedAt() int { return a.isolatedAt }

// History returns a copy of the recorded transitions.
func (a *Agent) History() []Transition {
	return append([]Transition(nil), a.history...)
}

// Reset returns the agent to Susceptible with no history.
func (a *Agent) Reset() {
	a.state = Susceptible
	a.enteredAt = 0
	a.dwell = 0
	a.next = Susceptible
	a.isolated = false
	a.isolatedAt = -1
	a.history = a.history[:0]
}

// Seed places a Susceptible agent into an initial Exposed or infectious state at t.
func (a *Agent) Seed(to State, t int, m *BracketModel, r *rand.Rand) error {
	if a.state != Susceptible || len(a.history) != 0 {
		return simerr.Corruption("seed").Agent(a.ID).Timestep(t).Msg("agent already %s", a.state)
	}
	if to != Exposed && !to.IsInfectious() {
		return simerr.Config("seed").Agent(a.ID).Msg("cannot seed into %s", to)
	}
	return a.enter(to, t, m, r)
}

// Expose commits the externally driven Susceptible → Exposed transition.
func (a *Agent) Expose(t int, m *BracketModel, r *rand.Rand) error {
	if a.state != Susceptible {
		return simerr.Corruption("expose").Agent(a.ID).Timestep(t).Msg("agent is %s, not Susceptible", a.state)
	}
	return a.enter(Exposed, t, m, r)
}

// Advance applies the automatic transition if the dwell has expired at t.
// A second call within the same timestep never transitions again.
func (a *Agent) Advance(t int, m *BracketModel, r *rand.Rand) (bool, error) {
	if a.state == Susceptible || a.state.IsTerminal() {
		return false, nil
	}
	if t < a.enteredAt {
		return false, simerr.Corruption("advance").Agent(a.ID).Timestep(t).
			Msg("time runs backwards: entered %s at %d", a.state, a.enteredAt)
	}
	if t == a.enteredAt || t < a.enteredAt+a.dwell {
		return false, nil
	}
	if err := a.enter(a.next, t, m, r); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Agent) enter(to State, t int, m *BracketModel, r *rand.Rand) error {
	if !to.Valid() {
		return simerr.Corruption("transition").Agent(a.ID).Timestep(t).Msg("invalid target state %d", uint8(to))
	}
	if t < 0 {
		return simerr.Corruption("transition").Agent(a.ID).Timestep(t).Msg("negative timestep")
	}

	a.history = append(a.history, Transition{From: a.state, To: to, At: t})
	a.state = to
	a.enteredAt = t
	a.dwell = 0
	a.next = to

	if to.IsTerminal() {
		return nil
	}
	d, err := m.sampleDwell(to, r)
	if err != nil {
		return err
	}
	a.dwell = d
	a.next = m.successor(to, r)
	return nil
}

// Isolate removes the agent from non-household layers from t on.
func (a *Agent) Isolate(t int) {
	if !a.isolated {
		a.isolated = true
		a.isolatedAt = t
	}
}

// Release ends isolation.
func (a *Agent) Release() {
	a.isolated = false
	a.isolatedAt = -1
}

// Check verifies the agent's invariants at timestep t.
func (a *Agent) Check(t int) error {
	switch {
	case !a.state.Valid():
		return simerr.Corruption("check").Agent(a.ID).Timestep(t).Msg("invalid state %d", uint8(a.state))
	case a.enteredAt < 0 || a.enteredAt > t:
		return simerr.Corruption("check").Agent(a.ID).Timestep(t).Msg("entry time %d outside [0, %d]", a.enteredAt, t)
	case a.state.IsActive() && a.dwell < 1:
		return simerr.Corruption("check").Agent(a.ID).Timestep(t).Msg("%s with dwell %d", a.state, a.dwell)
	}
	if n := len(a.history); n > 0 {
		last := a.history[n-1]
		if last.To != a.state || last.At != a.enteredAt {
			return simerr.Corruption("check").Agent(a.ID).Timestep(t).Msg("history ends in %s@%d but agent is %s@%d", last.To, last.At, a.state, a.enteredAt)
		}
	}
	return nil
}
