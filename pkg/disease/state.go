// Package disease implements the per-agent disease-state machine.
//
// The state set is closed: Susceptible → Exposed → {Presymptomatic →
// Symptomatic | Asymptomatic} → Recovered, with Deceased reachable from
// Symptomatic. Every non-terminal state after Susceptible samples its dwell
// time and successor on entry, so progression needs no further randomness
// until the dwell expires.
package disease

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-epinet/pkg/config"
)

// State is a disease compartment.
type State uint8

const (
	Susceptible State = iota
	Exposed
	Presymptomatic
	Symptomatic
	Asymptomatic
	Recovered
	Deceased

	// NumStates is the number of compartments.
	NumStates
)

var stateNames = [NumStates]string{
	Susceptible:    "Susceptible",
	Exposed:        "Exposed",
	Presymptomatic: "Presymptomatic",
	Symptomatic:    "Symptomatic",
	Asymptomatic:   "Asymptomatic",
	Recovered:      "Recovered",
	Deceased:       "Deceased",
}

// AllStates lists states in enum order.
var AllStates = []State{Susceptible, Exposed, Presymptomatic, Symptomatic, Asymptomatic, Recovered, Deceased}

// String returns the export label for the state.
func (s State) String() string {
	if s < NumStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ParseState is the inverse of String (case-insensitive).
func ParseState(label string) (State, error) {
	for i, name := range stateNames {
		if strings.EqualFold(name, label) {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown disease state %q", label)
}

// Valid reports whether s is a member of the closed state set.
func (s State) Valid() bool { return s < NumStates }

// IsInfectious reports whether agents in s can transmit.
func (s State) IsInfectious() bool {
	return s == Presymptomatic || s == Symptomatic || s == Asymptomatic
}

// IsTerminal reports whether s is absorbing.
func (s State) IsTerminal() bool { return s == Recovered || s == Deceased }

// IsActive reports whether s is Exposed or Infectious.
func (s State) IsActive() bool { return s == Exposed || s.IsInfectious() }

// dwellKey maps a timed state to its configuration key.
func (s State) dwellKey() string {
	switch s {
	case Exposed:
		return config.DwellExposed
	case Presymptomatic:
		return config.DwellPresymptomatic
	case Symptomatic:
		return config.DwellSymptomatic
	case Asymptomatic:
		return config.DwellAsymptomatic
	default:
		return ""
	}
}

// MarshalText encodes the state label.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state label.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Counts holds the number of agents per compartment.
type Counts [NumStates]int

// Total returns the number of agents counted.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Active returns the number of Exposed and Infectious agents.
func (c Counts) Active() int {
	return c[Exposed] + c[Presymptomatic] + c[Symptomatic] + c[Asymptomatic]
}

// Infectious returns the number of agents in an infectious sub-stage.
func (c Counts) Infectious() int {
	return c[Presymptomatic] + c[Symptomatic] + c[Asymptomatic]
}

// MarshalJSON encodes counts as {"Susceptible": n, ...}.
func (c Counts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, NumStates)
	for i, v := range c {
		m[State(i).String()] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (c *Counts) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	var out Counts
	for label, v := range m {
		s, err := ParseState(label)
		if err != nil {
			return err
		}
		out[s] = v
	}
	*c = out
	return nil
}
