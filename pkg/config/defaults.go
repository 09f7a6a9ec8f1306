package config

import (
	"maps"

	"github.com/dd0wney/cluso-epinet/pkg/validation"
)

// Defaults applied by WithDefaults.
const (
	DefaultMonteCarloRuns         = 1
	DefaultTimeSteps              = 100
	DefaultPopulationScale        = 1.0
	DefaultHouseholdMeanSize      = 2.4
	DefaultHouseholdMaxSize       = 8
	DefaultNeighbourhoodContacts  = 4
	DefaultWorkGroupSize          = 10
	DefaultRandomContactsPerAgent = 1.0
	DefaultMaxAge                 = 100
	DefaultPAsymptomatic          = 0.3
	DefaultPDeath                 = 0.01
	DefaultPresymptomatic         = 1.0
	DefaultSymptomatic            = 1.0
	DefaultAsymptomatic           = 0.5
)

// DefaultDwell is used for any state whose default bracket has no distribution.
var DefaultDwell = map[string]DwellSpec{
	DwellExposed:        {Distribution: DistLogNormal, Mu: 1.6, Sigma: 0.4},
	DwellPresymptomatic: {Distribution: DistExponential, Mean: 2},
	DwellSymptomatic:    {Distribution: DistGamma, Shape: 4, Mean: 8},
	DwellAsymptomatic:   {Distribution: DistFixed, Mean: 7},
}

// WithDefaults returns a copy of p with zero values replaced by defaults.
// Pointer fields are filled only when unset, so an explicit 0 survives.
// Maps are copied so the result shares nothing mutable with p.
func (p Parameters) WithDefaults() *Parameters {
	out := p

	out.MonteCarloRuns = validation.DefaultOrInt(p.MonteCarloRuns, DefaultMonteCarloRuns)
	out.TimeSteps = validation.DefaultOrInt(p.TimeSteps, DefaultTimeSteps)
	out.TransmissionWorkers = validation.DefaultOrInt(p.TransmissionWorkers, 1)

	n := &out.Network
	n.PopulationScale = validation.DefaultOr(n.PopulationScale, DefaultPopulationScale)
	n.HouseholdMeanSize = validation.DefaultOr(n.HouseholdMeanSize, DefaultHouseholdMeanSize)
	n.HouseholdMaxSize = validation.DefaultOrInt(n.HouseholdMaxSize, DefaultHouseholdMaxSize)
	if n.NeighbourhoodContacts == nil {
		n.NeighbourhoodContacts = new(int)
		*n.NeighbourhoodContacts = DefaultNeighbourhoodContacts
	}
	n.WorkGroupSize = validation.DefaultOrInt(n.WorkGroupSize, DefaultWorkGroupSize)
	n.SchoolAge = validation.DefaultOr(n.SchoolAge, [2]int{5, 17})
	n.WorkAge = validation.DefaultOr(n.WorkAge, [2]int{18, 66})
	n.RandomContactsPerAgent = fill(n.RandomContactsPerAgent, DefaultRandomContactsPerAgent)
	n.MaxAge = validation.DefaultOrInt(n.MaxAge, DefaultMaxAge)

	out.Layers = make(map[string]LayerParams, len(p.Layers))
	for name, lp := range p.Layers {
		lp.Weight = validation.DefaultOr(lp.Weight, 1.0)
		out.Layers[name] = lp
	}

	inf := &out.Infectiousness
	inf.Presymptomatic = fill(inf.Presymptomatic, DefaultPresymptomatic)
	inf.Symptomatic = fill(inf.Symptomatic, DefaultSymptomatic)
	inf.Asymptomatic = fill(inf.Asymptomatic, DefaultAsymptomatic)

	def := p.Disease.Default
	def.PAsymptomatic = fill(def.PAsymptomatic, DefaultPAsymptomatic)
	def.PDeath = fill(def.PDeath, DefaultPDeath)
	dwell := maps.Clone(DefaultDwell)
	maps.Copy(dwell, p.Disease.Default.Dwell)
	def.Dwell = dwell
	out.Disease.Default = def
	out.Disease.Brackets = maps.Clone(p.Disease.Brackets)

	out.Interventions = append([]InterventionSpec(nil), p.Interventions...)
	return &out
}

// fill returns v, or a pointer to def when v is nil.
func fill(v *float64, def float64) *float64 {
	if v != nil {
		return v
	}
	return &def
}
