// Package config holds the immutable inputs of a simulation batch: the
// Parameters object and the static ward and age reference tables.
//
// Values are decoded once, defaulted, validated, and then shared read-only by
// every seed. Nothing in this package is mutated after Load returns.
package config

// Contact layer names understood by the network builder.
const (
	LayerHousehold     = "household"
	LayerNeighbourhood = "neighbourhood"
	LayerWork          = "work"
	LayerRandom        = "random"
)

// KnownLayers lists layers in their canonical order.
var KnownLayers = []string{LayerHousehold, LayerNeighbourhood, LayerWork, LayerRandom}

// Dwell keys: the non-terminal states that sample a duration on entry.
const (
	DwellExposed        = "exposed"
	DwellPresymptomatic = "presymptomatic"
	DwellSymptomatic    = "symptomatic"
	DwellAsymptomatic   = "asymptomatic"
)

// DwellKeys lists every state that needs a dwell distribution.
var DwellKeys = []string{DwellExposed, DwellPresymptomatic, DwellSymptomatic, DwellAsymptomatic}

// Distribution names accepted in DwellSpec.
const (
	DistFixed       = "fixed"
	DistExponential = "exponential"
	DistLogNormal   = "lognormal"
	DistGamma       = "gamma"
)

// Intervention kinds.
const (
	InterventionLayerScale     = "layer_scale"
	InterventionTestAndIsolate = "test_and_isolate"
)

// Parameters is the batch configuration. Treat it as read-only once loaded.
type Parameters struct {
	MonteCarloRuns      int   `yaml:"monte_carlo_runs" validate:"gte=1"`
	SeedOffset          int64 `yaml:"seed_offset" validate:"gte=0"`
	HighPerformance     bool  `yaml:"high_performance"`
	TimeSteps           int   `yaml:"time_steps" validate:"gte=1"`
	StopWhenExtinct     *bool `yaml:"stop_when_extinct"`
	Workers             int   `yaml:"workers" validate:"gte=0"`
	TransmissionWorkers int   `yaml:"transmission_workers" validate:"gte=0"`

	Initial        InitialSeeding         `yaml:"initial"`
	Network        NetworkParams          `yaml:"network"`
	Layers         map[string]LayerParams `yaml:"layers" validate:"dive"`
	Infectiousness Infectiousness         `yaml:"infectiousness"`
	Disease        DiseaseParams          `yaml:"disease"`
	Interventions  []InterventionSpec     `yaml:"interventions" validate:"dive"`
}

// InitialSeeding is the number of agents that start outside Susceptible.
type InitialSeeding struct {
	Exposed    int `yaml:"exposed" validate:"gte=0"`
	Infectious int `yaml:"infectious" validate:"gte=0"`
}

// NetworkParams shapes the generated contact network.
type NetworkParams struct {
	PopulationScale        float64  `yaml:"population_scale" validate:"gt=0"`
	HouseholdMeanSize      float64  `yaml:"household_mean_size" validate:"gte=1"`
	HouseholdMaxSize       int      `yaml:"household_max_size" validate:"gte=1"`
	NeighbourhoodContacts  *int     `yaml:"neighbourhood_contacts" validate:"omitempty,gte=0"`
	WorkGroupSize          int      `yaml:"work_group_size" validate:"gte=2"`
	SchoolAge              [2]int   `yaml:"school_age"`
	WorkAge                [2]int   `yaml:"work_age"`
	RandomContactsPerAgent *float64 `yaml:"random_contacts_per_agent" validate:"omitempty,gte=0"`
	MaxAge                 int      `yaml:"max_age" validate:"gte=1"`
}

// LayerParams configures one contact layer.
type LayerParams struct {
	TransmissionProbability float64 `yaml:"transmission_probability" validate:"gte=0,lte=1"`
	Weight                  float64 `yaml:"weight" validate:"gte=0,lte=1"`
}

// Infectiousness scales transmission by infectious sub-stage. Unset fields
// take their default; an explicit 0 makes the sub-stage non-transmitting.
type Infectiousness struct {
	Presymptomatic *float64 `yaml:"presymptomatic" validate:"omitempty,gte=0,lte=1"`
	Symptomatic    *float64 `yaml:"symptomatic" validate:"omitempty,gte=0,lte=1"`
	Asymptomatic   *float64 `yaml:"asymptomatic" validate:"omitempty,gte=0,lte=1"`
}

// Scales returns the presymptomatic, symptomatic and asymptomatic factors.
func (i Infectiousness) Scales() (pre, sym, asym float64) {
	return orDefault(i.Presymptomatic, DefaultPresymptomatic),
		orDefault(i.Symptomatic, DefaultSymptomatic),
		orDefault(i.Asymptomatic, DefaultAsymptomatic)
}

// DiseaseParams holds the age-conditioned progression parameters.
// Brackets override Default field by field.
type DiseaseParams struct {
	Default  BracketParams            `yaml:"default"`
	Brackets map[string]BracketParams `yaml:"brackets"`
}

// BracketParams is a possibly partial set of progression parameters.
type BracketParams struct {
	PAsymptomatic *float64             `yaml:"p_asymptomatic"`
	PDeath        *float64             `yaml:"p_death"`
	Dwell         map[string]DwellSpec `yaml:"dwell"`
}

// DwellSpec describes a continuous dwell distribution in timesteps.
//
//	fixed:       Mean
//	exponential: Mean (rate 1/Mean)
//	lognormal:   Mu, Sigma of the underlying normal
//	gamma:       Shape and Mean (rate Shape/Mean)
type DwellSpec struct {
	Distribution string  `yaml:"distribution"`
	Mean         float64 `yaml:"mean"`
	Mu           float64 `yaml:"mu"`
	Sigma        float64 `yaml:"sigma"`
	Shape        float64 `yaml:"shape"`
}

// InterventionSpec schedules one policy over [Start, End). End 0 means open-ended.
type InterventionSpec struct {
	Kind         string  `yaml:"kind" validate:"required,oneof=layer_scale test_and_isolate"`
	Layer        string  `yaml:"layer"`
	Factor       float64 `yaml:"factor" validate:"gte=0,lte=1"`
	Probability  float64 `yaml:"probability" validate:"gte=0,lte=1"`
	Start        int     `yaml:"start" validate:"gte=0"`
	End          int     `yaml:"end" validate:"gte=0"`
	ReleaseAfter int     `yaml:"release_after" validate:"gte=0"`
}

// ResolvedBracket is a fully specified bracket after merging with Default.
type ResolvedBracket struct {
	PAsymptomatic float64
	PDeath        float64
	Dwell         map[string]DwellSpec
}

// NeighbourhoodDegree is the number of neighbourhood draws per agent.
func (n NetworkParams) NeighbourhoodDegree() int {
	if n.NeighbourhoodContacts == nil {
		return DefaultNeighbourhoodContacts
	}
	return *n.NeighbourhoodContacts
}

// RandomContactRate is the mean number of random edges per agent.
func (n NetworkParams) RandomContactRate() float64 {
	return orDefault(n.RandomContactsPerAgent, DefaultRandomContactsPerAgent)
}

func orDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// StopsWhenExtinct reports whether runs halt once no agent is Exposed or Infectious.
func (p *Parameters) StopsWhenExtinct() bool {
	return p.StopWhenExtinct == nil || *p.StopWhenExtinct
}

// Layer returns the parameters for a layer; unknown layers transmit nothing.
func (p *Parameters) Layer(name string) LayerParams {
	lp, ok := p.Layers[name]
	if !ok {
		return LayerParams{Weight: 1}
	}
	return lp
}

// Bracket resolves the progression parameters for an age bracket label.
func (p *Parameters) Bracket(label string) ResolvedBracket {
	out := ResolvedBracket{Dwell: make(map[string]DwellSpec, len(DwellKeys))}
	apply := func(b BracketParams) {
		if b.PAsymptomatic != nil {
			out.PAsymptomatic = *b.PAsymptomatic
		}
		if b.PDeath != nil {
			out.PDeath = *b.PDeath
		}
		for k, v := range b.Dwell {
			out.Dwell[k] = v
		}
	}
	apply(p.Disease.Default)
	if b, ok := p.Disease.Brackets[label]; ok {
		apply(b)
	}
	return out
}
