package disease

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// maxDwell caps sampled durations so heavy tails cannot overflow int.
const maxDwell = 1 << 20

// Sampler draws a continuous duration in timesteps.
type Sampler interface {
	Sample(src rand.Source) float64
}

type fixedSampler float64

func (f fixedSampler) Sample(rand.Source) float64 { return float64(f) }

type exponentialSampler struct{ rate float64 }

func (e exponentialSampler) Sample(src rand.Source) float64 {
	return distuv.Exponential{Rate: e.rate, Src: src}.Rand()
}

type logNormalSampler struct{ mu, sigma float64 }

func (l logNormalSampler) Sample(src rand.Source) float64 {
	return distuv.LogNormal{Mu: l.mu, Sigma: l.sigma, Src: src}.Rand()
}

type gammaSampler struct{ alpha, beta float64 }

func (g gammaSampler) Sample(src rand.Source) float64 {
	return distuv.Gamma{Alpha: g.alpha, Beta: g.beta, Src: src}.Rand()
}

// NewSampler builds a Sampler from its configuration.
func NewSampler(spec config.DwellSpec) (Sampler, error) {
	switch spec.Distribution {
	case config.DistFixed:
		return fixedSampler(spec.Mean), nil
	case config.DistExponential:
		return exponentialSampler{rate: 1 / spec.Mean}, nil
	case config.DistLogNormal:
		return logNormalSampler{mu: spec.Mu, sigma: spec.Sigma}, nil
	case config.DistGamma:
		return gammaSampler{alpha: spec.Shape, beta: spec.Shape / spec.Mean}, nil
	default:
		return nil, simerr.Config("dwell sampler").Field(spec.Distribution).Msg("unsupported distribution")
	}
}

// BracketModel holds the resolved progression parameters of one age bracket.
type BracketModel struct {
	PAsymptomatic float64
	PDeath        float64
	dwell         [NumStates]Sampler
}

// Progression maps age brackets to their models. It is immutable and shared
// by all seeds.
type Progression struct {
	brackets map[string]*BracketModel
	fallback *BracketModel
}

// NewProgression resolves every configured bracket once.
func NewProgression(p *config.Parameters) (*Progression, error) {
	fallback, err := newBracketModel(p.Bracket(""))
	if err != nil {
		return nil, err
	}
	prog := &Progression{
		brackets: make(map[string]*BracketModel, len(p.Disease.Brackets)),
		fallback: fallback,
	}
	for label := range p.Disease.Brackets {
		m, err := newBracketModel(p.Bracket(label))
		if err != nil {
			return nil, err
		}
		prog.brackets[label] = m
	}
	return prog, nil
}

func newBracketModel(b config.ResolvedBracket) (*BracketModel, error) {
	m := &BracketModel{PAsymptomatic: b.PAsymptomatic, PDeath: b.PDeath}
	for _, s := range []State{Exposed, Presymptomatic, Symptomatic, Asymptomatic} {
		spec, ok := b.Dwell[s.dwellKey()]
		if !ok {
			return nil, simerr.Config("progression").Field("dwell." + s.dwellKey()).Msg("missing distribution")
		}
		sampler, err := NewSampler(spec)
		if err != nil {
			return nil, err
		}
		m.dwell[s] = sampler
	}
	return m, nil
}

// Model returns the model for a bracket label, falling back to the default.
func (p *Progression) Model(bracket string) *BracketModel {
	if m, ok := p.brackets[bracket]; ok {
		return m
	}
	return p.fallback
}

// sampleDwell returns max(1, ceil(x)) for a draw x.
func (m *BracketModel) sampleDwell(s State, src rand.Source) (int, error) {
	sampler := m.dwell[s]
	if sampler == nil {
		return 0, simerr.Corruption("sample dwell").Context(s.String()).Msg("no sampler for state")
	}
	x := sampler.Sample(src)
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, simerr.Corruption("sample dwell").Context(s.String()).Msg("non-finite duration %v", x)
	}
	d := math.Ceil(x)
	if d < 1 {
		return 1, nil
	}
	if d > maxDwell {
		return maxDwell, nil
	}
	return int(d), nil
}

// successor chooses the state entered when the dwell in s expires.
func (m *BracketModel) successor(s State, r *rand.Rand) State {
	switch s {
	case Exposed:
		if r.Float64() < m.PAsymptomatic {
			return Asymptomatic
		}
		return Presymptomatic
	case Presymptomatic:
		return Symptomatic
	case Symptomatic:
		if r.Float64() < m.PDeath {
			return Deceased
		}
		return Recovered
	case Asymptomatic:
		return Recovered
	default:
		return s
	}
}
