// Package transmission computes new exposures for one timestep.
//
// Each infectious agent draws from its own generator seeded with
// (seed, Mix(t, agent)) and consumes exactly one draw per eligible edge in
// incidence order. Results therefore do not depend on how the pass is split
// across goroutines.
package transmission

import (
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/intervention"
	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
)

// Engine evaluates transmission over a contact network. An Engine is bound
// to one seed and one intervention state, so it belongs to a single run.
type Engine struct {
	params        *config.Parameters
	seed          int64
	workers       int
	interventions *intervention.State
	metrics       *metrics.Registry
	logger        logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers splits the exposure pass over n goroutines.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = max(1, n) }
}

// WithInterventions makes the engine consult st for layer multipliers and isolation.
func WithInterventions(st *intervention.State) Option {
	return func(e *Engine) { e.interventions = st }
}

// WithMetrics records exposures per layer.
func WithMetrics(m *metrics.Registry) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// New returns an engine for one seed.
func New(params *config.Parameters, seed int64, opts ...Option) *Engine {
	e := &Engine{
		params:  params,
		seed:    seed,
		workers: max(1, params.TransmissionWorkers),
		logger:  logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of one transmission pass.
type Result struct {
	// Exposed lists newly exposed agents, ascending and without duplicates.
	Exposed []int64
	// ByLayer attributes each exposure to the layer of its first successful
	// contact in infector order.
	ByLayer map[string]int
}

type hit struct {
	target int64
	layer  string
}

// Step returns the agents newly exposed at t. It mutates nothing.
func (e *Engine) Step(ctx context.Context, net *network.ContactNetwork, t int) ([]int64, error) {
	res, err := e.StepDetailed(ctx, net, t)
	if err != nil {
		return nil, err
	}
	return res.Exposed, nil
}

// StepDetailed is Step with per-layer attribution.
func (e *Engine) StepDetailed(ctx context.Context, net *network.ContactNetwork, t int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var infectors []*disease.Agent
	for _, a := range net.Agents() {
		if a.State().IsInfectious() {
			infectors = append(infectors, a)
		}
	}

	hits := make([][]hit, len(infectors))
	if e.workers <= 1 || len(infectors) < 2*e.workers {
		for i, a := range infectors {
			h, err := e.infect(net, a, t)
			if err != nil {
				return nil, err
			}
			hits[i] = h
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		chunk := (len(infectors) + e.workers - 1) / e.workers
		for lo := 0; lo < len(infectors); lo += chunk {
			hi := min(lo+chunk, len(infectors))
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := gctx.Err(); err != nil {
						return err
					}
					h, err := e.infect(net, infectors[i], t)
					if err != nil {
						return err
					}
					hits[i] = h
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	res := e.merge(hits)
	if len(res.Exposed) > 0 {
		e.logger.Debug("transmission step",
			logging.Seed(e.seed),
			logging.Timestep(t),
			logging.Int("infectors", len(infectors)),
			logging.Count(len(res.Exposed)))
	}
	return res, nil
}

// merge collapses per-infector hits into a sorted set, in infector order.
func (e *Engine) merge(hits [][]hit) *Result {
	res := &Result{ByLayer: make(map[string]int)}
	seen := make(map[int64]bool)
	for _, hs := range hits {
		for _, h := range hs {
			if seen[h.target] {
				continue
			}
			seen[h.target] = true
			res.Exposed = append(res.Exposed, h.target)
			res.ByLayer[h.layer]++
		}
	}
	slices.Sort(res.Exposed)
	for layer, n := range res.ByLayer {
		e.metrics.RecordExposures(layer, n)
	}
	return res
}

// infect runs the Bernoulli trials for one infector.
func (e *Engine) infect(net *network.ContactNetwork, src *disease.Agent, t int) ([]hit, error) {
	scale, err := e.infectiousness(src.State())
	if err != nil {
		return nil, err
	}
	r := network.NewRand(e.seed, network.Mix(t, src.ID))

	var out []hit
	for _, inc := range net.Incident(src.ID) {
		dst, ok := net.Agent(inc.Neighbour)
		if !ok || dst.State() != disease.Susceptible {
			continue
		}
		edge := net.Edge(inc.Edge)
		factor := e.interventions.EdgeFactor(edge.Layer, src, dst)
		if factor == 0 {
			continue
		}
		p := e.params.Layer(edge.Layer).TransmissionProbability * edge.Weight * scale * factor
		if !(p >= 0 && p <= 1) {
			return nil, simerr.Corruption("transmission").Seed(e.seed).Timestep(t).Agent(src.ID).
				Field(edge.Layer).Msg("probability %g outside [0,1]", p)
		}
		if r.Float64() < p {
			out = append(out, hit{target: dst.ID, layer: edge.Layer})
		}
	}
	return out, nil
}

func (e *Engine) infectiousness(s disease.State) (float64, error) {
	pre, sym, asym := e.params.Infectiousness.Scales()
	switch s {
	case disease.Presymptomatic:
		return pre, nil
	case disease.Symptomatic:
		return sym, nil
	case disease.Asymptomatic:
		return asym, nil
	default:
		return 0, simerr.Corruption("transmission").Seed(e.seed).Context(s.String()).Msg("state is not infectious")
	}
}
