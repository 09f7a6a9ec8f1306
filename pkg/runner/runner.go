// Package runner advances one contact network through a single seeded
// simulation. Each timestep runs transmission, commits exposures, expires
// dwell times, applies interventions and validates invariants before the
// resulting record is handed to a sink.
package runner

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/intervention"
	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/pubsub"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
	"github.com/dd0wney/cluso-epinet/pkg/transmission"
)

// Runner holds the immutable inputs shared by every seed. It is safe for
// concurrent use; all per-run state lives in Baseline.
type Runner struct {
	params   *config.Parameters
	prog     *disease.Progression
	schedule *intervention.Schedule
	metrics  *metrics.Registry
	logger   logging.Logger
	bus      *pubsub.PubSub
	runID    string
	backoff  time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records timesteps, transitions and exposures.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.logger = logging.OrNop(l) }
}

// WithEvents publishes a TimestepDone event per step on bus.
func WithEvents(bus *pubsub.PubSub, runID string) Option {
	return func(r *Runner) {
		r.bus = bus
		r.runID = runID
	}
}

// WithRetryBackoff sets the delay before a rejected record is emitted a
// second time.
func WithRetryBackoff(d time.Duration) Option {
	return func(r *Runner) { r.backoff = d }
}

// New resolves the progression model and intervention schedule from params.
// params must already carry defaults.
func New(params *config.Parameters, opts ...Option) (*Runner, error) {
	prog, err := disease.NewProgression(params)
	if err != nil {
		return nil, err
	}
	schedule, err := intervention.NewSchedule(params.Interventions)
	if err != nil {
		return nil, err
	}
	r := &Runner{
		params:   params,
		prog:     prog,
		schedule: schedule,
		logger:   logging.NopLogger{},
		backoff:  sink.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logging.Component("runner"))
	return r, nil
}

// Params returns the parameters the runner was built with.
func (r *Runner) Params() *config.Parameters { return r.params }

// Progression returns the shared progression model.
func (r *Runner) Progression() *disease.Progression { return r.prog }

// SimulationState is the recorded trajectory of one seed.
type SimulationState struct {
	Seed int64
	// Snapshots holds one entry per recorded timestep, or nothing in
	// high-performance mode.
	Snapshots []*snapshot.Snapshot
	// Counts holds one entry per recorded timestep starting at 0.
	Counts []disease.Counts
	// Steps is the last timestep simulated.
	Steps int
	// Halted is set when the run stopped before the horizon because no
	// agent was Exposed or Infectious.
	Halted bool
	// Incomplete is set when a synchronous sink rejected a record.
	Incomplete bool
}

// Final returns the counts of the last recorded timestep.
func (s *SimulationState) Final() disease.Counts {
	if len(s.Counts) == 0 {
		return disease.Counts{}
	}
	return s.Counts[len(s.Counts)-1]
}

// Baseline runs net from its current (seeded) state at timestep 0 to the
// horizon and forwards every timestep to out. net must be finalized and is
// mutated in place.
func (r *Runner) Baseline(ctx context.Context, net *network.ContactNetwork, seed int64, out sink.Sink) (*SimulationState, error) {
	if !net.Finalized() {
		return nil, simerr.Config("baseline").Seed(seed).Msg("network is not finalized")
	}
	if out == nil {
		out = sink.Discard{}
	}

	run := &seedRun{
		Runner: r,
		net:    net,
		seed:   seed,
		out:    out,
		logger: r.logger.With(logging.Seed(seed)),
		state:  &SimulationState{Seed: seed},
		ivs:    r.schedule.NewState(),
		prng:   network.NewRand(seed, network.StreamProgression),
		irng:   network.NewRand(seed, network.StreamIntervention),
	}
	run.engine = transmission.New(r.params, seed,
		transmission.WithInterventions(run.ivs),
		transmission.WithMetrics(r.metrics),
		transmission.WithLogger(run.logger),
	)

	timer := logging.StartTimer(run.logger, "seed run")
	err := run.loop(ctx)
	if err != nil {
		timer.EndError(err)
		return run.state, simerr.WithSeed(err, seed)
	}
	if err := run.retry(ctx, func() error { return sink.FinishSeed(ctx, out, seed) }); err != nil {
		run.exportFailed(simerr.Unset, err)
	}
	timer.End(logging.Int("steps", run.state.Steps), logging.Bool("halted", run.state.Halted))
	return run.state, nil
}

// seedRun is the mutable state of one Baseline call.
type seedRun struct {
	*Runner
	net    *network.ContactNetwork
	seed   int64
	out    sink.Sink
	logger logging.Logger
	state  *SimulationState
	engine *transmission.Engine
	ivs    *intervention.State
	prng   *rand.Rand
	irng   *rand.Rand
}

func (s *seedRun) loop(ctx context.Context) error {
	if err := s.schedule.Multipliers(0, s.ivs, s.net); err != nil {
		return err
	}
	if _, err := s.intervene(0); err != nil {
		return err
	}
	counts, err := s.validate(0)
	if err != nil {
		return err
	}
	if err := s.record(ctx, 0, counts); err != nil {
		return err
	}
	if s.params.StopsWhenExtinct() && counts.Active() == 0 {
		s.state.Halted = true
		return nil
	}

	for t := 1; t <= s.params.TimeSteps; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts, err := s.step(ctx, t)
		if err != nil {
			return err
		}
		s.state.Steps = t
		if err := s.record(ctx, t, counts); err != nil {
			return err
		}
		if s.params.StopsWhenExtinct() && counts.Active() == 0 {
			s.state.Halted = t < s.params.TimeSteps
			return nil
		}
	}
	return nil
}

// step advances the network from t-1 to t and returns the validated counts.
func (s *seedRun) step(ctx context.Context, t int) (disease.Counts, error) {
	if err := s.schedule.Multipliers(t, s.ivs, s.net); err != nil {
		return disease.Counts{}, err
	}
	exposed, err := s.engine.Step(ctx, s.net, t)
	if err != nil {
		return disease.Counts{}, err
	}

	for _, id := range exposed {
		a, ok := s.net.Agent(id)
		if !ok {
			return disease.Counts{}, simerr.Corruption("commit exposure").Timestep(t).Agent(id).Msg("unknown agent")
		}
		if err := a.Expose(t, s.prog.Model(a.Bracket), s.prng); err != nil {
			return disease.Counts{}, err
		}
		s.metrics.RecordTransition(disease.Exposed.String())
	}

	for _, a := range s.net.Agents() {
		moved, err := a.Advance(t, s.prog.Model(a.Bracket), s.prng)
		if err != nil {
			return disease.Counts{}, err
		}
		if moved {
			s.metrics.RecordTransition(a.State().String())
		}
	}

	res, err := s.intervene(t)
	if err != nil {
		return disease.Counts{}, err
	}

	counts, err := s.validate(t)
	if err != nil {
		return disease.Counts{}, err
	}
	s.metrics.RecordTimestep()
	if len(exposed) > 0 || res.Isolated > 0 {
		s.logger.Debug("timestep",
			logging.Timestep(t),
			logging.Int("exposed", len(exposed)),
			logging.Int("isolated", res.Isolated),
			logging.Int("active", counts.Active()))
	}
	return counts, nil
}

// intervene runs the isolation policies for t. Their effect on edges starts
// with the transmission phase of t+1.
func (s *seedRun) intervene(t int) (intervention.Result, error) {
	res, err := s.schedule.Apply(t, s.ivs, s.net, s.irng)
	if err != nil {
		return res, err
	}
	s.metrics.RecordIntervention("isolate", res.Isolated)
	s.metrics.RecordIntervention("release", res.Released)
	return res, nil
}

// validate checks every agent and that the compartments account for the
// whole population.
func (s *seedRun) validate(t int) (disease.Counts, error) {
	var counts disease.Counts
	for _, a := range s.net.Agents() {
		if err := a.Check(t); err != nil {
			return counts, err
		}
		counts[a.State()]++
	}
	if counts.Total() != s.net.Len() {
		return counts, simerr.Corruption("conservation").Timestep(t).
			Msg("compartments sum to %d, population is %d", counts.Total(), s.net.Len())
	}
	return counts, nil
}

func (s *seedRun) record(ctx context.Context, t int, counts disease.Counts) error {
	var snap *snapshot.Snapshot
	if !s.params.HighPerformance {
		snap = snapshot.Capture(s.net, s.seed, t)
		s.state.Snapshots = append(s.state.Snapshots, snap)
	}
	s.state.Counts = append(s.state.Counts, counts)

	rec := snapshot.NewRecord(snap, counts)
	if err := s.retry(ctx, func() error { return s.out.Emit(ctx, s.seed, t, rec) }); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.exportFailed(t, err)
	}

	s.bus.Publish(pubsub.TopicProgress, pubsub.Event{
		Kind:     pubsub.TimestepDone,
		RunID:    s.runID,
		Seed:     s.seed,
		Timestep: t,
		Total:    s.params.TimeSteps,
		Counts:   counts,
		At:       time.Now(),
	})
	return nil
}

// retry calls fn and, if it fails, once more after the backoff.
func (s *seedRun) retry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || ctx.Err() != nil {
		return err
	}
	s.metrics.RecordRetry(sink.NameOf(s.out))
	s.logger.Warn("export failed, retrying", logging.Duration("backoff", s.backoff), logging.Error(err))
	if s.backoff > 0 {
		timer := time.NewTimer(s.backoff)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return err
		case <-timer.C:
		}
	}
	return fn()
}

func (s *seedRun) exportFailed(t int, err error) {
	s.state.Incomplete = true
	err = simerr.WithSeed(err, s.seed)
	s.logger.Error("export failed, seed marked incomplete", logging.Timestep(t), logging.Error(err))
}
