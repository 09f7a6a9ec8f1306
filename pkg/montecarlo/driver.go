// Package montecarlo runs independent seeds of the simulation on a bounded
// worker pool and aggregates their trajectories.
//
// Seeds share only the read-only inputs. A configuration error fails its
// seed and the batch continues; a state corruption error is fatal and
// cancels every seed that has not finished.
package montecarlo

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-epinet/pkg/algorithms"
	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/network"
	"github.com/dd0wney/cluso-epinet/pkg/parallel"
	"github.com/dd0wney/cluso-epinet/pkg/pubsub"
	"github.com/dd0wney/cluso-epinet/pkg/runner"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
)

// Driver runs a batch of seeds.
type Driver struct {
	params  *config.Parameters
	hoods   config.NeighbourhoodData
	ages    config.AgeDistribution
	out     sink.Sink
	workers int
	runID   string
	metrics *metrics.Registry
	logger  logging.Logger
	bus     *pubsub.PubSub
	runner  *runner.Runner

	// simulateSeed is d.simulate outside tests.
	simulateSeed func(ctx context.Context, seed int64, logger logging.Logger) (*runner.SimulationState, error)
}

// Option configures a Driver.
type Option func(*Driver)

// WithWorkers bounds the number of seeds in flight. 0 means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Driver) { d.workers = n }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// WithMetrics records per-seed and per-timestep metrics.
func WithMetrics(m *metrics.Registry) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Driver) { d.logger = logging.OrNop(l) }
}

// WithEvents publishes progress events on bus.
func WithEvents(bus *pubsub.PubSub) Option {
	return func(d *Driver) { d.bus = bus }
}

// New validates the inputs and prepares a driver. params are defaulted
// here; the caller's value is not modified.
func New(params *config.Parameters, hoods config.NeighbourhoodData, ages config.AgeDistribution, out sink.Sink, opts ...Option) (*Driver, error) {
	if params == nil {
		return nil, simerr.Config("montecarlo").Msg("parameters are required")
	}
	p := params.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := config.ValidateTables(hoods, ages); err != nil {
		return nil, err
	}
	if out == nil {
		out = sink.Discard{}
	}

	d := &Driver{
		params:  p,
		hoods:   hoods,
		ages:    ages,
		out:     out,
		workers: p.Workers,
		logger:  logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers <= 0 {
		d.workers = runtime.GOMAXPROCS(0)
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}
	d.logger = d.logger.With(logging.RunID(d.runID))

	r, err := runner.New(p,
		runner.WithMetrics(d.metrics),
		runner.WithLogger(d.logger),
		runner.WithEvents(d.bus, d.runID),
	)
	if err != nil {
		return nil, err
	}
	d.runner = r
	d.simulateSeed = d.simulate
	return d, nil
}

// RunID returns the batch identifier.
func (d *Driver) RunID() string { return d.runID }

// Params returns the defaulted parameters.
func (d *Driver) Params() *config.Parameters { return d.params }

// Seeds returns the seeds the batch will run, in order.
func (d *Driver) Seeds() []int64 {
	seeds := make([]int64, d.params.MonteCarloRuns)
	for i := range seeds {
		seeds[i] = d.params.SeedOffset + int64(i)
	}
	return seeds
}

// Run executes every seed. The report is returned even when Run fails; the
// error is the first state corruption or a pool failure.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := parallel.NewWorkerPool(d.workers, parallel.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}

	d.logger.Info("batch started",
		logging.Int("seeds", d.params.MonteCarloRuns),
		logging.Int("workers", pool.Workers()),
		logging.Int("time_steps", d.params.TimeSteps))

	seeds := d.Seeds()
	results := make([]SeedResult, len(seeds))
	traj := make([][]disease.Counts, len(seeds))

	var (
		fatalOnce sync.Once
		fatal     error
	)
	for i, seed := range seeds {
		ok := pool.SubmitContext(ctx, func() {
			res, counts := d.runSeed(ctx, seed)
			results[i] = res
			traj[i] = counts
			if res.Status == StatusCorrupted {
				fatalOnce.Do(func() {
					fatal = res.Err
					cancel()
				})
			}
		})
		if !ok {
			results[i] = SeedResult{Seed: seed, Status: StatusCancelled, Err: ctx.Err()}
		}
	}
	pool.Wait()

	// Pending exports decide which seeds are incomplete.
	if err := sink.Flush(context.WithoutCancel(ctx), d.out); err != nil {
		d.logger.Warn("sink flush failed", logging.Error(err))
	}
	for i := range results {
		if results[i].Status == StatusCompleted && sink.Incomplete(d.out, results[i].Seed) {
			results[i].Incomplete = true
		}
	}

	report := &Report{
		RunID:    d.runID,
		Results:  results,
		Timeline: aggregate(results, traj, d.params.TimeSteps),
		Duration: time.Since(start),
	}
	d.bus.Publish(pubsub.TopicProgress, pubsub.Event{
		Kind:  pubsub.RunFinished,
		RunID: d.runID,
		Total: len(seeds),
		At:    time.Now(),
	})

	byStatus := report.StatusCounts()
	d.logger.Info("batch finished",
		logging.Int("completed", byStatus[StatusCompleted]),
		logging.Int("failed", byStatus[StatusFailed]),
		logging.Int("corrupted", byStatus[StatusCorrupted]),
		logging.Int("cancelled", byStatus[StatusCancelled]),
		logging.Duration("duration", report.Duration))

	return report, fatal
}

// runSeed builds, seeds and simulates one seed.
func (d *Driver) runSeed(ctx context.Context, seed int64) (SeedResult, []disease.Counts) {
	res := SeedResult{Seed: seed}
	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Err = err
		return res, nil
	}

	start := time.Now()
	logger := d.logger.With(logging.Seed(seed))
	d.metrics.SeedStarted()
	defer d.metrics.SeedFinished()
	d.publish(pubsub.SeedStarted, seed, "", nil)

	state, err := d.protect(ctx, seed, logger)
	res.Duration = time.Since(start)
	res.Status = classify(err)
	res.Err = err
	var counts []disease.Counts
	if state != nil {
		res.Steps = state.Steps
		res.Halted = state.Halted
		res.FinalCounts = state.Final()
		res.Incomplete = state.Incomplete
		counts = state.Counts
	}

	d.metrics.RecordRun(string(res.Status), res.Duration)
	d.publish(pubsub.SeedFinished, seed, res.Status, err)

	switch res.Status {
	case StatusCompleted:
		logger.Info("seed completed",
			logging.Int("steps", res.Steps),
			logging.Bool("halted", res.Halted),
			logging.Latency(res.Duration))
	case StatusCancelled:
		logger.Warn("seed cancelled", logging.Error(err))
	default:
		logger.Error("seed "+string(res.Status), logging.Error(err))
	}
	return res, counts
}

// protect runs one seed and reports a panic as state corruption, which
// stops the batch.
func (d *Driver) protect(ctx context.Context, seed int64, logger logging.Logger) (state *runner.SimulationState, err error) {
	defer func() {
		if r := recover(); r != nil {
			state = nil
			err = simerr.Corruption("simulate").Seed(seed).Msg("panic: %v", r)
		}
	}()
	return d.simulateSeed(ctx, seed, logger)
}

func (d *Driver) simulate(ctx context.Context, seed int64, logger logging.Logger) (*runner.SimulationState, error) {
	buildStart := time.Now()
	net, err := network.Build(seed, d.params, d.hoods, d.ages)
	if err != nil {
		return nil, err
	}
	buildTime := time.Since(buildStart)
	d.metrics.RecordNetwork(net.Len(), net.LayerCounts(), buildTime)
	if logger.GetLevel() <= logging.DebugLevel {
		sum := algorithms.Summarize(net)
		logger.Debug("network built",
			logging.Int("agents", sum.Agents),
			logging.Int("edges", sum.Edges),
			logging.Float64("mean_degree", sum.MeanDegree),
			logging.Int("components", sum.Components),
			logging.Float64("clustering", sum.Clustering),
			logging.Latency(buildTime))
	}

	if _, err := network.SeedInitial(net, seed, d.params.Initial, d.runner.Progression()); err != nil {
		return nil, err
	}
	return d.runner.Baseline(ctx, net, seed, d.out)
}

func (d *Driver) publish(kind pubsub.EventKind, seed int64, status Status, err error) {
	ev := pubsub.Event{
		Kind:   kind,
		RunID:  d.runID,
		Seed:   seed,
		Total:  d.params.TimeSteps,
		Status: string(status),
		At:     time.Now(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	d.bus.Publish(pubsub.TopicProgress, ev)
}

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case simerr.IsStateCorruption(err):
		return StatusCorrupted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCancelled
	default:
		return StatusFailed
	}
}
