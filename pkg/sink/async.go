package sink

import (
	"context"
	"sync"
	"time"

	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// Defaults for Async.
const (
	DefaultQueueSize    = 1024
	DefaultRetryBackoff = 100 * time.Millisecond
)

type jobKind int

const (
	jobEmit jobKind = iota
	jobFinish
)

type job struct {
	kind jobKind
	ctx  context.Context
	seed int64
	t    int
	rec  snapshot.Record
}

// Async decouples the simulation from a slow sink. Records are queued and
// written by one goroutine in order. A failed write is retried once after
// the backoff; if it fails again the seed is marked incomplete and the run
// continues. A full queue blocks Emit until space frees up or ctx ends.
type Async struct {
	inner   Sink
	name    string
	backoff time.Duration
	logger  logging.Logger
	metrics *metrics.Registry

	queue    chan job
	mu       sync.RWMutex // Protects queue from concurrent close during send
	closed   bool
	inflight sync.WaitGroup
	done     chan struct{}
	once     sync.Once

	failMu     sync.Mutex
	incomplete map[int64]bool
	failures   int
}

// AsyncOption configures Async.
type AsyncOption func(*Async)

// WithQueueSize sets the queue capacity.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queue = make(chan job, n)
		}
	}
}

// WithRetryBackoff sets the delay before the single retry.
func WithRetryBackoff(d time.Duration) AsyncOption {
	return func(a *Async) { a.backoff = d }
}

// WithAsyncLogger sets the logger for export failures.
func WithAsyncLogger(l logging.Logger) AsyncOption {
	return func(a *Async) { a.logger = logging.OrNop(l) }
}

// WithAsyncMetrics records emits, retries and queue depth.
func WithAsyncMetrics(m *metrics.Registry) AsyncOption {
	return func(a *Async) { a.metrics = m }
}

// NewAsync starts the writer goroutine for inner.
func NewAsync(inner Sink, opts ...AsyncOption) *Async {
	a := &Async{
		inner:      inner,
		name:       NameOf(inner),
		backoff:    DefaultRetryBackoff,
		logger:     logging.NopLogger{},
		queue:      make(chan job, DefaultQueueSize),
		done:       make(chan struct{}),
		incomplete: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logging.Sink(a.name))
	go a.run()
	return a
}

func (a *Async) Name() string { return "async(" + a.name + ")" }

// Emit queues rec. It returns an error only when the sink is closed or ctx
// ends while the queue is full.
func (a *Async) Emit(ctx context.Context, seed int64, t int, rec snapshot.Record) error {
	return a.enqueue(ctx, job{kind: jobEmit, ctx: ctx, seed: seed, t: t, rec: rec})
}

// FinishSeed queues the end-of-seed marker behind the seed's records.
func (a *Async) FinishSeed(ctx context.Context, seed int64) error {
	return a.enqueue(ctx, job{kind: jobFinish, ctx: ctx, seed: seed, t: simerr.Unset})
}

func (a *Async) enqueue(ctx context.Context, j job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return simerr.Export("enqueue").Seed(j.seed).Context(a.name).Msg("sink closed")
	}

	a.inflight.Add(1)
	select {
	case a.queue <- j:
		a.metrics.SetQueueDepth(a.name, len(a.queue))
		return nil
	case <-ctx.Done():
		a.inflight.Done()
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.queue {
		a.process(j)
		a.metrics.SetQueueDepth(a.name, len(a.queue))
		a.inflight.Done()
	}
}

func (a *Async) process(j job) {
	ctx := context.WithoutCancel(j.ctx)
	attempt := func() error {
		start := time.Now()
		var err error
		if j.kind == jobFinish {
			err = FinishSeed(ctx, a.inner, j.seed)
		} else {
			err = a.inner.Emit(ctx, j.seed, j.t, j.rec)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordEmit(a.name, status, time.Since(start))
		return err
	}

	err := attempt()
	if err == nil {
		return
	}
	a.metrics.RecordRetry(a.name)
	a.logger.Warn("export failed, retrying",
		logging.Seed(j.seed), logging.Timestep(j.t), logging.Error(err))
	time.Sleep(a.backoff)

	if err = attempt(); err == nil {
		return
	}
	exportErr := simerr.Export("emit").Seed(j.seed).Timestep(j.t).Context(a.name).Wrap(err)
	a.logger.Error("export failed, seed marked incomplete", logging.Error(exportErr))

	a.failMu.Lock()
	a.incomplete[j.seed] = true
	a.failures++
	a.failMu.Unlock()
}

// Incomplete reports whether any record of seed was lost.
func (a *Async) Incomplete(seed int64) bool {
	a.failMu.Lock()
	defer a.failMu.Unlock()
	return a.incomplete[seed]
}

// Failures returns the number of records that were dropped after retry.
func (a *Async) Failures() int {
	a.failMu.Lock()
	defer a.failMu.Unlock()
	return a.failures
}

// Flush waits until everything queued so far has been written.
func (a *Async) Flush(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return Flush(ctx, a.inner)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and closes the wrapped sink.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
	return a.inner.Close()
}
