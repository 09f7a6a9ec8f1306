package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/health"
	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/montecarlo"
	"github.com/dd0wney/cluso-epinet/pkg/pubsub"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
	"github.com/dd0wney/cluso-epinet/pkg/tui"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Monte Carlo batch",
		Long: `Build one network per seed, seed the initial infections and simulate
every timestep, exporting each snapshot to the selected sinks.

Credentials for PostgreSQL and S3 can be given in the environment or a .env
file: EPINET_PG_DSN, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, AWS_REGION.`,
		RunE: runBatch,
	}
	addInputFlags(cmd)
	cmd.Flags().String("out", "", "Output directory for graphml, csv and log formats")
	cmd.Flags().StringSlice("format", []string{formatCSV}, "Directory formats: graphml, csv, log")
	cmd.Flags().String("sqlite", "", "SQLite database file")
	cmd.Flags().String("postgres", os.Getenv("EPINET_PG_DSN"), "PostgreSQL DSN")
	cmd.Flags().String("s3-bucket", "", "S3 bucket for per-seed results")
	cmd.Flags().String("s3-prefix", "", "S3 key prefix (default: run id)")
	cmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint URL")
	cmd.Flags().String("s3-region", os.Getenv("AWS_REGION"), "S3 region")
	cmd.Flags().Bool("s3-path-style", false, "Use path-style S3 addressing")
	cmd.Flags().String("nng-addr", "", "Publish live counts on this NNG address")
	cmd.Flags().Int("workers", 0, "Seeds in flight (0 = parameters file, then GOMAXPROCS)")
	cmd.Flags().Int("queue", sink.DefaultQueueSize, "Per-sink export queue size")
	cmd.Flags().Bool("sync-log", false, "fsync the snapshot log on every record")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool("tui", false, "Show a live progress dashboard")
	cmd.Flags().String("log-file", "", "Write logs to this file instead of stderr")
	return cmd
}

func runBatch(cmd *cobra.Command, _ []string) error {
	useTUI, _ := cmd.Flags().GetBool("tui")
	logFile, _ := cmd.Flags().GetString("log-file")
	if useTUI && logFile == "" {
		logFile = os.DevNull
	}
	logger, closer, err := newLogger(cmd, logFile)
	if err != nil {
		return err
	}
	defer closer.Close()

	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	reg := metrics.NewRegistry()
	runID := uuid.NewString()
	logger = logger.With(logging.RunID(runID))

	opts := sinkOptionsFromFlags(cmd)
	out, err := buildSinks(ctx, opts, runID, logger, reg)
	if err != nil {
		return err
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	var bus *pubsub.PubSub
	if useTUI || metricsAddr != "" {
		bus = pubsub.NewPubSub(4096)
		defer bus.Shutdown()
	}
	if metricsAddr != "" {
		tracker, err := trackProgress(ctx, bus, in.params.MonteCarloRuns)
		if err != nil {
			_ = out.Close()
			return err
		}
		hc := health.NewHealthChecker()
		hc.RegisterCheck("progress", health.ProgressCheck(tracker.progress))
		hc.RegisterCheck("export", health.ExportCheck(func() int { return exportFailures(out) }))
		hc.RegisterLivenessCheck("memory", health.MemoryCheck())
		stop := serveMetrics(ctx, metricsAddr, reg, hc, logger)
		defer stop()
	}

	workers, _ := cmd.Flags().GetInt("workers")
	driverOpts := []montecarlo.Option{
		montecarlo.WithRunID(runID),
		montecarlo.WithMetrics(reg),
		montecarlo.WithLogger(logger),
		montecarlo.WithEvents(bus),
	}
	if workers > 0 {
		driverOpts = append(driverOpts, montecarlo.WithWorkers(workers))
	}
	driver, err := montecarlo.New(in.params, in.hoods, in.ages, out, driverOpts...)
	if err != nil {
		_ = out.Close()
		return err
	}

	var (
		report *montecarlo.Report
		runErr error
	)
	if useTUI {
		report, runErr = runWithTUI(ctx, cancel, driver, bus)
	} else {
		report, runErr = driver.Run(ctx)
	}

	if err := out.Close(); err != nil {
		logger.Error("closing sinks", logging.Error(err))
	}
	if report != nil {
		jsonOut, _ := cmd.Flags().GetBool("json")
		if err := printReport(cmd.OutOrStdout(), report, jsonOut); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if report != nil && report.StatusCounts()[montecarlo.StatusCompleted] == 0 {
		return errors.New("no seed completed")
	}
	return nil
}

func sinkOptionsFromFlags(cmd *cobra.Command) sinkOptions {
	f := cmd.Flags()
	var o sinkOptions
	o.outDir, _ = f.GetString("out")
	o.formats, _ = f.GetStringSlice("format")
	o.sqlitePath, _ = f.GetString("sqlite")
	o.postgresDSN, _ = f.GetString("postgres")
	o.s3.Bucket, _ = f.GetString("s3-bucket")
	o.s3.Prefix, _ = f.GetString("s3-prefix")
	o.s3.Endpoint, _ = f.GetString("s3-endpoint")
	o.s3.Region, _ = f.GetString("s3-region")
	o.s3.PathStyle, _ = f.GetBool("s3-path-style")
	o.nngAddr, _ = f.GetString("nng-addr")
	o.queueSize, _ = f.GetInt("queue")
	o.syncLog, _ = f.GetBool("sync-log")
	if o.outDir == "" && !f.Changed("format") {
		o.formats = nil
	}
	return o
}

func runWithTUI(ctx context.Context, cancel context.CancelFunc, driver *montecarlo.Driver, bus *pubsub.PubSub) (*montecarlo.Report, error) {
	sub, err := bus.Subscribe(ctx, pubsub.TopicProgress)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	type result struct {
		report *montecarlo.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := driver.Run(ctx)
		done <- result{report, err}
	}()

	model := tui.New(driver.RunID(), driver.Params().MonteCarloRuns, sub.Channel(), cancel)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		res := <-done
		return res.report, fmt.Errorf("progress display: %w", err)
	}
	res := <-done
	return res.report, res.err
}

// serveMetrics exposes reg and the health endpoints on addr until the returned function is called.
func serveMetrics(ctx context.Context, addr string, reg *metrics.Registry, hc *health.HealthChecker, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.GetPrometheusRegistry(), promhttp.HandlerOpts{}))
	hc.Mount(mux)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("serving metrics", logging.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Error(err))
		}
	}()

	tickCtx, stopTicker := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			reg.UpdateSystemMetrics()
			select {
			case <-ticker.C:
			case <-tickCtx.Done():
				return
			}
		}
	}()

	return func() {
		stopTicker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// progressTracker counts finished seeds from the progress topic.
type progressTracker struct {
	finished atomic.Int64
	failed   atomic.Bool
	total    int
}

func trackProgress(ctx context.Context, bus *pubsub.PubSub, total int) (*progressTracker, error) {
	sub, err := bus.Subscribe(ctx, pubsub.TopicProgress)
	if err != nil {
		return nil, err
	}
	t := &progressTracker{total: total}
	go func() {
		for ev := range sub.Channel() {
			if ev.Kind != pubsub.SeedFinished {
				continue
			}
			t.finished.Add(1)
			if ev.Status == string(montecarlo.StatusCorrupted) {
				t.failed.Store(true)
			}
		}
	}()
	return t, nil
}

func (t *progressTracker) progress() (int, int, bool) {
	return int(t.finished.Load()), t.total, t.failed.Load()
}

// exportFailures sums records dropped by the asynchronous sinks.
func exportFailures(s sink.Sink) int {
	type failureCounter interface{ Failures() int }
	n := 0
	members, ok := s.(sink.Multi)
	if !ok {
		members = sink.Multi{s}
	}
	for _, m := range members {
		if fc, ok := m.(failureCounter); ok {
			n += fc.Failures()
		}
	}
	return n
}

type seedJSON struct {
	Seed       int64          `json:"seed"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	Steps      int            `json:"steps"`
	Halted     bool           `json:"halted"`
	Incomplete bool           `json:"incomplete"`
	Final      disease.Counts `json:"final_counts"`
	DurationMS int64          `json:"duration_ms"`
}

func printReport(w io.Writer, report *montecarlo.Report, jsonOut bool) error {
	if jsonOut {
		seeds := make([]seedJSON, len(report.Results))
		for i, r := range report.Results {
			seeds[i] = seedJSON{
				Seed:       r.Seed,
				Status:     string(r.Status),
				Steps:      r.Steps,
				Halted:     r.Halted,
				Incomplete: r.Incomplete,
				Final:      r.FinalCounts,
				DurationMS: r.Duration.Milliseconds(),
			}
			if r.Err != nil {
				seeds[i].Error = r.Err.Error()
			}
		}
		return encodeJSON(w, map[string]any{
			"run_id":      report.RunID,
			"duration_ms": report.Duration.Milliseconds(),
			"seeds":       seeds,
		})
	}

	fmt.Fprintf(w, "run %s finished in %s\n\n", report.RunID, report.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"SEED", "STATUS", "STEPS"}
	for _, s := range disease.AllStates {
		header = append(header, strings.ToUpper(s.String()[:3]))
	}
	header = append(header, "NOTE")
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range report.Results {
		row := []string{fmt.Sprint(r.Seed), string(r.Status), fmt.Sprint(r.Steps)}
		for _, v := range r.FinalCounts {
			row = append(row, fmt.Sprint(v))
		}
		note := ""
		switch {
		case r.Err != nil:
			note = r.Err.Error()
		case r.Incomplete:
			note = "export incomplete"
		case r.Halted:
			note = "extinct"
		}
		row = append(row, note)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
