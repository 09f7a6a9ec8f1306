package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dd0wney/cluso-epinet/pkg/logging"
	"github.com/dd0wney/cluso-epinet/pkg/metrics"
	"github.com/dd0wney/cluso-epinet/pkg/sink"
)

// sinkOptions selects the exporters of a run.
type sinkOptions struct {
	outDir      string
	formats     []string
	sqlitePath  string
	postgresDSN string
	s3          sink.S3Config
	nngAddr     string
	queueSize   int
	syncLog     bool
}

// Directory formats written under outDir.
const (
	formatGraphML = "graphml"
	formatCSV     = "csv"
	formatLog     = "log"
)

// buildSinks opens every selected exporter and wraps each in its own
// asynchronous queue so one slow destination does not hold up the others.
func buildSinks(ctx context.Context, opts sinkOptions, runID string, logger logging.Logger, reg *metrics.Registry) (sink.Sink, error) {
	var members []sink.Sink
	fail := func(err error) (sink.Sink, error) {
		for _, m := range members {
			_ = m.Close()
		}
		return nil, err
	}

	if len(opts.formats) > 0 && opts.outDir == "" {
		return fail(fmt.Errorf("--out is required for formats %s", strings.Join(opts.formats, ",")))
	}
	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fail(fmt.Errorf("create output directory: %w", err))
		}
	}
	for _, f := range opts.formats {
		switch strings.TrimSpace(strings.ToLower(f)) {
		case formatGraphML:
			members = append(members, sink.NewGraphML(opts.outDir))
		case formatCSV:
			members = append(members, sink.NewCountsCSV(opts.outDir))
		case formatLog:
			members = append(members, sink.NewSnapshotLog(opts.outDir, opts.syncLog))
		case "":
		default:
			return fail(fmt.Errorf("unknown format %q (want graphml, csv or log)", f))
		}
	}

	if opts.sqlitePath != "" {
		s, err := sink.OpenSQLite(ctx, opts.sqlitePath, runID)
		if err != nil {
			return fail(err)
		}
		members = append(members, s)
	}
	if opts.postgresDSN != "" {
		s, err := sink.OpenPostgres(ctx, opts.postgresDSN, runID)
		if err != nil {
			return fail(err)
		}
		members = append(members, s)
	}
	if opts.s3.Bucket != "" {
		client, err := sink.NewS3Client(ctx, opts.s3)
		if err != nil {
			return fail(err)
		}
		prefix := opts.s3.Prefix
		if prefix == "" {
			prefix = runID
		}
		members = append(members, sink.NewS3(client, opts.s3.Bucket, prefix))
	}
	if opts.nngAddr != "" {
		s, err := sink.ListenNNG(opts.nngAddr, runID)
		if err != nil {
			return fail(err)
		}
		members = append(members, s)
	}

	if len(members) == 0 {
		return sink.Discard{}, nil
	}
	out := make(sink.Multi, len(members))
	for i, m := range members {
		logger.Info("sink enabled", logging.Sink(sink.NameOf(m)))
		out[i] = sink.NewAsync(m,
			sink.WithQueueSize(opts.queueSize),
			sink.WithAsyncLogger(logger),
			sink.WithAsyncMetrics(reg),
		)
	}
	return out, nil
}
