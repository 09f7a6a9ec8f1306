// Package sink exports per-timestep simulation records.
//
// Every exporter implements Sink. Sinks that keep per-seed resources also
// implement SeedFinisher so they can release them when a seed ends. Async
// wraps any sink with a queue and a single retry so a slow exporter never
// stalls the simulation clock.
package sink

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// Sink receives one record per seed and timestep.
type Sink interface {
	Emit(ctx context.Context, seed int64, t int, rec snapshot.Record) error
	Close() error
}

// SeedFinisher is implemented by sinks that hold per-seed state.
type SeedFinisher interface {
	FinishSeed(ctx context.Context, seed int64) error
}

// Flusher is implemented by sinks that buffer records.
type Flusher interface {
	Flush(ctx context.Context) error
}

// IncompleteReporter is implemented by sinks that can lose records.
type IncompleteReporter interface {
	Incomplete(seed int64) bool
}

// Named gives a sink a label for logs and metrics.
type Named interface {
	Name() string
}

// FinishSeed calls s.FinishSeed when s implements SeedFinisher.
func FinishSeed(ctx context.Context, s Sink, seed int64) error {
	if f, ok := s.(SeedFinisher); ok {
		return f.FinishSeed(ctx, seed)
	}
	return nil
}

// Flush calls s.Flush when s implements Flusher.
func Flush(ctx context.Context, s Sink) error {
	if f, ok := s.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Incomplete reports whether s lost any record of seed.
func Incomplete(s Sink, seed int64) bool {
	if r, ok := s.(IncompleteReporter); ok {
		return r.Incomplete(seed)
	}
	return false
}

// NameOf returns the sink's label.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// Discard drops every record.
type Discard struct{}

func (Discard) Emit(context.Context, int64, int, snapshot.Record) error { return nil }
func (Discard) Close() error                                            { return nil }
func (Discard) Name() string                                            { return "discard" }

// seedDir is the per-seed output directory under root.
func seedDir(root string, seed int64) string {
	return filepath.Join(root, fmt.Sprintf("seed%d", seed))
}
