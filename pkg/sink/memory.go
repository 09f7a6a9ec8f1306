package sink

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
)

// Memory keeps every record in memory, keyed by seed.
type Memory struct {
	mu       sync.Mutex
	records  map[int64][]snapshot.Record
	finished map[int64]bool
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		records:  make(map[int64][]snapshot.Record),
		finished: make(map[int64]bool),
	}
}

func (m *Memory) Name() string { return "memory" }

// Emit appends rec to the seed's sequence.
func (m *Memory) Emit(_ context.Context, seed int64, _ int, rec snapshot.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[seed] = append(m.records[seed], rec)
	return nil
}

// FinishSeed marks seed as complete.
func (m *Memory) FinishSeed(_ context.Context, seed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[seed] = true
	return nil
}

// Records returns a copy of the records emitted for seed.
func (m *Memory) Records(seed int64) []snapshot.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.records[seed])
}

// Seeds returns the seeds seen so far in ascending order.
func (m *Memory) Seeds() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.records))
}

// Finished reports whether FinishSeed was called for seed.
func (m *Memory) Finished(seed int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished[seed]
}

func (m *Memory) Close() error { return nil }
