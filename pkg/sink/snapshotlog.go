package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dd0wney/cluso-epinet/pkg/disease"
	"github.com/dd0wney/cluso-epinet/pkg/simerr"
	"github.com/dd0wney/cluso-epinet/pkg/snapshot"
	"github.com/dd0wney/cluso-epinet/pkg/wal"
)

// countsEntry is the payload of a wal.KindCounts record.
type countsEntry struct {
	Seed     int64          `json:"seed"`
	Timestep int            `json:"timestep"`
	Counts   disease.Counts `json:"counts"`
}

// SnapshotLog appends each record to a snappy-compressed log at
// <dir>/seed<N>/snapshots.log. Full snapshots are stored as
// wal.KindSnapshot, count-only records as wal.KindCounts.
type SnapshotLog struct {
	dir  string
	sync bool
	mu   sync.Mutex
	logs map[int64]*wal.CompressedWAL
}

// NewSnapshotLog returns a snapshot log sink rooted at dir. With syncEach
// every append is fsynced.
func NewSnapshotLog(dir string, syncEach bool) *SnapshotLog {
	return &SnapshotLog{dir: dir, sync: syncEach, logs: make(map[int64]*wal.CompressedWAL)}
}

func (l *SnapshotLog) Name() string { return "snapshot-log" }

// SnapshotLogPath returns the log file of seed.
func SnapshotLogPath(dir string, seed int64) string {
	return filepath.Join(seedDir(dir, seed), "snapshots.log")
}

// Emit appends rec.
func (l *SnapshotLog) Emit(_ context.Context, seed int64, t int, rec snapshot.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, err := l.open(seed)
	if err != nil {
		return simerr.Export("snapshot-log").Seed(seed).Timestep(t).Wrap(err)
	}

	kind := wal.KindCounts
	var payload []byte
	if rec.Snapshot != nil {
		kind = wal.KindSnapshot
		payload, err = json.Marshal(rec.Snapshot)
	} else {
		payload, err = json.Marshal(countsEntry{Seed: seed, Timestep: t, Counts: rec.Counts})
	}
	if err != nil {
		return simerr.Export("snapshot-log").Seed(seed).Timestep(t).Wrap(err)
	}
	if _, err := w.Append(kind, payload); err != nil {
		return simerr.Export("snapshot-log").Seed(seed).Timestep(t).Wrap(err)
	}
	return nil
}

func (l *SnapshotLog) open(seed int64) (*wal.CompressedWAL, error) {
	if w, ok := l.logs[seed]; ok {
		return w, nil
	}
	var opts []wal.Option
	if l.sync {
		opts = append(opts, wal.WithSync())
	}
	w, err := wal.Open(SnapshotLogPath(l.dir, seed), opts...)
	if err != nil {
		return nil, err
	}
	l.logs[seed] = w
	return w, nil
}

// FinishSeed flushes and closes the seed's log.
func (l *SnapshotLog) FinishSeed(_ context.Context, seed int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.logs[seed]
	if !ok {
		return nil
	}
	delete(l.logs, seed)
	if err := w.Close(); err != nil {
		return simerr.Export("snapshot-log").Seed(seed).Wrap(err)
	}
	return nil
}

// Flush pushes buffered entries of every open log to disk.
func (l *SnapshotLog) Flush(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seed, w := range l.logs {
		if err := w.Flush(); err != nil {
			return simerr.Export("snapshot-log").Seed(seed).Wrap(err)
		}
	}
	return nil
}

// Close closes every open log.
func (l *SnapshotLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for seed, w := range l.logs {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = simerr.Export("snapshot-log").Seed(seed).Wrap(err)
		}
		delete(l.logs, seed)
	}
	return firstErr
}

// LogRecord is one decoded entry of a snapshot log.
type LogRecord struct {
	Seq      uint64
	Seed     int64
	Timestep int
	Record   snapshot.Record
}

// ReadSnapshotLog decodes every entry of the log at path in order.
func ReadSnapshotLog(path string) ([]LogRecord, error) {
	var out []LogRecord
	err := wal.Replay(path, func(e *wal.Entry) error {
		switch e.Kind {
		case wal.KindSnapshot:
			var s snapshot.Snapshot
			if err := json.Unmarshal(e.Data, &s); err != nil {
				return fmt.Errorf("entry %d: %w", e.Seq, err)
			}
			out = append(out, LogRecord{
				Seq:      e.Seq,
				Seed:     s.Seed,
				Timestep: s.Timestep,
				Record:   snapshot.NewRecord(&s, s.Counts),
			})
		case wal.KindCounts:
			var c countsEntry
			if err := json.Unmarshal(e.Data, &c); err != nil {
				return fmt.Errorf("entry %d: %w", e.Seq, err)
			}
			out = append(out, LogRecord{
				Seq:      e.Seq,
				Seed:     c.Seed,
				Timestep: c.Timestep,
				Record:   snapshot.NewRecord(nil, c.Counts),
			})
		default:
			return fmt.Errorf("entry %d: unknown kind %d", e.Seq, e.Kind)
		}
		return nil
	})
	return out, err
}
