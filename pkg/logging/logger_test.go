package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARNING", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestStreamLogger_SimulationFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("seed finished", Seed(3), Timestep(120), AgentID(7), Layer("household"), State("Exposed"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != "INFO" || e.Message != "seed finished" {
		t.Errorf("unexpected entry %+v", e)
	}
	// JSON numbers decode as float64
	if e.Fields["seed"] != float64(3) || e.Fields["timestep"] != float64(120) {
		t.Errorf("seed/timestep fields wrong: %v", e.Fields)
	}
	if e.Fields["layer"] != "household" || e.Fields["state"] != "Exposed" {
		t.Errorf("layer/state fields wrong: %v", e.Fields)
	}
}

func TestStreamLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Error("SetLevel did not take effect")
	}
}

func TestStreamLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSONLogger(&buf, InfoLevel)
	child := base.With(RunID("abc"), Seed(1))

	child.Info("step", Timestep(2))
	base.Info("plain")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Fields["run_id"] != "abc" || entries[0].Fields["seed"] != float64(1) {
		t.Errorf("child fields missing: %v", entries[0].Fields)
	}
	if entries[1].Fields != nil {
		t.Errorf("parent should not inherit child fields: %v", entries[1].Fields)
	}
}

func TestStreamLogger_ConcurrentChildren(t *testing.T) {
	var buf bytes.Buffer
	base := NewJSONLogger(&buf, InfoLevel)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			l := base.With(Seed(seed))
			for j := 0; j < 25; j++ {
				l.Info("tick", Timestep(j))
			}
		}(int64(i))
	}
	wg.Wait()

	// Lines must not interleave: every one decodes.
	if n := len(decodeLines(t, &buf)); n != 200 {
		t.Errorf("expected 200 entries, got %d", n)
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	op := StartTimer(logger, "build network", Seed(4))
	time.Sleep(time.Millisecond)
	if d := op.End(Count(10)); d <= 0 {
		t.Errorf("expected positive duration, got %v", d)
	}

	op = StartTimer(logger, "run")
	op.EndError(errors.New("boom"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].Fields["latency"]; !ok {
		t.Error("latency field missing")
	}
	if entries[0].Fields["count"] != float64(10) {
		t.Errorf("extra field missing: %v", entries[0].Fields)
	}
	if entries[1].Level != "ERROR" || entries[1].Fields["error"] != "boom" {
		t.Errorf("unexpected error entry %+v", entries[1])
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(NopLogger); !ok {
		t.Error("OrNop(nil) should return NopLogger")
	}
	l := NewJSONLogger(&bytes.Buffer{}, InfoLevel)
	if OrNop(l) != Logger(l) {
		t.Error("OrNop should return the given logger")
	}
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	if f.Key != "error" || f.Value != nil {
		t.Errorf("Error(nil) = %+v", f)
	}
}

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, InfoLevel)
	logger.out.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	logger.With(RunID("abc")).Info("sink failed", Sink("async(csv)"), Path("out dir/seed1"), Seed(2))
	logger.Debug("hidden")

	got := buf.String()
	want := `03:04:05.000 INFO  sink failed run_id=abc sink=async(csv) path="out dir/seed1" seed=2` + "\n"
	if got != want {
		t.Errorf("text line\n got %q\nwant %q", got, want)
	}
}

func TestMergeFields_LaterKeyWins(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, InfoLevel)
	logger.out.now = func() time.Time { return time.Time{} }

	logger.With(Seed(1), Layer("work")).Info("x", Seed(9))
	if !strings.HasSuffix(buf.String(), "x seed=9 layer=work\n") {
		t.Errorf("unexpected line %q", buf.String())
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("TEXT") != FormatText {
		t.Error("TEXT should parse as text")
	}
	if ParseFormat("") != FormatJSON || ParseFormat("json") != FormatJSON {
		t.Error("default format should be JSON")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestDroppedWrites(t *testing.T) {
	logger := NewJSONLogger(failingWriter{}, InfoLevel)
	logger.Info("a")
	logger.With(Seed(1)).Info("b")
	if logger.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", logger.Dropped())
	}
}
