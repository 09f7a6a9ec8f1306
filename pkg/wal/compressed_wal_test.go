package wal

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func openTestLog(t *testing.T) (*CompressedWAL, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed0", "snapshots.log")
	cw, err := Open(path)
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	return cw, path
}

// TestOpen tests creating a log and its parent directory
func TestOpen(t *testing.T) {
	cw, path := openTestLog(t)
	defer cw.Close()

	if cw.CurrentSeq() != 0 {
		t.Errorf("Expected initial sequence 0, got %d", cw.CurrentSeq())
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

// TestAppendAndReadAll tests the write/read round trip
func TestAppendAndReadAll(t *testing.T) {
	cw, path := openTestLog(t)

	expected := []string{"entry1", "entry2", strings.Repeat("Susceptible,", 500)}
	for i, data := range expected {
		kind := KindCounts
		if i == 2 {
			kind = KindSnapshot
		}
		seq, err := cw.Append(kind, []byte(data))
		if err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
		if seq != uint64(i+1) {
			t.Errorf("Expected sequence %d, got %d", i+1, seq)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != len(expected) {
		t.Fatalf("Expected %d entries, got %d", len(expected), len(entries))
	}
	for i, e := range entries {
		if string(e.Data) != expected[i] {
			t.Errorf("entry %d: data mismatch", i)
		}
	}
	if entries[2].Kind != KindSnapshot {
		t.Errorf("entry 2 kind = %d, want KindSnapshot", entries[2].Kind)
	}
}

// TestReopenContinuesSequence tests sequence recovery on reopen
func TestReopenContinuesSequence(t *testing.T) {
	cw, path := openTestLog(t)
	for i := 0; i < 3; i++ {
		if _, err := cw.Append(KindCounts, []byte("x")); err != nil {
			t.Fatal(err)
		}
	}
	cw.Close()

	again, err := Open(path, WithSync())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	seq, err := again.Append(KindCounts, []byte("y"))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 4 {
		t.Errorf("Expected sequence 4 after reopen, got %d", seq)
	}
}

// TestCorruptChecksum tests that a flipped payload byte is detected
func TestCorruptChecksum(t *testing.T) {
	cw, path := openTestLog(t)
	if _, err := cw.Append(KindCounts, []byte("payload that will be damaged")); err != nil {
		t.Fatal(err)
	}
	cw.Close()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[14] ^= 0xff
	if err := os.WriteFile(path, raw, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = ReadAll(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("Expected ErrCorrupt, got %v", err)
	}
}

// TestTornTail tests that a truncated final entry is reported and tolerated on reopen
func TestTornTail(t *testing.T) {
	cw, path := openTestLog(t)
	cw.Append(KindCounts, []byte("complete"))
	cw.Append(KindCounts, []byte("will be cut"))
	cw.Close()

	raw, _ := os.ReadFile(path)
	if err := os.WriteFile(path, raw[:len(raw)-5], 0644); err != nil {
		t.Fatal(err)
	}

	err := ReplayReader(bytes.NewReader(raw[:len(raw)-5]), func(*Entry) error { return nil })
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected ErrUnexpectedEOF, got %v", err)
	}

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen with torn tail: %v", err)
	}
	defer again.Close()
	if again.CurrentSeq() != 1 {
		t.Errorf("Expected sequence 1, got %d", again.CurrentSeq())
	}
}

// TestReplayMissingFile tests that a missing log replays nothing
func TestReplayMissingFile(t *testing.T) {
	entries, err := ReadAll(filepath.Join(t.TempDir(), "absent.log"))
	if err != nil || len(entries) != 0 {
		t.Errorf("ReadAll(missing) = %v, %v", entries, err)
	}
}

// TestStatistics tests compression statistics
func TestStatistics(t *testing.T) {
	cw, _ := openTestLog(t)
	defer cw.Close()

	data := []byte(strings.Repeat("Recovered;", 1000))
	for i := 0; i < 5; i++ {
		if _, err := cw.Append(KindSnapshot, data); err != nil {
			t.Fatal(err)
		}
	}

	stats := cw.GetStatistics()
	if stats.TotalWrites != 5 {
		t.Errorf("TotalWrites = %d, want 5", stats.TotalWrites)
	}
	if stats.BytesUncompressed != uint64(5*len(data)) {
		t.Errorf("BytesUncompressed = %d", stats.BytesUncompressed)
	}
	if stats.CompressionRatio <= 0.5 {
		t.Errorf("Expected repetitive data to compress well, ratio %f", stats.CompressionRatio)
	}
}
