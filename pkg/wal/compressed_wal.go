package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Option configures a CompressedWAL.
type Option func(*CompressedWAL)

// WithSync fsyncs after every append.
func WithSync() Option {
	return func(w *CompressedWAL) { w.syncEvery = true }
}

// Open opens or creates the log at path. Existing entries are scanned to
// continue the sequence.
func Open(path string, opts ...Option) (*CompressedWAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	w := &CompressedWAL{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.recoverSeq(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover sequence: %w", err)
	}
	return w, nil
}

// Path returns the file path of the log.
func (w *CompressedWAL) Path() string { return w.path }

// Flush flushes buffered entries to disk
func (w *CompressedWAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the log
func (w *CompressedWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// recoverSeq continues numbering after the last readable entry
func (w *CompressedWAL) recoverSeq() error {
	err := Replay(w.path, func(e *Entry) error {
		w.seq = e.Seq
		return nil
	})
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}

// GetStatistics returns compression statistics for entries appended by this handle.
func (w *CompressedWAL) GetStatistics() CompressedWALStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	compressionRatio := 0.0
	if w.bytesUncompressed > 0 {
		compressionRatio = 1.0 - (float64(w.bytesCompressed) / float64(w.bytesUncompressed))
	}

	return CompressedWALStats{
		TotalWrites:       w.totalWrites,
		BytesUncompressed: w.bytesUncompressed,
		BytesCompressed:   w.bytesCompressed,
		CompressionRatio:  compressionRatio,
	}
}

// CurrentSeq returns the sequence number of the last appended entry.
func (w *CompressedWAL) CurrentSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}
