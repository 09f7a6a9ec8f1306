// Package wal implements the append-only, snappy-compressed record log used
// to persist simulation snapshots.
package wal

import (
	"bufio"
	"os"
	"sync"
)

// RecordKind tags the payload of an Entry.
type RecordKind uint8

const (
	// KindSnapshot holds a full per-agent snapshot.
	KindSnapshot RecordKind = iota + 1
	// KindCounts holds compartment counts only.
	KindCounts
)

// Entry is one decoded log record.
type Entry struct {
	Seq       uint64
	Kind      RecordKind
	Data      []byte // uncompressed payload
	Checksum  uint32 // CRC32 of the compressed payload
	Timestamp int64
}

// CompressedWAL is an append-only log with snappy-compressed payloads.
// Layout per entry: [Seq:8][Kind:1][DataLen:4][Data:N][Checksum:4][Timestamp:8].
type CompressedWAL struct {
	path      string
	file      *os.File
	writer    *bufio.Writer
	seq       uint64
	syncEvery bool
	mu        sync.Mutex

	// Statistics
	totalWrites       uint64
	bytesUncompressed uint64
	bytesCompressed   uint64
}

// CompressedWALStats holds compression statistics
type CompressedWALStats struct {
	TotalWrites       uint64
	BytesUncompressed uint64
	BytesCompressed   uint64
	CompressionRatio  float64 // e.g., 0.75 = 75% compression
}
