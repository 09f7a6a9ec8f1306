package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"time"

	"github.com/golang/snappy"
)

// ErrCorrupt is returned when an entry fails its checksum or cannot be decoded.
var ErrCorrupt = errors.New("wal: corrupt entry")

// Append compresses data and appends it as a new entry, returning its sequence number.
func (w *CompressedWAL) Append(kind RecordKind, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	compressed := snappy.Encode(nil, data)

	entry := Entry{
		Seq:       w.seq,
		Kind:      kind,
		Data:      compressed,
		Checksum:  crc32.ChecksumIEEE(compressed),
		Timestamp: time.Now().Unix(),
	}

	if err := writeEntry(w.writer, &entry); err != nil {
		w.seq-- // Rollback sequence on error
		return 0, fmt.Errorf("failed to write log entry: %w", err)
	}

	w.totalWrites++
	w.bytesUncompressed += uint64(len(data))
	w.bytesCompressed += uint64(len(compressed))

	if w.syncEvery {
		if err := w.writer.Flush(); err != nil {
			return 0, fmt.Errorf("failed to flush log: %w", err)
		}
		if err := w.file.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync log: %w", err)
		}
	}
	return entry.Seq, nil
}

// writeEntry writes one framed entry whose Data is already compressed.
func writeEntry(bw *bufio.Writer, entry *Entry) error {
	var header [13]byte
	binary.BigEndian.PutUint64(header[0:8], entry.Seq)
	header[8] = byte(entry.Kind)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(entry.Data)))
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if _, err := bw.Write(entry.Data); err != nil {
		return err
	}

	var trailer [12]byte
	binary.BigEndian.PutUint32(trailer[0:4], entry.Checksum)
	binary.BigEndian.PutUint64(trailer[4:12], uint64(entry.Timestamp))
	_, err := bw.Write(trailer[:])
	return err
}

// readEntry reads and decompresses one entry. It returns io.EOF at a clean
// end of file and io.ErrUnexpectedEOF for a torn tail.
func readEntry(r *bufio.Reader) (*Entry, error) {
	var header [13]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	entry := &Entry{
		Seq:  binary.BigEndian.Uint64(header[0:8]),
		Kind: RecordKind(header[8]),
	}

	compressed := make([]byte, binary.BigEndian.Uint32(header[9:13]))
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	var trailer [12]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	entry.Checksum = binary.BigEndian.Uint32(trailer[0:4])
	entry.Timestamp = int64(binary.BigEndian.Uint64(trailer[4:12]))

	// Verify checksum (on compressed data)
	if crc32.ChecksumIEEE(compressed) != entry.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for entry %d", ErrCorrupt, entry.Seq)
	}

	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, entry.Seq, err)
	}
	entry.Data = data
	return entry, nil
}

// Replay calls handler for every entry in the log at path, in order. A
// missing file replays nothing.
func Replay(path string, handler func(*Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return ReplayReader(file, handler)
}

// ReplayReader is Replay over an arbitrary reader.
func ReplayReader(r io.Reader, handler func(*Entry) error) error {
	reader := bufio.NewReader(r)
	for {
		entry, err := readEntry(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(entry); err != nil {
			return err
		}
	}
}

// ReadAll returns every entry of the log at path.
func ReadAll(path string) ([]*Entry, error) {
	var entries []*Entry
	err := Replay(path, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}
