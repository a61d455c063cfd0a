// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists the history of published GPU states.
//
// The journal is an append-only file of independently compressed
// records: a 4-byte big-endian length followed by a zstd frame
// holding one CBOR-encoded [Entry]. Framing each record on its own
// keeps the file crash-tolerant — a torn final record is simply
// ignored on read — and lets the daemon append across restarts
// without rewriting history.
package journal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/xzl01/switcheroo-control/lib/codec"
	"github.com/xzl01/switcheroo-control/lib/gpu"
)

// maxEntrySize bounds a single compressed record. Entries are a few
// hundred bytes in practice; a length prefix beyond this means the
// file is corrupt, not that a giant entry exists.
const maxEntrySize = 1 << 20

// headerSize is the record length prefix.
const headerSize = 4

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("journal: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("journal: zstd decoder initialization failed: " + err.Error())
	}
}

// Entry is one published state change.
type Entry struct {
	// Time is when the state was published. Stored with second
	// precision.
	Time time.Time `cbor:"time"`

	// Reason is the mutation kind behind the publish ("seed", "add",
	// "remove", "resync") and PathTag the adapter it concerned.
	// PathTag is empty for seed entries.
	Reason  string `cbor:"reason"`
	PathTag string `cbor:"path_tag,omitempty"`

	HasDualGPU bool   `cbor:"has_dual_gpu"`
	NumGPUs    uint32 `cbor:"num_gpus"`

	// GPUs lists the adapters in publication order (default last).
	GPUs []EntryGPU `cbor:"gpus"`

	// Digest is the hex BLAKE3 digest of the encoded wire state, for
	// correlating journal entries with client-observed updates.
	Digest string `cbor:"digest,omitempty"`
}

// EntryGPU is one adapter in a journal entry.
type EntryGPU struct {
	Name    string `cbor:"name"`
	PathTag string `cbor:"path_tag"`
	Default bool   `cbor:"default"`
}

// NewEntry builds a journal entry from a snapshot at the given time.
func NewEntry(at time.Time, snapshot gpu.Snapshot, change gpu.Change, digest string) Entry {
	gpus := make([]EntryGPU, 0, len(snapshot.GPUs))
	for _, g := range snapshot.GPUs {
		gpus = append(gpus, EntryGPU{
			Name:    g.Name,
			PathTag: g.PathTag,
			Default: g.Default,
		})
	}
	return Entry{
		Time:       at,
		Reason:     string(change.Reason),
		PathTag:    change.PathTag,
		HasDualGPU: snapshot.HasDualGPU,
		NumGPUs:    uint32(snapshot.NumGPUs),
		GPUs:       gpus,
		Digest:     digest,
	}
}

// Writer appends entries to a journal file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
}

// Create opens the journal file for appending, creating it and its
// parent directory as needed.
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	return &Writer{file: file}, nil
}

// Append writes one entry to the journal.
func (w *Writer) Append(entry Entry) error {
	encoded, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	frame := zstdEncoder.EncodeAll(encoded, nil)

	// One Write call per record so O_APPEND keeps records whole.
	record := make([]byte, headerSize+len(frame))
	binary.BigEndian.PutUint32(record, uint32(len(frame)))
	copy(record[headerSize:], frame)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(record); err != nil {
		return fmt.Errorf("writing journal entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadAll decodes every complete entry in a journal file, oldest
// first. A torn final record (crash mid-append) is silently dropped;
// corruption inside a complete record is an error.
func ReadAll(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading journal %s: %w", path, err)
	}

	var entries []Entry
	for offset := 0; offset < len(data); {
		rest := data[offset:]
		if len(rest) < headerSize {
			break
		}
		length := int(binary.BigEndian.Uint32(rest))
		if length == 0 || length > maxEntrySize {
			return nil, fmt.Errorf("journal entry %d: corrupt length %d", len(entries), length)
		}
		if len(rest) < headerSize+length {
			break
		}
		frame := rest[headerSize : headerSize+length]

		encoded, err := zstdDecoder.DecodeAll(frame, nil)
		if err != nil {
			return nil, fmt.Errorf("journal entry %d: decompressing: %w", len(entries), err)
		}
		var entry Entry
		if err := codec.Unmarshal(encoded, &entry); err != nil {
			return nil, fmt.Errorf("journal entry %d: decoding: %w", len(entries), err)
		}
		entries = append(entries, entry)
		offset += headerSize + length
	}
	return entries, nil
}
