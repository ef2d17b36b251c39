// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger records cleaning outcomes in an embedded BadgerDB.
//
// Every cleaned (or failed) file appends one Record. Records are keyed by
// time so History returns them in the order they were written, and each
// carries the batch run identifier so one invocation can be listed alone.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ErrCorrupt is returned when a stored record fails its checksum.
var ErrCorrupt = errors.New("ledger record corrupted")

const recordPrefix = "rec:"

// Config holds configuration for a ledger database.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection. Zero
	// disables it; one-shot CLI runs leave it off.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio that triggers GC.
	GCDiscardRatio float64
}

// DefaultConfig returns a durable configuration at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Record is the outcome of cleaning one file.
type Record struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	File   string `json:"file"`
	Output string `json:"output,omitempty"`

	Strategy         string `json:"strategy,omitempty"`
	Deweighted       int    `json:"deweighted"`
	ExcludedChannels []int  `json:"excluded_channels"`
	ExcludedSubints  []int  `json:"excluded_subints"`
	HotBins          int    `json:"hot_bins"`
	Rounds           int    `json:"rounds"`
	Converged        bool   `json:"converged"`

	// Stage and Error are set when the file failed.
	Stage string `json:"stage,omitempty"`
	Error string `json:"error,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the record describes a failure.
func (r Record) Failed() bool { return r.Error != "" }

// Ledger is an append-only store of Records.
//
// Thread Safety: Safe for concurrent use.
type Ledger struct {
	db       *badger.DB
	gcRunner *GCRunner
	path     string
}

// Open opens or creates a ledger.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true, creating the directory if needed. A GC runner is
//	started when GCInterval is positive and the database is on disk.
//
// Outputs:
//   - *Ledger: Call Close when done.
//   - error: Non-nil if the path is missing or BadgerDB cannot open.
func Open(cfg Config) (*Ledger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent ledger")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create ledger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l := &Ledger{db: db, path: cfg.Path}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		l.gcRunner = runner
		runner.Start()
	}
	return l, nil
}

// Close stops garbage collection and closes the database.
func (l *Ledger) Close() error {
	if l.gcRunner != nil {
		l.gcRunner.Stop()
	}
	return l.db.Close()
}

// Path returns the database directory, empty for in-memory ledgers.
func (l *Ledger) Path() string { return l.path }

// Append stores rec, assigning an ID when it has none and a start time
// when it is zero.
//
// Outputs:
//   - Record: The stored record.
//   - error: Non-nil on context cancellation or write failure.
func (l *Ledger) Append(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("context cancelled: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Started.IsZero() {
		rec.Started = time.Now()
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return rec, err
	}
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), data)
	})
	if err != nil {
		return rec, fmt.Errorf("append record: %w", err)
	}
	return rec, nil
}

// Filter narrows History.
type Filter struct {
	// RunID keeps only records of one batch run.
	RunID string

	// FailedOnly keeps only failures.
	FailedOnly bool

	// Limit keeps the most recent Limit records. Zero keeps all.
	Limit int
}

// History returns records in write order, oldest first.
//
// Outputs:
//   - []Record: Matching records, never nil.
//   - error: ErrCorrupt (wrapped) if a stored record fails its checksum.
func (l *Ledger) History(ctx context.Context, f Filter) ([]Record, error) {
	out := []Record{}
	prefix := []byte(recordPrefix)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				var err error
				rec, err = decodeRecord(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("key %s: %w", it.Item().Key(), err)
			}
			if f.RunID != "" && rec.RunID != f.RunID {
				continue
			}
			if f.FailedOnly && !rec.Failed() {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// recordKey orders records by start time; the ID keeps keys unique.
func recordKey(rec Record) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", recordPrefix, rec.Started.UnixNano(), rec.ID))
}

// encodeRecord encodes a record as [4-byte CRC32][JSON].
func encodeRecord(rec Record) ([]byte, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if len(data) < 5 {
		return rec, fmt.Errorf("%w: entry too short", ErrCorrupt)
	}
	stored := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if computed := crc32.ChecksumIEEE(body); stored != computed {
		return rec, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupt, stored, computed)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
