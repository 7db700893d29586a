// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists check reports in BadgerDB.
//
// Each saved report becomes a Record keyed by its start time, so listing
// walks newest first without a secondary index. A run-ID key points back
// at the record for direct lookups:
//
//	report/<unix-nanos, zero padded>/<run id>  ->  Record (JSON)
//	run/<run id>                               ->  report key
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/modelcheck/services/modelcheck/checker"
	"github.com/AleutianAI/modelcheck/services/modelcheck/result"
)

var (
	reportPrefix = []byte("report/")
	runPrefix    = []byte("run/")
)

var (
	// ErrNotFound is returned by Get for an unknown run ID.
	ErrNotFound = errors.New("report not found")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("history store closed")
)

var (
	recordsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modelcheck",
		Subsystem: "history",
		Name:      "records_saved_total",
		Help:      "Reports written to the history store",
	})

	recordsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "modelcheck",
		Subsystem: "history",
		Name:      "records_evicted_total",
		Help:      "Reports removed by the retention limit",
	})
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds configuration for a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps records in memory only.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// Retain is the number of records kept. Zero keeps all.
	Retain int

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a file.
	GCDiscardRatio float64

	// Logger receives store and BadgerDB diagnostics. Nil silences BadgerDB.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		Retain:         100,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests and ephemeral runs.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// =============================================================================
// Records
// =============================================================================

// Record is one stored check run.
type Record struct {
	RunID      string            `json:"run_id"`
	Model      string            `json:"model"`
	Generation uint64            `json:"generation"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Total      int               `json:"total"`
	Explained  int               `json:"explained"`
	Counts     map[string]int    `json:"counts"`
	Outcomes   []checker.Outcome `json:"outcomes,omitempty"`
}

// NewRecord summarises a report for storage.
func NewRecord(model string, generation uint64, startedAt time.Time, r *checker.Report) Record {
	counts := make(map[string]int)
	for code, n := range r.CountByCode() {
		counts[code.String()] = n
	}
	return Record{
		RunID:      r.RunID,
		Model:      model,
		Generation: generation,
		StartedAt:  startedAt,
		Duration:   r.Duration,
		Total:      len(r.Outcomes),
		Explained:  r.Explained(),
		Counts:     counts,
		Outcomes:   r.Outcomes,
	}
}

// Count returns the number of outcomes with the given code.
func (r Record) Count(code result.Code) int {
	return r.Counts[code.String()]
}

// Summary returns a copy of r without outcomes.
func (r Record) Summary() Record {
	r.Outcomes = nil
	return r
}

// =============================================================================
// Store
// =============================================================================

// Store is a report history backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	retain int
	logger *slog.Logger
	gc     *gcRunner
}

// Open opens or creates a Store.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, or in memory, and starts value log GC
//	when cfg.GCInterval is set on a persistent store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Call Close when done.
//	error - Non-nil if the path is missing or the database cannot open.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent history")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
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
		return nil, fmt.Errorf("open history database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, retain: cfg.Retain, logger: logger}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// Save writes rec and evicts the oldest records past the retention limit.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.RunID == "" {
		return errors.New("record has no run id")
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	key := reportKey(rec.StartedAt, rec.RunID)

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(runKey(rec.RunID), key)
	})
	if err != nil {
		return s.wrap("saving record", err)
	}
	recordsSaved.Inc()

	if s.retain > 0 {
		if err := s.evict(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the record for runID.
func (s *Store) Get(ctx context.Context, runID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return Record{}, s.wrap("reading record", err)
	}
	return rec, nil
}

// List returns up to limit record summaries, newest first. A limit < 1
// returns every record.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = reportPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekLast(reportPrefix)); it.ValidForPrefix(reportPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec.Summary())
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("listing records", err)
	}
	return out, nil
}

// Latest returns the newest record, or ErrNotFound on an empty store.
func (s *Store) Latest(ctx context.Context) (Record, error) {
	recs, err := s.List(ctx, 1)
	if err != nil {
		return Record{}, err
	}
	if len(recs) == 0 {
		return Record{}, ErrNotFound
	}
	return s.Get(ctx, recs[0].RunID)
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

func (s *Store) evict() error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = reportPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Seek(seekLast(reportPrefix)); it.ValidForPrefix(reportPrefix); it.Next() {
			n++
			if n > s.retain {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap("scanning for eviction", err)
	}
	if len(stale) == 0 {
		return nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if id := runIDFromKey(key); id != "" {
				if err := txn.Delete(runKey(id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap("evicting records", err)
	}
	recordsEvicted.Add(float64(len(stale)))
	s.logger.Debug("history records evicted", slog.Int("count", len(stale)))
	return nil
}

func (s *Store) wrap(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
