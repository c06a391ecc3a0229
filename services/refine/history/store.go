// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history persists finished refinement runs in an embedded BadgerDB.
//
// Each run is stored as JSON under the key "run/{id}". Saving the same ID
// twice overwrites the earlier record.
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
	"path/filepath"
	"sort"
	"time"

	"github.com/AleutianAI/mctsrefine/services/refine/runner"
	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "run/"

var (
	// ErrNotFound is returned when no run has the requested ID.
	ErrNotFound = errors.New("history: run not found")

	// ErrPathRequired is returned when a persistent store has no path.
	ErrPathRequired = errors.New("history: path is required for a persistent store")

	// ErrEmptyRunID is returned when saving a result without a run ID.
	ErrEmptyRunID = errors.New("history: run ID must not be empty")
)

// Config holds configuration for the run store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string `json:"path" yaml:"path"`

	// InMemory keeps all runs in RAM. Useful for tests and ephemeral servers.
	InMemory bool `json:"in_memory" yaml:"in_memory"`

	// Disabled turns persistence off entirely.
	Disabled bool `json:"disabled" yaml:"disabled"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `json:"sync_writes" yaml:"sync_writes"`

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration `json:"gc_interval" yaml:"gc_interval"`

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64 `json:"gc_discard_ratio" yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a persistent store under ~/.mctsrefine/history.
func DefaultConfig() Config {
	path := filepath.Join(".mctsrefine", "history")
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, path)
	}
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a store configuration that never touches disk.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Summary is the listing view of a stored run.
type Summary struct {
	RunID         string    `json:"run_id"`
	Question      string    `json:"question"`
	Refined       string    `json:"refined"`
	VanillaRating *int      `json:"vanilla_rating"`
	RefinedRating *int      `json:"refined_rating"`
	StartedAt     time.Time `json:"started_at"`
}

// Store saves and loads runs.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	stopGC chan struct{}
	gcDone chan struct{}
}

var _ runner.Recorder = (*Store)(nil)

// slogAdapter routes BadgerDB's internal logs to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (l slogAdapter) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l slogAdapter) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the run store.
//
// Inputs:
//   - cfg: Store configuration. Path is required unless InMemory is true.
//   - logger: Receives BadgerDB and GC logs. Nil silences BadgerDB.
//
// Outputs:
//   - *Store: The opened store. Caller must call Close.
//   - error: ErrPathRequired or the BadgerDB open error.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if logger != nil {
		opts = opts.WithLogger(slogAdapter{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.Default()
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops value log GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}
	return s.db.Close()
}

// Save stores a finished run.
func (s *Store) Save(ctx context.Context, result *runner.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if result == nil || result.RunID == "" {
		return ErrEmptyRunID
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", result.RunID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(result.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", result.RunID, err)
	}

	s.logger.Debug("run saved",
		slog.String("run_id", result.RunID),
		slog.Int("bytes", len(data)))
	return nil
}

// Get loads a run by ID.
func (s *Store) Get(ctx context.Context, id string) (*runner.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var result runner.Result
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &result, nil
}

// List returns up to limit run summaries, newest first. A limit of zero or
// less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	var summaries []Summary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var result runner.Result
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &result)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			summaries = append(summaries, summarize(&result))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// Delete removes a run. Deleting a missing run is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(id))
	})
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("history value log GC failed", slog.String("error", err.Error()))
			}
		}
	}
}

func runKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func summarize(r *runner.Result) Summary {
	return Summary{
		RunID:         r.RunID,
		Question:      r.Question,
		Refined:       r.Refined,
		VanillaRating: r.VanillaRating,
		RefinedRating: r.RefinedRating,
		StartedAt:     r.StartedAt,
	}
}
