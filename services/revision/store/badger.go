// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// BadgerConfig configures the embedded BadgerDB store.
type BadgerConfig struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: durable writes at the
// given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryBadgerConfig returns a configuration for tests: in-memory, no
// sync overhead.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
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

// BadgerStore is a SnapshotStore and ReportSectionStore backed by an
// embedded BadgerDB.
//
// Description:
//
//	Key layout:
//
//	  trip/<tripID>/current            -> decimal current version number
//	  trip/<tripID>/v/<number %010d>   -> JSON TripVersion
//	  section/<tripID>/<sectionID>     -> JSON section record
//
//	Appends happen inside a single read-write transaction that re-checks
//	the current version number, so the atomic-append contract holds even
//	under concurrent committers: Badger's transaction conflict detection
//	rejects the loser, which is surfaced as ErrConflict.
//
// Thread Safety: safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// OpenBadger opens a BadgerDB-backed store.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*BadgerStore - The opened store. Caller must Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &BadgerStore{db: db, logger: logger.With(slog.String("component", "badger_store"))}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func currentKey(tripID string) []byte {
	return []byte("trip/" + tripID + "/current")
}

func versionKey(tripID string, number int) []byte {
	return []byte(fmt.Sprintf("trip/%s/v/%010d", tripID, number))
}

func versionPrefix(tripID string) []byte {
	return []byte("trip/" + tripID + "/v/")
}

func sectionKey(tripID string, sectionID datatypes.ReportSectionID) []byte {
	return []byte("section/" + tripID + "/" + string(sectionID))
}

// Put appends a version inside a single transaction.
func (s *BadgerStore) Put(ctx context.Context, tripID string, version datatypes.TripVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("encode version: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		current, err := readCurrent(txn, tripID)
		if err != nil {
			return err
		}
		if version.Number != current+1 {
			return ErrConflict
		}
		if err := txn.Set(versionKey(tripID, version.Number), payload); err != nil {
			return err
		}
		return txn.Set(currentKey(tripID), []byte(strconv.Itoa(version.Number)))
	})
	if errors.Is(err, badger.ErrConflict) {
		// A racing append won the transaction conflict check.
		return ErrConflict
	}
	return err
}

// Get returns the version with the given number.
func (s *BadgerStore) Get(ctx context.Context, tripID string, number int) (datatypes.TripVersion, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.TripVersion{}, err
	}

	var version datatypes.TripVersion
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey(tripID, number))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &version)
		})
	})
	return version, err
}

// ListVersions returns all versions of the trip ascending by number.
func (s *BadgerStore) ListVersions(ctx context.Context, tripID string) ([]datatypes.TripVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	versions := []datatypes.TripVersion{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = versionPrefix(tripID)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Keys are zero-padded, so lexicographic iteration is numeric order.
		for it.Rewind(); it.Valid(); it.Next() {
			var version datatypes.TripVersion
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &version)
			})
			if err != nil {
				return err
			}
			versions = append(versions, version)
		}
		return nil
	})
	return versions, err
}

// CurrentVersionNumber returns the highest committed version number, or 0.
func (s *BadgerStore) CurrentVersionNumber(ctx context.Context, tripID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	current := 0
	err := s.db.View(func(txn *badger.Txn) error {
		n, err := readCurrent(txn, tripID)
		if err != nil {
			return err
		}
		current = n
		return nil
	})
	return current, err
}

func readCurrent(txn *badger.Txn, tripID string) (int, error) {
	item, err := txn.Get(currentKey(tripID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	current := 0
	err = item.Value(func(val []byte) error {
		n, err := strconv.Atoi(string(val))
		if err != nil {
			return fmt.Errorf("corrupt current version for trip %s: %w", tripID, err)
		}
		current = n
		return nil
	})
	return current, err
}

// badgerSectionRecord is the stored shape of generated section content.
type badgerSectionRecord struct {
	Content datatypes.SectionContent `json:"content"`
	RunID   string                   `json:"run_id"`
}

// Save stores generated section content, overwriting any previous content.
func (s *BadgerStore) Save(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID, content datatypes.SectionContent, generatedByRunID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(badgerSectionRecord{Content: content, RunID: generatedByRunID})
	if err != nil {
		return fmt.Errorf("encode section content: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sectionKey(tripID, sectionID), payload)
	})
}

// GetSection returns the most recently saved content for a section.
func (s *BadgerStore) GetSection(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID) (datatypes.SectionContent, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.SectionContent{}, err
	}

	var record badgerSectionRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sectionKey(tripID, sectionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	return record.Content, err
}

var (
	_ SnapshotStore      = (*BadgerStore)(nil)
	_ ReportSectionStore = (*BadgerStore)(nil)
)
