// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version implements the version manager: append-only trip history
// with optimistic concurrency, restore-as-new-version, and compare.
package version

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/diff"
	"github.com/AleutianAI/TripSmith/services/revision/store"
)

// ErrNotFound is returned when a trip or version does not exist.
var ErrNotFound = store.ErrNotFound

// ErrConcurrentModification is returned when a commit raced another commit
// for the same trip. The caller must re-diff against the new current
// version and retry the edit.
var ErrConcurrentModification = errors.New("concurrent modification")

// NoExpectedVersion disables the optimistic pre-check in Commit. The
// store's atomic append still protects against races.
const NoExpectedVersion = -1

// Manager creates and reads trip versions.
//
// Description:
//
//	Versions are append-only: restore creates a new version whose snapshot
//	equals an earlier one rather than rewinding history. Commit ordering
//	per trip is enforced by the optimistic expected-previous check plus the
//	store's atomic append; concurrent committers racing on the same trip
//	see exactly one success and one ErrConcurrentModification.
//
// Thread Safety: safe for concurrent use.
type Manager struct {
	store  store.SnapshotStore
	engine *diff.Engine
	logger *slog.Logger
	clock  func() time.Time
}

// NewManager creates a version manager.
//
// Inputs:
//
//	snapshots - Backing store. Must not be nil.
//	engine - Diff engine used to compute changed fields. Must not be nil.
//	logger - Logger for commit events. If nil, uses slog.Default().
func NewManager(snapshots store.SnapshotStore, engine *diff.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  snapshots,
		engine: engine,
		logger: logger.With(slog.String("component", "version_manager")),
		clock:  time.Now,
	}
}

// Commit appends a new version for the trip.
//
// Description:
//
//	Assigns the next sequential version number, computes the changed
//	fields against the current version via the diff engine, and persists
//	the version. When expectedPrevious is not NoExpectedVersion, the
//	commit fails with ErrConcurrentModification if another commit raced
//	past it. The store's atomic append closes the remaining window, so
//	the check-then-append is race-free end to end.
//
// Inputs:
//
//	ctx - Context for store I/O.
//	tripID - The trip being edited.
//	snapshot - The candidate next state. Cloned before storage.
//	authoredBy - Who made the edit (user, system, ai).
//	summary - Human-readable description of the edit.
//	expectedPrevious - The version number the caller diffed against, or
//	  NoExpectedVersion to skip the pre-check.
//
// Outputs:
//
//	datatypes.TripVersion - The committed version.
//	error - ErrConcurrentModification if the commit raced.
func (m *Manager) Commit(ctx context.Context, tripID string, snapshot datatypes.TripSnapshot, authoredBy datatypes.Author, summary string, expectedPrevious int) (datatypes.TripVersion, error) {
	current, err := m.store.CurrentVersionNumber(ctx, tripID)
	if err != nil {
		return datatypes.TripVersion{}, fmt.Errorf("read current version for trip %s: %w", tripID, err)
	}

	if expectedPrevious != NoExpectedVersion && expectedPrevious != current {
		return datatypes.TripVersion{}, fmt.Errorf("%w: expected version %d, current is %d",
			ErrConcurrentModification, expectedPrevious, current)
	}

	var previous *datatypes.TripVersion
	if current > 0 {
		v, err := m.store.Get(ctx, tripID, current)
		if err != nil {
			return datatypes.TripVersion{}, fmt.Errorf("read version %d for trip %s: %w", current, tripID, err)
		}
		previous = &v
	}

	cs := m.engine.ComputeChangeSet(previous, snapshot)

	version := datatypes.TripVersion{
		Number:        current + 1,
		Snapshot:      snapshot.Clone(),
		CreatedAt:     m.clock(),
		CreatedBy:     authoredBy,
		ChangeSummary: summary,
		ChangedFields: cs.ChangedFieldNames(),
	}

	if err := m.store.Put(ctx, tripID, version); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return datatypes.TripVersion{}, fmt.Errorf("%w: version %d already committed",
				ErrConcurrentModification, version.Number)
		}
		return datatypes.TripVersion{}, fmt.Errorf("persist version %d for trip %s: %w", version.Number, tripID, err)
	}

	m.logger.Info("version committed",
		slog.String("trip_id", tripID),
		slog.Int("number", version.Number),
		slog.String("author", string(authoredBy)),
		slog.Int("changed_fields", len(version.ChangedFields)),
	)

	return version, nil
}

// GetVersion returns the version with the given number.
func (m *Manager) GetVersion(ctx context.Context, tripID string, number int) (datatypes.TripVersion, error) {
	return m.store.Get(ctx, tripID, number)
}

// CurrentVersion returns the trip's current (highest-numbered) version,
// or ErrNotFound when the trip has no versions.
func (m *Manager) CurrentVersion(ctx context.Context, tripID string) (datatypes.TripVersion, error) {
	current, err := m.store.CurrentVersionNumber(ctx, tripID)
	if err != nil {
		return datatypes.TripVersion{}, err
	}
	if current == 0 {
		return datatypes.TripVersion{}, ErrNotFound
	}
	return m.store.Get(ctx, tripID, current)
}

// ListVersions returns all versions of the trip ascending by number.
func (m *Manager) ListVersions(ctx context.Context, tripID string) ([]datatypes.TripVersion, error) {
	return m.store.ListVersions(ctx, tripID)
}

// Restore creates a new version whose snapshot equals an earlier version's.
//
// Description:
//
//	History is strictly append-only: restoring never rewinds. The caller
//	decides whether to trigger recalculation afterward; restore itself
//	does not.
//
// Inputs:
//
//	ctx - Context for store I/O.
//	tripID - The trip to restore.
//	toVersionNumber - The historical version whose snapshot is restored.
//	actor - Recorded as the new version's author.
//
// Outputs:
//
//	datatypes.TripVersion - The newly created version.
//	error - ErrNotFound if the target version does not exist.
func (m *Manager) Restore(ctx context.Context, tripID string, toVersionNumber int, actor datatypes.Author) (datatypes.TripVersion, error) {
	target, err := m.store.Get(ctx, tripID, toVersionNumber)
	if err != nil {
		return datatypes.TripVersion{}, err
	}

	summary := fmt.Sprintf("Restored to version %d", toVersionNumber)
	return m.Commit(ctx, tripID, target.Snapshot, actor, summary, NoExpectedVersion)
}

// Compare fetches two versions and computes the change set between them.
//
// By convention the lower number is supplied as numberA and treated as the
// "old" side; the manager honors whatever ordering the caller passes.
func (m *Manager) Compare(ctx context.Context, tripID string, numberA, numberB int) (datatypes.ChangeSet, error) {
	old, err := m.store.Get(ctx, tripID, numberA)
	if err != nil {
		return datatypes.ChangeSet{}, err
	}
	next, err := m.store.Get(ctx, tripID, numberB)
	if err != nil {
		return datatypes.ChangeSet{}, err
	}
	return m.engine.ComputeChangeSet(&old, next.Snapshot), nil
}
