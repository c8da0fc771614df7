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
	"sync"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// MemStore is an in-memory SnapshotStore and ReportSectionStore.
//
// Used in tests and as the default when no data directory is configured.
//
// Thread Safety: safe for concurrent use.
type MemStore struct {
	mu       sync.RWMutex
	versions map[string][]datatypes.TripVersion
	sections map[string]map[datatypes.ReportSectionID]sectionRecord
}

type sectionRecord struct {
	content datatypes.SectionContent
	runID   string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		versions: make(map[string][]datatypes.TripVersion),
		sections: make(map[string]map[datatypes.ReportSectionID]sectionRecord),
	}
}

// Put appends a version if its number is the next sequential number.
func (m *MemStore) Put(ctx context.Context, tripID string, version datatypes.TripVersion) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.versions[tripID]
	if version.Number != len(existing)+1 {
		return ErrConflict
	}

	// Defensive copy so later caller mutations cannot reach stored state.
	stored := version
	stored.Snapshot = version.Snapshot.Clone()
	m.versions[tripID] = append(existing, stored)
	return nil
}

// Get returns the version with the given number.
func (m *MemStore) Get(ctx context.Context, tripID string, number int) (datatypes.TripVersion, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.TripVersion{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[tripID]
	if number < 1 || number > len(versions) {
		return datatypes.TripVersion{}, ErrNotFound
	}

	v := versions[number-1]
	v.Snapshot = v.Snapshot.Clone()
	return v, nil
}

// ListVersions returns all versions ascending by number.
func (m *MemStore) ListVersions(ctx context.Context, tripID string) ([]datatypes.TripVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.versions[tripID]
	out := make([]datatypes.TripVersion, len(versions))
	for i, v := range versions {
		v.Snapshot = v.Snapshot.Clone()
		out[i] = v
	}
	return out, nil
}

// CurrentVersionNumber returns the highest version number, or 0.
func (m *MemStore) CurrentVersionNumber(ctx context.Context, tripID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.versions[tripID]), nil
}

// Save stores generated section content.
func (m *MemStore) Save(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID, content datatypes.SectionContent, generatedByRunID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byTrip, ok := m.sections[tripID]
	if !ok {
		byTrip = make(map[datatypes.ReportSectionID]sectionRecord)
		m.sections[tripID] = byTrip
	}
	byTrip[sectionID] = sectionRecord{content: content, runID: generatedByRunID}
	return nil
}

// GetSection returns the most recently saved section content.
func (m *MemStore) GetSection(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID) (datatypes.SectionContent, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.SectionContent{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.sections[tripID][sectionID]
	if !ok {
		return datatypes.SectionContent{}, ErrNotFound
	}
	return record.content, nil
}

// GeneratedByRunID returns the run that produced a section's content.
// Returns ErrNotFound when no content exists. Used by tests and the
// handlers to attribute content to runs.
func (m *MemStore) GeneratedByRunID(tripID string, sectionID datatypes.ReportSectionID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.sections[tripID][sectionID]
	if !ok {
		return "", ErrNotFound
	}
	return record.runID, nil
}

var (
	_ SnapshotStore      = (*MemStore)(nil)
	_ ReportSectionStore = (*MemStore)(nil)
)
