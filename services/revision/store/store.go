// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistence boundary for trip versions and
// generated report sections, with an in-memory implementation for tests
// and a BadgerDB-backed implementation for production.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// ErrNotFound is returned when a trip, version, or section does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by Put when the version number is not the next
// sequential number for the trip. The version manager surfaces this as a
// concurrent modification.
var ErrConflict = errors.New("version number conflict")

// SnapshotStore is the append-only, versioned storage of trip field sets.
//
// Description:
//
//	The store is the only place that knows "current" vs "historical" state.
//	Put must provide atomic append semantics: a version is accepted only
//	when its number is exactly currentVersionNumber+1, and two racing
//	appends for the same trip must not both succeed.
//
// Thread Safety: implementations must be safe for concurrent use.
type SnapshotStore interface {
	// Put appends a version. Returns ErrConflict when version.Number is
	// not the next sequential number for the trip.
	Put(ctx context.Context, tripID string, version datatypes.TripVersion) error

	// Get returns the version with the given number, or ErrNotFound.
	Get(ctx context.Context, tripID string, number int) (datatypes.TripVersion, error)

	// ListVersions returns all versions of the trip ascending by number.
	// An unknown trip yields an empty slice, not an error.
	ListVersions(ctx context.Context, tripID string) ([]datatypes.TripVersion, error)

	// CurrentVersionNumber returns the highest committed version number,
	// or 0 when the trip has no versions yet.
	CurrentVersionNumber(ctx context.Context, tripID string) (int, error)
}

// ReportSectionStore is the destination for completed agent output.
type ReportSectionStore interface {
	// Save stores generated content for a section, recording which run
	// produced it. Overwrites any previous content for the section.
	Save(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID, content datatypes.SectionContent, generatedByRunID string) error

	// GetSection returns the most recently saved content for a section,
	// or ErrNotFound.
	GetSection(ctx context.Context, tripID string, sectionID datatypes.ReportSectionID) (datatypes.SectionContent, error)
}
