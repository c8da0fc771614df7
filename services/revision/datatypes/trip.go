// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the trip revision
// service: snapshots, versions, change sets, and recalculation runs.
//
// All types in this package are plain data. Behavior lives in the diff,
// version, and recalc packages; handlers and stores exchange these types
// across package boundaries.
package datatypes

import (
	"time"
)

// TripSnapshot is an immutable mapping of field name to value representing
// trip state at a point in time.
//
// Description:
//
//	Once a snapshot has been committed as part of a TripVersion it must not
//	be mutated. Callers that need to derive a new state should Clone() and
//	modify the copy. Values are JSON-compatible: strings, numbers, bools,
//	nested maps, and slices.
//
// Thread Safety:
//
//	A TripSnapshot is not safe for concurrent mutation. Committed snapshots
//	are treated as read-only everywhere in this codebase.
type TripSnapshot map[string]any

// Clone returns a shallow copy of the snapshot.
//
// Top-level keys are copied; nested values are shared. This is sufficient
// for the commit path because committed snapshots are never mutated.
func (s TripSnapshot) Clone() TripSnapshot {
	if s == nil {
		return nil
	}
	out := make(TripSnapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FieldNames returns the set of field names present in the snapshot.
func (s TripSnapshot) FieldNames() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	return names
}

// Author identifies who created a trip version.
type Author string

const (
	// AuthorUser marks versions created by a human editor.
	AuthorUser Author = "user"

	// AuthorSystem marks versions created by the service itself
	// (e.g., restores triggered through an automated workflow).
	AuthorSystem Author = "system"

	// AuthorAI marks versions created by an AI agent.
	AuthorAI Author = "ai"
)

// Valid reports whether the author is one of the known values.
func (a Author) Valid() bool {
	switch a {
	case AuthorUser, AuthorSystem, AuthorAI:
		return true
	}
	return false
}

// TripVersion is a committed, numbered snapshot plus change metadata.
//
// Description:
//
//	Versions are immutable and totally ordered by Number. Numbers start at 1
//	and are contiguous per trip; no version is ever deleted or rewritten.
//	The trip's "current" state is the version with the highest number.
//
// Thread Safety:
//
//	TripVersion values are treated as immutable after creation.
type TripVersion struct {
	// Number is the monotonic version number, starting at 1.
	Number int `json:"number"`

	// Snapshot is the full trip state at this version.
	Snapshot TripSnapshot `json:"snapshot"`

	// CreatedAt is when the version was committed.
	CreatedAt time.Time `json:"created_at"`

	// CreatedBy attributes authorship of the version.
	CreatedBy Author `json:"created_by"`

	// ChangeSummary is a human-readable description of the edit.
	ChangeSummary string `json:"change_summary"`

	// ChangedFields lists the fields that differ from the previous version.
	// Empty for the first version of a trip.
	ChangedFields []string `json:"changed_fields"`
}

// ReportSectionID identifies one of the fixed report sections that AI
// agents generate content for.
type ReportSectionID string

const (
	SectionVisa           ReportSectionID = "visa"
	SectionDestination    ReportSectionID = "destination"
	SectionItinerary      ReportSectionID = "itinerary"
	SectionBudget         ReportSectionID = "budget"
	SectionSafety         ReportSectionID = "safety"
	SectionCulture        ReportSectionID = "culture"
	SectionPacking        ReportSectionID = "packing"
	SectionTransportation ReportSectionID = "transportation"
)

// AllSections returns the fixed roster of report sections in stable order.
func AllSections() []ReportSectionID {
	return []ReportSectionID{
		SectionVisa,
		SectionDestination,
		SectionItinerary,
		SectionBudget,
		SectionSafety,
		SectionCulture,
		SectionPacking,
		SectionTransportation,
	}
}

// Valid reports whether the section is part of the fixed roster.
func (s ReportSectionID) Valid() bool {
	for _, known := range AllSections() {
		if s == known {
			return true
		}
	}
	return false
}

// SectionContent is the generated output of one agent for one section.
type SectionContent struct {
	// SectionID identifies the report section this content belongs to.
	SectionID ReportSectionID `json:"section_id"`

	// Body is the generated content (markdown).
	Body string `json:"body"`

	// Model records which model produced the content, if known.
	Model string `json:"model,omitempty"`

	// GeneratedAt is when the content was produced.
	GeneratedAt time.Time `json:"generated_at"`
}
