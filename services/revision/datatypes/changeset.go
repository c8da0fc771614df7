// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// ImpactLevel classifies the severity of a single field change.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// ChangeKind classifies how a field changed between two snapshots.
type ChangeKind string

const (
	// ChangeAdded means the field is present only in the newer snapshot.
	ChangeAdded ChangeKind = "added"

	// ChangeRemoved means the field is present only in the older snapshot.
	ChangeRemoved ChangeKind = "removed"

	// ChangeModified means the field is present in both snapshots with
	// structurally different values.
	ChangeModified ChangeKind = "modified"
)

// FieldChange records one field whose value differs between two snapshots.
//
// A FieldChange is produced only when the old and new values are not
// structurally equal; missing-to-present and present-to-missing transitions
// count as changes.
type FieldChange struct {
	// Field is the snapshot field name.
	Field string `json:"field"`

	// Label is the human-readable name of the field.
	Label string `json:"label"`

	// Kind records whether the field was added, removed, or modified.
	Kind ChangeKind `json:"kind"`

	// OldValue is the value in the older snapshot (nil when added).
	OldValue any `json:"old_value"`

	// NewValue is the value in the newer snapshot (nil when removed).
	NewValue any `json:"new_value"`

	// ImpactLevel is the severity of this change per the impact policy.
	ImpactLevel ImpactLevel `json:"impact_level"`
}

// ChangeSet is the computed diff between two trip states plus the derived
// impact, section, and recalculation metadata.
//
// Description:
//
//	A ChangeSet is derived deterministically from a previous TripVersion and
//	a candidate next snapshot. It is never persisted; callers recompute it
//	on demand. AffectedSections is always the image of the changed fields
//	under the field-to-section policy table, deduplicated, and
//	RequiresRecalculation is true iff AffectedSections is non-empty.
type ChangeSet struct {
	// Changes lists every field whose value differs.
	Changes []FieldChange `json:"changes"`

	// AffectedSections are the report sections that depend on at least one
	// changed field, in roster order.
	AffectedSections []ReportSectionID `json:"affected_sections"`

	// RequiresRecalculation is true when at least one section is affected.
	RequiresRecalculation bool `json:"requires_recalculation"`

	// EstimatedRecalcSeconds is the summed per-section cost estimate.
	EstimatedRecalcSeconds int `json:"estimated_recalc_seconds"`

	// Warnings are human-readable advisories produced by the rule checks.
	Warnings []string `json:"warnings"`

	// ImpactSummary is a single sentence summarizing the change severity.
	ImpactSummary string `json:"impact_summary"`
}

// Empty reports whether the change set contains no field changes.
func (cs ChangeSet) Empty() bool {
	return len(cs.Changes) == 0
}

// CountByImpact returns the number of changes at each impact level.
func (cs ChangeSet) CountByImpact() (high, medium, low int) {
	for _, c := range cs.Changes {
		switch c.ImpactLevel {
		case ImpactHigh:
			high++
		case ImpactMedium:
			medium++
		default:
			low++
		}
	}
	return high, medium, low
}

// ChangedFieldNames returns the names of all changed fields in order.
func (cs ChangeSet) ChangedFieldNames() []string {
	names := make([]string, 0, len(cs.Changes))
	for _, c := range cs.Changes {
		names = append(names, c.Field)
	}
	return names
}
