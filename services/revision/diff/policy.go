// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// Policy holds the static tables that drive diff classification: per-field
// impact levels, the field-to-section dependency map, human-readable field
// labels, the non-semantic skip set, and per-section recalculation costs.
//
// Policy is data, not control flow. Deployments can override individual
// entries from a YAML file via LoadPolicyFile without touching the engine.
type Policy struct {
	// ImpactLevels maps field name to impact severity.
	// Fields not listed default to low.
	ImpactLevels map[string]datatypes.ImpactLevel `yaml:"impact_levels"`

	// FieldSections maps field name to the report sections that depend on
	// it. Fields with no entry affect no sections.
	FieldSections map[string][]datatypes.ReportSectionID `yaml:"field_sections"`

	// FieldLabels maps field name to a human-readable label.
	// Fields not listed fall back to the raw field name.
	FieldLabels map[string]string `yaml:"field_labels"`

	// SkipFields are non-semantic fields excluded from comparison
	// (identifiers, audit timestamps).
	SkipFields []string `yaml:"skip_fields"`

	// SectionCostSeconds is the per-section recalculation cost estimate.
	SectionCostSeconds map[datatypes.ReportSectionID]int `yaml:"section_cost_seconds"`

	// MinimumRecalcSeconds is the floor applied to the summed estimate
	// whenever recalculation is required.
	MinimumRecalcSeconds int `yaml:"minimum_recalc_seconds"`
}

// DefaultPolicy returns the built-in classification tables.
//
// Description:
//
//	Date, budget, destination, and nationality changes are high impact;
//	preference and style fields are medium; cosmetic fields (title, notes)
//	are low. Destination feeds every section, which is why changing it
//	regenerates the whole report.
func DefaultPolicy() Policy {
	return Policy{
		ImpactLevels: map[string]datatypes.ImpactLevel{
			"destination":              datatypes.ImpactHigh,
			"departure_date":           datatypes.ImpactHigh,
			"return_date":              datatypes.ImpactHigh,
			"budget":                   datatypes.ImpactHigh,
			"nationality":              datatypes.ImpactHigh,
			"travelers":                datatypes.ImpactMedium,
			"travel_style":             datatypes.ImpactMedium,
			"interests":                datatypes.ImpactMedium,
			"dietary_preferences":      datatypes.ImpactMedium,
			"accommodation_preference": datatypes.ImpactMedium,
			"title":                    datatypes.ImpactLow,
			"notes":                    datatypes.ImpactLow,
		},
		FieldSections: map[string][]datatypes.ReportSectionID{
			"destination": datatypes.AllSections(),
			"departure_date": {
				datatypes.SectionVisa,
				datatypes.SectionItinerary,
				datatypes.SectionPacking,
				datatypes.SectionTransportation,
			},
			"return_date": {
				datatypes.SectionItinerary,
				datatypes.SectionBudget,
				datatypes.SectionTransportation,
			},
			"budget": {
				datatypes.SectionBudget,
			},
			"nationality": {
				datatypes.SectionVisa,
			},
			"travelers": {
				datatypes.SectionItinerary,
				datatypes.SectionBudget,
			},
			"travel_style": {
				datatypes.SectionItinerary,
				datatypes.SectionCulture,
				datatypes.SectionPacking,
			},
			"interests": {
				datatypes.SectionDestination,
				datatypes.SectionItinerary,
				datatypes.SectionCulture,
			},
			"dietary_preferences": {
				datatypes.SectionCulture,
			},
			"accommodation_preference": {
				datatypes.SectionItinerary,
				datatypes.SectionBudget,
			},
		},
		FieldLabels: map[string]string{
			"destination":              "Destination",
			"departure_date":           "Departure Date",
			"return_date":              "Return Date",
			"budget":                   "Budget",
			"nationality":              "Nationality",
			"travelers":                "Travelers",
			"travel_style":             "Travel Style",
			"interests":                "Interests",
			"dietary_preferences":      "Dietary Preferences",
			"accommodation_preference": "Accommodation Preference",
			"title":                    "Trip Title",
			"notes":                    "Notes",
		},
		SkipFields: []string{
			"id",
			"trip_id",
			"user_id",
			"created_at",
			"updated_at",
		},
		SectionCostSeconds: map[datatypes.ReportSectionID]int{
			datatypes.SectionVisa:           20,
			datatypes.SectionDestination:    15,
			datatypes.SectionItinerary:      30,
			datatypes.SectionBudget:         15,
			datatypes.SectionSafety:         10,
			datatypes.SectionCulture:        10,
			datatypes.SectionPacking:        8,
			datatypes.SectionTransportation: 12,
		},
		MinimumRecalcSeconds: 10,
	}
}

// Label returns the human-readable label for a field, falling back to the
// raw field name.
func (p Policy) Label(field string) string {
	if label, ok := p.FieldLabels[field]; ok {
		return label
	}
	return field
}

// Impact returns the impact level for a field, defaulting to low.
func (p Policy) Impact(field string) datatypes.ImpactLevel {
	if level, ok := p.ImpactLevels[field]; ok {
		return level
	}
	return datatypes.ImpactLow
}

// Skip reports whether the field is excluded from comparison.
func (p Policy) Skip(field string) bool {
	for _, f := range p.SkipFields {
		if f == field {
			return true
		}
	}
	return false
}

// LoadPolicyFile reads a YAML policy override file and merges it over the
// built-in defaults.
//
// Description:
//
//	Only keys present in the file replace defaults; maps are merged entry
//	by entry so a deployment can, for example, bump a single field to high
//	impact without restating the full table. An empty path returns the
//	defaults unchanged.
//
// Inputs:
//
//	path - Path to a YAML file matching the Policy yaml tags.
//
// Outputs:
//
//	Policy - The merged policy.
//	error - Non-nil if the file cannot be read or parsed.
func LoadPolicyFile(path string) (Policy, error) {
	base := DefaultPolicy()
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file %s: %w", path, err)
	}

	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}

	for field, level := range override.ImpactLevels {
		base.ImpactLevels[field] = level
	}
	for field, sections := range override.FieldSections {
		base.FieldSections[field] = sections
	}
	for field, label := range override.FieldLabels {
		base.FieldLabels[field] = label
	}
	if len(override.SkipFields) > 0 {
		base.SkipFields = override.SkipFields
	}
	for section, cost := range override.SectionCostSeconds {
		base.SectionCostSeconds[section] = cost
	}
	if override.MinimumRecalcSeconds > 0 {
		base.MinimumRecalcSeconds = override.MinimumRecalcSeconds
	}

	return base, nil
}
