// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff implements the revision diff/impact engine: field-level
// comparison of trip snapshots, impact classification, affected-section
// mapping, warning generation, and the change confirmation gate.
//
// Everything in this package is pure and deterministic. ComputeChangeSet
// and Decide are total functions: they never fail and perform no I/O.
package diff

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// Engine computes change sets between trip states.
//
// Thread Safety: Engine is immutable after construction and safe for
// concurrent use.
type Engine struct {
	policy Policy
	rules  []warningRule
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy replaces the default classification policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithClock replaces the engine's time source. Tests use this to pin "now"
// for the date-sensitive warning rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a diff engine with the default policy and warning rules.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policy: DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = defaultWarningRules(e.policy, e.now)
	return e
}

// Policy returns the engine's classification policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ComputeChangeSet computes the field-level diff between a previous version
// and a candidate next snapshot.
//
// Description:
//
//	Iterates the union of field names present in either snapshot, skipping
//	the policy's non-semantic fields. A field counts as changed when
//	exactly one side is empty or absent, or when both sides are present
//	and not structurally equal. Values of non-comparable types are
//	compared by their string form; this lenient default means the engine
//	never fails on malformed input.
//
//	previous may be nil (first commit); every non-empty field in next is
//	then classified as added.
//
// Inputs:
//
//	previous - The committed version to diff against. May be nil.
//	next - The candidate next snapshot.
//
// Outputs:
//
//	datatypes.ChangeSet - The deterministic diff plus impact metadata.
//	  Never persisted; recomputed on demand.
func (e *Engine) ComputeChangeSet(previous *datatypes.TripVersion, next datatypes.TripSnapshot) datatypes.ChangeSet {
	var prev datatypes.TripSnapshot
	if previous != nil {
		prev = previous.Snapshot
	}

	fields := unionFields(prev, next)

	var changes []datatypes.FieldChange
	for _, field := range fields {
		if e.policy.Skip(field) {
			continue
		}

		oldVal, oldOK := prev[field]
		newVal, newOK := next[field]
		oldEmpty := !oldOK || isEmpty(oldVal)
		newEmpty := !newOK || isEmpty(newVal)

		var kind datatypes.ChangeKind
		switch {
		case oldEmpty && newEmpty:
			continue
		case oldEmpty:
			kind = datatypes.ChangeAdded
		case newEmpty:
			kind = datatypes.ChangeRemoved
		default:
			if structurallyEqual(oldVal, newVal) {
				continue
			}
			kind = datatypes.ChangeModified
		}

		changes = append(changes, datatypes.FieldChange{
			Field:       field,
			Label:       e.policy.Label(field),
			Kind:        kind,
			OldValue:    oldVal,
			NewValue:    newVal,
			ImpactLevel: e.policy.Impact(field),
		})
	}

	sections := e.affectedSections(changes)

	cs := datatypes.ChangeSet{
		Changes:               changes,
		AffectedSections:      sections,
		RequiresRecalculation: len(sections) > 0,
		ImpactSummary:         impactSummary(changes),
	}

	if cs.RequiresRecalculation {
		cs.EstimatedRecalcSeconds = e.estimateSeconds(sections)
	}

	for _, rule := range e.rules {
		if warning, ok := rule(changes); ok {
			cs.Warnings = append(cs.Warnings, warning)
		}
	}

	return cs
}

// affectedSections returns the union of the section mappings of all changed
// fields, deduplicated, in roster order.
func (e *Engine) affectedSections(changes []datatypes.FieldChange) []datatypes.ReportSectionID {
	seen := make(map[datatypes.ReportSectionID]bool)
	for _, c := range changes {
		for _, section := range e.policy.FieldSections[c.Field] {
			seen[section] = true
		}
	}

	var out []datatypes.ReportSectionID
	for _, section := range datatypes.AllSections() {
		if seen[section] {
			out = append(out, section)
		}
	}
	return out
}

// estimateSeconds sums the per-section cost table with a minimum floor.
func (e *Engine) estimateSeconds(sections []datatypes.ReportSectionID) int {
	total := 0
	for _, section := range sections {
		total += e.policy.SectionCostSeconds[section]
	}
	if total < e.policy.MinimumRecalcSeconds {
		total = e.policy.MinimumRecalcSeconds
	}
	return total
}

// impactSummary renders a single sentence from the impact-level counts,
// e.g. "2 high-impact and 1 medium-impact change detected".
func impactSummary(changes []datatypes.FieldChange) string {
	if len(changes) == 0 {
		return "No changes detected"
	}

	high, medium, low := 0, 0, 0
	for _, c := range changes {
		switch c.ImpactLevel {
		case datatypes.ImpactHigh:
			high++
		case datatypes.ImpactMedium:
			medium++
		default:
			low++
		}
	}

	var parts []string
	if high > 0 {
		parts = append(parts, fmt.Sprintf("%d high-impact", high))
	}
	if medium > 0 {
		parts = append(parts, fmt.Sprintf("%d medium-impact", medium))
	}
	if low > 0 {
		parts = append(parts, fmt.Sprintf("%d low-impact", low))
	}

	total := high + medium + low
	noun := "change"
	if total > 1 {
		noun = "changes"
	}

	switch len(parts) {
	case 1:
		return fmt.Sprintf("%s %s detected", parts[0], noun)
	case 2:
		return fmt.Sprintf("%s and %s %s detected", parts[0], parts[1], noun)
	default:
		return fmt.Sprintf("%s, %s, and %s %s detected", parts[0], parts[1], parts[2], noun)
	}
}

// unionFields returns the sorted union of field names in both snapshots.
// Sorting keeps ComputeChangeSet deterministic.
func unionFields(a, b datatypes.TripSnapshot) []string {
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}

	fields := make([]string, 0, len(seen))
	for k := range seen {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// isEmpty reports whether a value counts as absent: nil, an empty string,
// or an empty map/slice.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.String, reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// structurallyEqual compares two values structurally, falling back to
// string-form comparison when the dynamic types differ. The fallback keeps
// JSON round-trips (int vs float64) and malformed inputs from producing
// spurious changes or errors.
func structurallyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return fmt.Sprint(a) == fmt.Sprint(b)
	}
	return false
}
