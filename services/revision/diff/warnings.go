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
	"time"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// warningRule inspects the full change list and emits zero or one warning.
// Rules are additive and order-independent.
type warningRule func(changes []datatypes.FieldChange) (string, bool)

// dateLayouts are the formats accepted for date-valued fields.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
}

// defaultWarningRules returns the built-in rule set.
func defaultWarningRules(policy Policy, now func() time.Time) []warningRule {
	return []warningRule{
		imminentDepartureRule(now),
		destinationChangedRule,
		budgetReducedRule,
		invertedDatesRule,
	}
}

// imminentDepartureRule warns when the departure date moves to within 7
// days of now; visa processing may need to be expedited.
func imminentDepartureRule(now func() time.Time) warningRule {
	return func(changes []datatypes.FieldChange) (string, bool) {
		c, ok := findChange(changes, "departure_date")
		if !ok {
			return "", false
		}
		departure, ok := parseDate(c.NewValue)
		if !ok {
			return "", false
		}
		until := departure.Sub(now())
		if until >= 0 && until <= 7*24*time.Hour {
			return "Departure date changed to within 7 days: expedited visa processing may be required", true
		}
		return "", false
	}
}

// destinationChangedRule warns that a destination change regenerates every
// downstream section.
func destinationChangedRule(changes []datatypes.FieldChange) (string, bool) {
	if _, ok := findChange(changes, "destination"); ok {
		return "Destination changed: all report sections will be regenerated", true
	}
	return "", false
}

// budgetReducedRule warns when the budget is cut by more than 30%.
func budgetReducedRule(changes []datatypes.FieldChange) (string, bool) {
	c, ok := findChange(changes, "budget")
	if !ok || c.Kind != datatypes.ChangeModified {
		return "", false
	}
	oldBudget, okOld := toFloat(c.OldValue)
	newBudget, okNew := toFloat(c.NewValue)
	if !okOld || !okNew || oldBudget <= 0 || newBudget >= oldBudget {
		return "", false
	}
	cut := (oldBudget - newBudget) / oldBudget
	if cut > 0.3 {
		return fmt.Sprintf("Budget reduced by %.0f%%: existing recommendations may exceed the new budget", cut*100), true
	}
	return "", false
}

// invertedDatesRule warns when the changed dates place the return before
// the departure.
func invertedDatesRule(changes []datatypes.FieldChange) (string, bool) {
	dep, depOK := findChange(changes, "departure_date")
	ret, retOK := findChange(changes, "return_date")
	if !depOK && !retOK {
		return "", false
	}

	var departure, returnDate time.Time
	var haveDep, haveRet bool
	if depOK {
		departure, haveDep = parseDate(dep.NewValue)
	}
	if retOK {
		returnDate, haveRet = parseDate(ret.NewValue)
	}
	if haveDep && haveRet && returnDate.Before(departure) {
		return "Return date is before the departure date", true
	}
	return "", false
}

func findChange(changes []datatypes.FieldChange, field string) (datatypes.FieldChange, bool) {
	for _, c := range changes {
		if c.Field == field {
			return c, true
		}
	}
	return datatypes.FieldChange{}, false
}

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
