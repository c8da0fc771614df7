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
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// Decision is the change confirmation gate's verdict for a change set.
type Decision struct {
	// AutoApply is true when the change may be committed without asking
	// the user.
	AutoApply bool `json:"auto_apply"`

	// RequiresConfirmation is true when the caller must obtain explicit
	// user confirmation before committing.
	RequiresConfirmation bool `json:"requires_confirmation"`
}

// Decide determines whether a change set may be applied immediately or
// needs explicit user confirmation first.
//
// Description:
//
//	Policy: an empty change set yields neither flag (nothing to apply).
//	Any high-impact change, or any change that triggers recalculation,
//	requires confirmation. Everything else may auto-apply.
//
//	The gate is advisory. Callers enforce it by blocking the commit until
//	the user confirms. Callers may suppress recalculation even when the
//	gate recommends it, but suppressing a required recalculation must be
//	recorded in the commit summary for auditability (the version manager
//	appends the override note).
//
// Decide is a total function: it never fails.
func Decide(cs datatypes.ChangeSet) Decision {
	if cs.Empty() {
		return Decision{}
	}

	for _, c := range cs.Changes {
		if c.ImpactLevel == datatypes.ImpactHigh {
			return Decision{RequiresConfirmation: true}
		}
	}
	if cs.RequiresRecalculation {
		return Decision{RequiresConfirmation: true}
	}

	return Decision{AutoApply: true}
}
