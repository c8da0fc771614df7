// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revision

import (
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/diff"
)

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CommitRequest is the body of POST /v1/trips/:tripId/commit.
type CommitRequest struct {
	// Snapshot is the candidate next state of the trip. Required.
	Snapshot datatypes.TripSnapshot `json:"snapshot" binding:"required"`

	// Summary describes the edit.
	Summary string `json:"summary"`

	// AuthoredBy is who made the edit. Defaults to "user".
	AuthoredBy datatypes.Author `json:"authored_by"`

	// ExpectedVersion is the version the client diffed against, for the
	// optimistic concurrency check. Omit to skip the pre-check.
	ExpectedVersion *int `json:"expected_version"`

	// Confirmed acknowledges a change the confirmation gate flagged.
	// Commits the gate flags are previewed, not applied, until the client
	// re-submits with Confirmed set.
	Confirmed bool `json:"confirmed"`

	// TriggerRecalculation overrides the change set's recalculation
	// recommendation in either direction. Suppressing a recommended
	// recalculation is recorded in the version's change summary.
	TriggerRecalculation *bool `json:"trigger_recalculation"`
}

// CommitResponse is the result of a commit or a gate preview.
type CommitResponse struct {
	// Committed is false when the gate required confirmation and the
	// request did not carry it; Version is unset in that case.
	Committed bool `json:"committed"`

	ChangeSet datatypes.ChangeSet    `json:"change_set"`
	Decision  diff.Decision          `json:"decision"`
	Version   *datatypes.TripVersion `json:"version,omitempty"`

	// Run is the recalculation run started by this commit, if any.
	Run *datatypes.RecalculationRun `json:"run,omitempty"`

	// RecalculationError reports a recalculation that could not be
	// started. The commit itself still succeeded.
	RecalculationError string `json:"recalculation_error,omitempty"`
}

// RestoreRequest is the body of POST /v1/trips/:tripId/restore.
type RestoreRequest struct {
	// ToVersion is the historical version to restore. Required, >= 1.
	ToVersion int `json:"to_version" binding:"required,min=1"`

	// AuthoredBy is recorded as the new version's author. Defaults to "user".
	AuthoredBy datatypes.Author `json:"authored_by"`

	// TriggerRecalculation starts a run over all sections after the
	// restore. Restores never recalculate implicitly.
	TriggerRecalculation bool `json:"trigger_recalculation"`
}

// RestoreResponse is the result of a restore.
type RestoreResponse struct {
	Version datatypes.TripVersion       `json:"version"`
	Run     *datatypes.RecalculationRun `json:"run,omitempty"`
}

// RecalculateRequest is the body of POST /v1/trips/:tripId/recalculate.
type RecalculateRequest struct {
	// Sections limits the run to the given sections. Empty means all.
	Sections []datatypes.ReportSectionID `json:"sections"`
}

// VersionListResponse is the body of GET /v1/trips/:tripId/versions.
type VersionListResponse struct {
	TripID   string                  `json:"trip_id"`
	Current  int                     `json:"current"`
	Versions []datatypes.TripVersion `json:"versions"`
}
