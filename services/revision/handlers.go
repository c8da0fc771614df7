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
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/diff"
	"github.com/AleutianAI/TripSmith/services/revision/recalc"
	"github.com/AleutianAI/TripSmith/services/revision/store"
	"github.com/AleutianAI/TripSmith/services/revision/version"
)

// suppressedRecalcNote is appended to the change summary when the caller
// suppresses a recalculation the change set recommends. The note makes
// the override auditable from history alone.
const suppressedRecalcNote = " [recalculation suppressed by caller]"

// Handlers holds the HTTP handlers for the revision service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers backed by the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: svc.logger.With(slog.String("component", "revision_handlers")),
	}
}

// writeError maps domain errors to HTTP status codes.
//
// Mapping: not found 404, concurrent modification 409, already running
// 409, invalid run state 422, empty section list 400, everything else 500.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, version.ErrConcurrentModification):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CONCURRENT_MODIFICATION"})
	case errors.Is(err, recalc.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "ALREADY_RUNNING"})
	case errors.Is(err, recalc.ErrRunNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
	case errors.Is(err, recalc.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: "INVALID_STATE"})
	case errors.Is(err, recalc.ErrNoSections):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "NO_SECTIONS"})
	default:
		h.logger.Error("request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
	}
}

// HandleCommit handles POST /v1/trips/:tripId/commit.
//
// Description:
//
//	Diffs the submitted snapshot against the trip's current version and
//	runs the change confirmation gate. When the gate requires
//	confirmation and the request is not confirmed, the change set and
//	decision are returned as a preview and nothing is committed.
//	Otherwise the version is committed and, unless suppressed, a
//	recalculation run is started over the affected sections.
//
// Response:
//
//	200 OK: CommitResponse (preview or committed)
//	400 Bad Request: invalid body or author
//	409 Conflict: concurrent modification
func (h *Handlers) HandleCommit(c *gin.Context) {
	tripID := c.Param("tripId")

	var req CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if req.AuthoredBy == "" {
		req.AuthoredBy = datatypes.AuthorUser
	}
	if !req.AuthoredBy.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown author: " + string(req.AuthoredBy), Code: "INVALID_AUTHOR"})
		return
	}

	ctx := c.Request.Context()

	var previous *datatypes.TripVersion
	current, err := h.svc.manager.CurrentVersion(ctx, tripID)
	switch {
	case err == nil:
		previous = &current
	case errors.Is(err, store.ErrNotFound):
		// First commit for this trip.
	default:
		h.writeError(c, err)
		return
	}

	cs := h.svc.engine.ComputeChangeSet(previous, req.Snapshot)
	decision := diff.Decide(cs)

	if decision.RequiresConfirmation && !req.Confirmed {
		c.JSON(http.StatusOK, CommitResponse{
			Committed: false,
			ChangeSet: cs,
			Decision:  decision,
		})
		return
	}

	triggerRecalc := cs.RequiresRecalculation
	summary := req.Summary
	if req.TriggerRecalculation != nil {
		triggerRecalc = *req.TriggerRecalculation
		if !triggerRecalc && cs.RequiresRecalculation {
			summary += suppressedRecalcNote
		}
	}

	expected := version.NoExpectedVersion
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}

	committed, err := h.svc.manager.Commit(ctx, tripID, req.Snapshot, req.AuthoredBy, summary, expected)
	if err != nil {
		if errors.Is(err, version.ErrConcurrentModification) {
			h.svc.metrics.CommitConflictsTotal.Inc()
		}
		h.writeError(c, err)
		return
	}
	h.svc.metrics.VersionsCommittedTotal.WithLabelValues(string(req.AuthoredBy)).Inc()

	resp := CommitResponse{
		Committed: true,
		ChangeSet: cs,
		Decision:  decision,
		Version:   &committed,
	}

	if triggerRecalc && len(cs.AffectedSections) > 0 {
		run, err := h.svc.orchestrator.Start(tripID, committed.Number, cs.AffectedSections, committed.Snapshot)
		if err != nil {
			// The version is durable either way; surface the failure
			// without failing the commit.
			resp.RecalculationError = err.Error()
		} else {
			resp.Run = &run
		}
	}

	c.JSON(http.StatusOK, resp)
}

// HandleListVersions handles GET /v1/trips/:tripId/versions.
func (h *Handlers) HandleListVersions(c *gin.Context) {
	tripID := c.Param("tripId")

	versions, err := h.svc.manager.ListVersions(c.Request.Context(), tripID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	current := 0
	if len(versions) > 0 {
		current = versions[len(versions)-1].Number
	}
	c.JSON(http.StatusOK, VersionListResponse{
		TripID:   tripID,
		Current:  current,
		Versions: versions,
	})
}

// HandleGetVersion handles GET /v1/trips/:tripId/versions/:number.
func (h *Handlers) HandleGetVersion(c *gin.Context) {
	tripID := c.Param("tripId")
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "version number must be a positive integer", Code: "INVALID_VERSION"})
		return
	}

	v, err := h.svc.manager.GetVersion(c.Request.Context(), tripID, number)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// HandleCompare handles GET /v1/trips/:tripId/compare?from=N&to=M.
func (h *Handlers) HandleCompare(c *gin.Context) {
	tripID := c.Param("tripId")
	from, errFrom := strconv.Atoi(c.Query("from"))
	to, errTo := strconv.Atoi(c.Query("to"))
	if errFrom != nil || errTo != nil || from < 1 || to < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "from and to must be positive integers", Code: "INVALID_VERSION"})
		return
	}

	cs, err := h.svc.manager.Compare(c.Request.Context(), tripID, from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// HandleRestore handles POST /v1/trips/:tripId/restore.
//
// Restores never recalculate implicitly; the client opts in via
// TriggerRecalculation, which regenerates every section.
func (h *Handlers) HandleRestore(c *gin.Context) {
	tripID := c.Param("tripId")

	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if req.AuthoredBy == "" {
		req.AuthoredBy = datatypes.AuthorUser
	}
	if !req.AuthoredBy.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown author: " + string(req.AuthoredBy), Code: "INVALID_AUTHOR"})
		return
	}

	restored, err := h.svc.manager.Restore(c.Request.Context(), tripID, req.ToVersion, req.AuthoredBy)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := RestoreResponse{Version: restored}
	if req.TriggerRecalculation {
		run, err := h.svc.orchestrator.Start(tripID, restored.Number, datatypes.AllSections(), restored.Snapshot)
		if err != nil {
			h.writeError(c, err)
			return
		}
		resp.Run = &run
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRecalculate handles POST /v1/trips/:tripId/recalculate.
//
// Starts a run over the requested sections (all sections when the body
// omits them) against the trip's current version.
func (h *Handlers) HandleRecalculate(c *gin.Context) {
	tripID := c.Param("tripId")

	// An absent body means "all sections".
	var req RecalculateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
			return
		}
	}

	sections := req.Sections
	if len(sections) == 0 {
		sections = datatypes.AllSections()
	}
	for _, s := range sections {
		if !s.Valid() {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown section: " + string(s), Code: "INVALID_SECTION"})
			return
		}
	}

	current, err := h.svc.manager.CurrentVersion(c.Request.Context(), tripID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	run, err := h.svc.orchestrator.Start(tripID, current.Number, sections, current.Snapshot)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// HandleGetRun handles GET /v1/runs/:runId.
func (h *Handlers) HandleGetRun(c *gin.Context) {
	run, err := h.svc.orchestrator.Get(c.Param("runId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleCancelRun handles POST /v1/runs/:runId/cancel.
//
// Cancellation is cooperative: the response reflects the run state at
// the time of the request, and the run settles to cancelled once its
// in-flight jobs wind down.
func (h *Handlers) HandleCancelRun(c *gin.Context) {
	runID := c.Param("runId")
	if err := h.svc.orchestrator.Cancel(runID); err != nil {
		h.writeError(c, err)
		return
	}
	run, err := h.svc.orchestrator.Get(runID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// HandleRetryRun handles POST /v1/runs/:runId/retry.
func (h *Handlers) HandleRetryRun(c *gin.Context) {
	run, err := h.svc.orchestrator.RetryFailed(c.Param("runId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, run)
}

// HandleGetSection handles GET /v1/trips/:tripId/sections/:sectionId.
func (h *Handlers) HandleGetSection(c *gin.Context) {
	tripID := c.Param("tripId")
	sectionID := datatypes.ReportSectionID(c.Param("sectionId"))
	if !sectionID.Valid() {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown section: " + string(sectionID), Code: "INVALID_SECTION"})
		return
	}

	content, err := h.svc.sections.GetSection(c.Request.Context(), tripID, sectionID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}
