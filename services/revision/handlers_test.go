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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.JobTimeout = 5 * time.Second
	svc, err := NewService(cfg, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	return svc
}

func doJSON(t *testing.T, svc *Service, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func tripSnapshot() map[string]any {
	return map[string]any{
		"title":          "Spring in Japan",
		"destination":    "Tokyo, Japan",
		"departure_date": "2027-04-10",
		"return_date":    "2027-04-24",
		"budget":         5000.0,
	}
}

// commitConfirmed commits a snapshot with confirmation and recalculation
// suppressed, returning the committed version number.
func commitConfirmed(t *testing.T, svc *Service, tripID string, snapshot map[string]any) int {
	t.Helper()
	noRecalc := false
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/"+tripID+"/commit", CommitRequest{
		Snapshot:             snapshot,
		Summary:              "test commit",
		Confirmed:            true,
		TriggerRecalculation: &noRecalc,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[CommitResponse](t, w)
	require.True(t, resp.Committed)
	require.NotNil(t, resp.Version)
	return resp.Version.Number
}

func TestHealthz(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCommitPreviewThenConfirm(t *testing.T) {
	svc := newTestService(t)

	// The first commit adds high-impact fields, so the gate asks first.
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot: tripSnapshot(),
		Summary:  "initial plan",
	})
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[CommitResponse](t, w)
	assert.False(t, preview.Committed)
	assert.True(t, preview.Decision.RequiresConfirmation)
	assert.Nil(t, preview.Version)
	assert.NotEmpty(t, preview.ChangeSet.Changes)

	// Nothing was persisted by the preview.
	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[VersionListResponse](t, w)
	assert.Zero(t, list.Current)

	// Re-submitting with confirmation commits version 1.
	noRecalc := false
	w = doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot:             tripSnapshot(),
		Summary:              "initial plan",
		Confirmed:            true,
		TriggerRecalculation: &noRecalc,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CommitResponse](t, w)
	assert.True(t, resp.Committed)
	require.NotNil(t, resp.Version)
	assert.Equal(t, 1, resp.Version.Number)
}

func TestCommitLowImpactAutoApplies(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())

	next := tripSnapshot()
	next["title"] = "Sakura Season"
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot: next,
		Summary:  "rename",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CommitResponse](t, w)
	assert.True(t, resp.Committed, "auto-apply commits without confirmation")
	assert.True(t, resp.Decision.AutoApply)
	assert.Equal(t, 2, resp.Version.Number)
	assert.Nil(t, resp.Run, "title changes affect no sections")
}

func TestCommitTriggersRecalculation(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())

	next := tripSnapshot()
	next["budget"] = 2000.0
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot:  next,
		Summary:   "cut budget",
		Confirmed: true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CommitResponse](t, w)
	require.True(t, resp.Committed)
	require.NotNil(t, resp.Run)
	assert.Equal(t, resp.Version.Number, resp.Run.TriggeringVersionNumber)
	assert.Equal(t, []datatypes.ReportSectionID{datatypes.SectionBudget}, resp.Run.Sections)

	waitRunTerminal(t, svc, resp.Run.ID)

	// The regenerated section is readable once the run finishes.
	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/sections/budget", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCommitSuppressedRecalculationIsAudited(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())

	next := tripSnapshot()
	next["budget"] = 2000.0
	noRecalc := false
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot:             next,
		Summary:              "cut budget",
		Confirmed:            true,
		TriggerRecalculation: &noRecalc,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CommitResponse](t, w)
	require.True(t, resp.Committed)
	assert.Nil(t, resp.Run)
	assert.Contains(t, resp.Version.ChangeSummary, "recalculation suppressed",
		"the override leaves an audit trail in the summary")
}

func TestCommitConcurrentModification(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())
	commitConfirmed(t, svc, "trip-1", tripSnapshot())

	stale := 1
	next := tripSnapshot()
	next["title"] = "late edit"
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot:        next,
		ExpectedVersion: &stale,
		Confirmed:       true,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "CONCURRENT_MODIFICATION", resp.Code)
}

func TestCommitValidation(t *testing.T) {
	svc := newTestService(t)

	// Missing snapshot.
	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown author.
	w = doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/commit", CommitRequest{
		Snapshot:   tripSnapshot(),
		AuthoredBy: "robot",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVersionEndpoints(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())
	next := tripSnapshot()
	next["budget"] = 4000.0
	commitConfirmed(t, svc, "trip-1", next)

	w := doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[VersionListResponse](t, w)
	assert.Equal(t, 2, list.Current)
	assert.Len(t, list.Versions, 2)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/versions/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/versions/zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareEndpoint(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())
	next := tripSnapshot()
	next["budget"] = 2000.0
	commitConfirmed(t, svc, "trip-1", next)

	w := doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/compare?from=1&to=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cs := decode[datatypes.ChangeSet](t, w)
	require.Len(t, cs.Changes, 1)
	assert.Equal(t, "budget", cs.Changes[0].Field)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/compare?from=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/compare?from=1&to=9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestoreEndpoint(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())
	next := tripSnapshot()
	next["destination"] = "Osaka, Japan"
	commitConfirmed(t, svc, "trip-1", next)

	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/restore", RestoreRequest{
		ToVersion: 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RestoreResponse](t, w)
	assert.Equal(t, 3, resp.Version.Number)
	assert.Equal(t, "Tokyo, Japan", resp.Version.Snapshot["destination"])
	assert.Nil(t, resp.Run, "restore does not recalculate unless asked")

	w = doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/restore", RestoreRequest{
		ToVersion: 42,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecalculateAndRunLifecycle(t *testing.T) {
	svc := newTestService(t)
	commitConfirmed(t, svc, "trip-1", tripSnapshot())

	w := doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/recalculate", RecalculateRequest{
		Sections: []datatypes.ReportSectionID{datatypes.SectionVisa, datatypes.SectionSafety},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	run := decode[datatypes.RecalculationRun](t, w)
	assert.Len(t, run.Jobs, 2)

	final := waitRunTerminal(t, svc, run.ID)
	assert.Equal(t, datatypes.RunCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPercent)

	// Terminal runs reject cancel and retry.
	w = doJSON(t, svc, http.MethodPost, "/v1/runs/"+run.ID+"/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, svc, http.MethodPost, "/v1/runs/"+run.ID+"/retry", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRecalculateUnknownTripAndSection(t *testing.T) {
	svc := newTestService(t)

	w := doJSON(t, svc, http.MethodPost, "/v1/trips/ghost/recalculate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no versions means nothing to recalculate")

	commitConfirmed(t, svc, "trip-1", tripSnapshot())
	w = doJSON(t, svc, http.MethodPost, "/v1/trips/trip-1/recalculate", RecalculateRequest{
		Sections: []datatypes.ReportSectionID{"horoscope"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunNotFound(t *testing.T) {
	svc := newTestService(t)
	w := doJSON(t, svc, http.MethodGet, "/v1/runs/no-such-run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "RUN_NOT_FOUND", resp.Code)
}

func TestGetSectionValidation(t *testing.T) {
	svc := newTestService(t)

	w := doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/sections/horoscope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, svc, http.MethodGet, "/v1/trips/trip-1/sections/visa", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "nothing generated yet")
}

func waitRunTerminal(t *testing.T, svc *Service, runID string) datatypes.RecalculationRun {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := svc.Orchestrator().Get(runID)
		require.NoError(t, err)
		if run.Status.IsTerminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return datatypes.RecalculationRun{}
}
