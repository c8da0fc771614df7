// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recalc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/TripSmith/services/revision/agents"
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/store"
)

const testTimeout = 10 * time.Second

func testSnapshot() datatypes.TripSnapshot {
	return datatypes.TripSnapshot{
		"destination": "Tokyo, Japan",
		"budget":      5000.0,
	}
}

func newTestOrchestrator(cfg Config, agent agents.Agent) (*Orchestrator, *store.MemStore) {
	sections := store.NewMemStore()
	o := NewOrchestrator(cfg, agents.NewUniformRegistry(agent), sections, nil, nil)
	return o, sections
}

// waitTerminal polls until the run reaches a terminal state.
func waitTerminal(t *testing.T, o *Orchestrator, runID string) datatypes.RecalculationRun {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		run, err := o.Get(runID)
		require.NoError(t, err)
		if run.Status.IsTerminal() {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach a terminal state", runID)
	return datatypes.RecalculationRun{}
}

func TestStartCreatesOneJobPerSection(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	sections := []datatypes.ReportSectionID{
		datatypes.SectionVisa,
		datatypes.SectionBudget,
	}
	run, err := o.Start("trip-1", 3, sections, testSnapshot())
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, "trip-1", run.TripID)
	assert.Equal(t, 3, run.TriggeringVersionNumber)
	assert.Len(t, run.Jobs, 2)
	assert.Contains(t, run.Jobs, datatypes.AgentVisaIntelligence)
	assert.Contains(t, run.Jobs, datatypes.AgentBudgetOptimizer)

	final := waitTerminal(t, o, run.ID)
	assert.Equal(t, datatypes.RunCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPercent)
}

func TestStartRejectsEmptySections(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	_, err := o.Start("trip-1", 1, nil, testSnapshot())
	assert.ErrorIs(t, err, ErrNoSections)
}

func TestStartEnforcesPerTripExclusivity(t *testing.T) {
	agent := agents.NewScriptedAgent()
	agent.Delay = 100 * time.Millisecond
	o, _ := newTestOrchestrator(Config{}, agent)

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)

	_, err = o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// A different trip is unaffected.
	other, err := o.Start("trip-2", 1, []datatypes.ReportSectionID{datatypes.SectionVisa}, testSnapshot())
	require.NoError(t, err)

	waitTerminal(t, o, run.ID)
	waitTerminal(t, o, other.ID)

	// Exclusivity lifts once the run is terminal.
	again, err := o.Start("trip-1", 2, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)
	waitTerminal(t, o, again.ID)
}

func TestCompletedRunSavesAllSections(t *testing.T) {
	o, sections := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)
	final := waitTerminal(t, o, run.ID)

	require.Equal(t, datatypes.RunCompleted, final.Status)
	for _, sectionID := range datatypes.AllSections() {
		content, err := sections.GetSection(context.Background(), "trip-1", sectionID)
		require.NoError(t, err, "section %s", sectionID)
		assert.NotEmpty(t, content.Body)

		runID, err := sections.GeneratedByRunID("trip-1", sectionID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, runID)
	}
}

func TestPersistentFailureScenario(t *testing.T) {
	agent := agents.NewScriptedAgent()
	// Visa fails every attempt; the other seven succeed.
	agent.FailuresPerSection[datatypes.SectionVisa] = -1
	o, sections := newTestOrchestrator(Config{MaxRetries: 2}, agent)

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)
	final := waitTerminal(t, o, run.ID)

	assert.Equal(t, datatypes.RunFailed, final.Status)
	assert.NotEmpty(t, final.Error)
	assert.Less(t, final.ProgressPercent, 100, "failed runs never report 100")

	visaJob := final.Jobs[datatypes.AgentVisaIntelligence]
	assert.Equal(t, datatypes.JobFailed, visaJob.Status)
	assert.Equal(t, 2, visaJob.RetryCount)
	assert.NotEmpty(t, visaJob.LastError)

	// Initial attempt plus two retries.
	assert.Equal(t, 3, agent.Calls(datatypes.SectionVisa))

	// Partial success is preserved: seven sections have content, visa none.
	for _, sectionID := range datatypes.AllSections() {
		_, err := sections.GetSection(context.Background(), "trip-1", sectionID)
		if sectionID == datatypes.SectionVisa {
			assert.ErrorIs(t, err, store.ErrNotFound)
		} else {
			assert.NoError(t, err, "section %s", sectionID)
		}
	}
}

func TestTransientFailureRecoversWithinBudget(t *testing.T) {
	agent := agents.NewScriptedAgent()
	// Two failures, then success: exactly exhausts but survives MaxRetries 2.
	agent.FailuresPerSection[datatypes.SectionBudget] = 2
	o, _ := newTestOrchestrator(Config{MaxRetries: 2}, agent)

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionBudget}, testSnapshot())
	require.NoError(t, err)
	final := waitTerminal(t, o, run.ID)

	assert.Equal(t, datatypes.RunCompleted, final.Status)
	job := final.Jobs[datatypes.AgentBudgetOptimizer]
	assert.Equal(t, datatypes.JobCompleted, job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Equal(t, 3, agent.Calls(datatypes.SectionBudget))
}

func TestRetryFailedRequeuesOnlyFailedJobs(t *testing.T) {
	agent := agents.NewScriptedAgent()
	agent.FailuresPerSection[datatypes.SectionVisa] = -1
	o, _ := newTestOrchestrator(Config{MaxRetries: 1}, agent)

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)
	failed := waitTerminal(t, o, run.ID)
	require.Equal(t, datatypes.RunFailed, failed.Status)

	completedCallsBefore := agent.Calls(datatypes.SectionBudget)

	// Clear the fault, then retry.
	agent.FailuresPerSection[datatypes.SectionVisa] = agent.Calls(datatypes.SectionVisa)
	requeued, err := o.RetryFailed(run.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.RunProcessing, requeued.Status)

	final := waitTerminal(t, o, run.ID)
	assert.Equal(t, datatypes.RunCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPercent)

	// Completed jobs were not re-run.
	assert.Equal(t, completedCallsBefore, agent.Calls(datatypes.SectionBudget))
}

func TestRetryFailedRejectsNonFailedRuns(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionVisa}, testSnapshot())
	require.NoError(t, err)
	final := waitTerminal(t, o, run.ID)
	require.Equal(t, datatypes.RunCompleted, final.Status)

	_, err = o.RetryFailed(run.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = o.RetryFailed("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCancelPreservesCompletedWork(t *testing.T) {
	started := make(chan datatypes.ReportSectionID, 16)
	agent := agents.NewScriptedAgent().WithStartSignal(started)
	agent.Delay = 50 * time.Millisecond

	// One worker serializes the jobs so cancellation catches most of them
	// still pending.
	o, sections := newTestOrchestrator(Config{MaxWorkers: 1}, agent)

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)

	// Wait for the first job to be in flight, then cancel.
	select {
	case <-started:
	case <-time.After(testTimeout):
		t.Fatal("no job started")
	}
	require.NoError(t, o.Cancel(run.ID))

	final := waitTerminal(t, o, run.ID)
	assert.Equal(t, datatypes.RunCancelled, final.Status)
	assert.Less(t, final.ProgressPercent, 100)

	completed, failed := 0, 0
	for _, job := range final.Jobs {
		switch job.Status {
		case datatypes.JobCompleted:
			completed++
		case datatypes.JobFailed:
			failed++
			assert.Zero(t, job.RetryCount, "cancelled jobs are not retried")
		default:
			t.Fatalf("job %s left in state %s", job.AgentID, job.Status)
		}
	}
	assert.Equal(t, len(datatypes.AllSections()), completed+failed)
	assert.Positive(t, failed, "cancellation failed the pending jobs")

	// Whatever completed before the cancel keeps its content.
	saved := 0
	for _, sectionID := range datatypes.AllSections() {
		if _, err := sections.GetSection(context.Background(), "trip-1", sectionID); err == nil {
			saved++
		}
	}
	assert.Equal(t, completed, saved)

	// Cancelling a terminal run is an invalid state transition.
	assert.ErrorIs(t, o.Cancel(run.ID), ErrInvalidState)
}

func TestCancelUnknownRun(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())
	assert.ErrorIs(t, o.Cancel("no-such-run"), ErrRunNotFound)
}

func TestJobTimeoutBecomesRetryableFailure(t *testing.T) {
	agent := agents.NewScriptedAgent()
	agent.Delay = 200 * time.Millisecond
	o, _ := newTestOrchestrator(Config{JobTimeout: 20 * time.Millisecond, MaxRetries: 1}, agent)

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionSafety}, testSnapshot())
	require.NoError(t, err)
	final := waitTerminal(t, o, run.ID)

	assert.Equal(t, datatypes.RunFailed, final.Status)
	job := final.Jobs[datatypes.AgentSafetyAdvisor]
	assert.Equal(t, datatypes.JobFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Contains(t, job.LastError, "timed out")
}

func TestSubscribeProgressIsMonotonicAndCompletesAt100(t *testing.T) {
	agent := agents.NewScriptedAgent()
	agent.Delay = 10 * time.Millisecond
	o, _ := newTestOrchestrator(Config{MaxWorkers: 2}, agent)

	run, err := o.Start("trip-1", 1, datatypes.AllSections(), testSnapshot())
	require.NoError(t, err)

	updates, unsubscribe, err := o.Subscribe(run.ID)
	require.NoError(t, err)
	defer unsubscribe()

	var snapshots []datatypes.RecalculationRun
	timeout := time.After(testTimeout)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				goto done
			}
			snapshots = append(snapshots, snap)
		case <-timeout:
			t.Fatal("subscription never closed")
		}
	}
done:
	require.NotEmpty(t, snapshots)

	last := -1
	for _, snap := range snapshots {
		assert.GreaterOrEqual(t, snap.ProgressPercent, last, "progress never decreases")
		last = snap.ProgressPercent
		if snap.ProgressPercent == 100 {
			assert.Equal(t, datatypes.RunCompleted, snap.Status, "100 is exclusive to completed runs")
		}
	}

	final := snapshots[len(snapshots)-1]
	assert.Equal(t, datatypes.RunCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPercent)
	assert.False(t, final.CompletedAt.IsZero())
}

func TestSubscribeToTerminalRunYieldsOneSnapshot(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionCulture}, testSnapshot())
	require.NoError(t, err)
	waitTerminal(t, o, run.ID)

	updates, unsubscribe, err := o.Subscribe(run.ID)
	require.NoError(t, err)
	defer unsubscribe()

	snap, ok := <-updates
	require.True(t, ok)
	assert.Equal(t, datatypes.RunCompleted, snap.Status)

	_, ok = <-updates
	assert.False(t, ok, "channel closes after the terminal snapshot")
}

func TestSubscribeUnknownRun(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())
	_, _, err := o.Subscribe("no-such-run")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestGetReturnsIsolatedSnapshots(t *testing.T) {
	o, _ := newTestOrchestrator(Config{}, agents.NewScriptedAgent())

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionPacking}, testSnapshot())
	require.NoError(t, err)
	waitTerminal(t, o, run.ID)

	got, err := o.Get(run.ID)
	require.NoError(t, err)

	// Mutating the returned snapshot must not reach orchestrator state.
	got.Jobs[datatypes.AgentPackingAssistant] = datatypes.AgentJob{Status: datatypes.JobPending}
	again, err := o.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobCompleted, again.Jobs[datatypes.AgentPackingAssistant].Status)
}

func TestActiveRun(t *testing.T) {
	agent := agents.NewScriptedAgent()
	agent.Delay = 100 * time.Millisecond
	o, _ := newTestOrchestrator(Config{}, agent)

	_, ok := o.ActiveRun("trip-1")
	assert.False(t, ok)

	run, err := o.Start("trip-1", 1, []datatypes.ReportSectionID{datatypes.SectionVisa}, testSnapshot())
	require.NoError(t, err)

	active, ok := o.ActiveRun("trip-1")
	assert.True(t, ok)
	assert.Equal(t, run.ID, active.ID)

	waitTerminal(t, o, run.ID)
	_, ok = o.ActiveRun("trip-1")
	assert.False(t, ok)
}
