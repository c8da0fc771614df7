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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/TripSmith/services/revision/agents"
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// execute drives all pending jobs of a run to a terminal state, then
// finalizes the run. Called once per Start and once per RetryFailed, each
// time on a fresh goroutine.
func (o *Orchestrator) execute(rs *runState) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rs.mu.Lock()
	rs.cancelFn = cancel
	if rs.cancelRequested {
		// Cancel raced ahead of execute; honor it before any job starts.
		cancel()
	}
	pending := make([]datatypes.AgentID, 0, len(rs.run.Jobs))
	for agentID, job := range rs.run.Jobs {
		if job.Status == datatypes.JobPending {
			pending = append(pending, agentID)
		}
	}
	rs.mu.Unlock()

	// Deterministic launch order keeps logs and tests stable.
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	sem := semaphore.NewWeighted(o.cfg.MaxWorkers)
	var wg sync.WaitGroup
	for _, agentID := range pending {
		wg.Add(1)
		go func(agentID datatypes.AgentID) {
			defer wg.Done()
			o.runJob(ctx, rs, sem, agentID)
		}(agentID)
	}
	wg.Wait()

	o.finalize(rs)
}

// runJob drives one agent job to a terminal state, retrying failures up
// to the configured budget.
func (o *Orchestrator) runJob(ctx context.Context, rs *runState, sem *semaphore.Weighted, agentID datatypes.AgentID) {
	if err := sem.Acquire(ctx, 1); err != nil {
		o.failJobBeforeStart(rs, agentID, "cancelled before start")
		return
	}
	defer sem.Release(1)

	rs.mu.Lock()
	if rs.cancelRequested {
		rs.mu.Unlock()
		o.failJobBeforeStart(rs, agentID, "cancelled before start")
		return
	}
	job := rs.run.Jobs[agentID]
	job.Status = datatypes.JobRunning
	rs.run.Jobs[agentID] = job
	if rs.run.Status == datatypes.RunQueued {
		rs.run.Status = datatypes.RunProcessing
	}
	o.publishLocked(rs)
	sectionID := job.SectionID
	snapshot := rs.snapshot
	runID := rs.run.ID
	tripID := rs.run.TripID
	rs.mu.Unlock()

	_, agent, err := o.registry.Resolve(sectionID)
	if err != nil {
		o.failJobTerminal(rs, agentID, err)
		return
	}

	logger := o.logger.With(
		slog.String("run_id", runID),
		slog.String("agent", string(agentID)),
		slog.String("section", string(sectionID)),
	)

	for {
		start := time.Now()
		content, err := o.invoke(ctx, agent, agentID, sectionID, snapshot)
		if err == nil {
			err = o.sections.Save(context.Background(), tripID, sectionID, content, runID)
			if err != nil {
				err = fmt.Errorf("saving section %s: %w", sectionID, err)
			}
		}
		o.observeJob(agentID, start, err)

		if err == nil {
			rs.mu.Lock()
			job := rs.run.Jobs[agentID]
			job.Status = datatypes.JobCompleted
			job.LastError = ""
			rs.run.Jobs[agentID] = job
			o.recomputeProgressLocked(rs)
			o.publishLocked(rs)
			rs.mu.Unlock()
			logger.Info("agent job completed", slog.Duration("elapsed", time.Since(start)))
			return
		}

		if ctx.Err() != nil {
			// Run cancelled mid-flight. No retry; the partial result of any
			// sibling job that already completed is retained.
			o.failJobTerminal(rs, agentID, fmt.Errorf("cancelled: %w", err))
			return
		}

		rs.mu.Lock()
		job := rs.run.Jobs[agentID]
		if job.RetryCount >= o.cfg.MaxRetries {
			rs.mu.Unlock()
			o.failJobTerminal(rs, agentID, err)
			return
		}
		job.RetryCount++
		job.LastError = err.Error()
		rs.run.Jobs[agentID] = job
		retry := job.RetryCount
		o.publishLocked(rs)
		rs.mu.Unlock()

		if o.metrics != nil {
			o.metrics.JobRetriesTotal.WithLabelValues(string(agentID)).Inc()
		}
		logger.Warn("agent job failed, retrying",
			slog.Int("retry", retry),
			slog.String("error", err.Error()),
		)
	}
}

// invoke runs one agent attempt under the per-job timeout.
func (o *Orchestrator) invoke(ctx context.Context, agent agents.Agent, agentID datatypes.AgentID, sectionID datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.SectionContent, error) {
	jobCtx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	content, err := agent.Generate(jobCtx, sectionID, snapshot)
	if err != nil {
		timedOut := errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		return datatypes.SectionContent{}, &agents.AgentError{
			AgentID:   agentID,
			SectionID: sectionID,
			Timeout:   timedOut,
			Err:       err,
		}
	}
	return content, nil
}

// failJobBeforeStart marks a job failed without consuming its retry
// budget. Used when cancellation is observed before the agent runs.
func (o *Orchestrator) failJobBeforeStart(rs *runState, agentID datatypes.AgentID, reason string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	job := rs.run.Jobs[agentID]
	job.Status = datatypes.JobFailed
	job.LastError = reason
	rs.run.Jobs[agentID] = job
	o.recomputeProgressLocked(rs)
	o.publishLocked(rs)
}

// failJobTerminal marks a job failed with no further retries.
func (o *Orchestrator) failJobTerminal(rs *runState, agentID datatypes.AgentID, err error) {
	rs.mu.Lock()
	job := rs.run.Jobs[agentID]
	job.Status = datatypes.JobFailed
	job.LastError = err.Error()
	rs.run.Jobs[agentID] = job
	o.recomputeProgressLocked(rs)
	o.publishLocked(rs)
	runID := rs.run.ID
	rs.mu.Unlock()

	o.logger.Error("agent job failed",
		slog.String("run_id", runID),
		slog.String("agent", string(agentID)),
		slog.String("error", err.Error()),
	)
}

// finalize moves the run to its terminal status once every job is
// terminal, notifies subscribers, and releases the per-trip exclusivity.
func (o *Orchestrator) finalize(rs *runState) {
	rs.mu.Lock()
	var status datatypes.RunStatus
	failed := rs.run.FailedJobs()
	switch {
	case rs.cancelRequested:
		status = datatypes.RunCancelled
	case len(failed) > 0:
		status = datatypes.RunFailed
		parts := make([]string, 0, len(failed))
		for _, job := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", job.AgentID, job.LastError))
		}
		sort.Strings(parts)
		rs.run.Error = strings.Join(parts, "; ")
	default:
		status = datatypes.RunCompleted
	}
	rs.run.Status = status
	rs.run.CompletedAt = time.Now()
	o.recomputeProgressLocked(rs)
	o.publishLocked(rs)
	o.closeSubscribersLocked(rs)
	tripID := rs.run.TripID
	runID := rs.run.ID
	elapsed := rs.run.CompletedAt.Sub(rs.run.StartedAt)
	rs.mu.Unlock()

	o.mu.Lock()
	if o.activeByTrip[tripID] == runID {
		delete(o.activeByTrip, tripID)
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveRuns.Dec()
		o.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	}

	o.logger.Info("recalculation run finished",
		slog.String("run_id", runID),
		slog.String("trip_id", tripID),
		slog.String("status", string(status)),
		slog.Duration("elapsed", elapsed),
	)
}

// recomputeProgressLocked recalculates ProgressPercent from terminal job
// counts. Callers hold rs.mu.
//
// The computed share is capped at 99 until the run status is completed,
// so 100 is observable only for completed runs.
func (o *Orchestrator) recomputeProgressLocked(rs *runState) {
	total := len(rs.run.Jobs)
	if total == 0 {
		return
	}
	pct := rs.run.TerminalJobs() * 100 / total
	if pct >= 100 && rs.run.Status != datatypes.RunCompleted {
		pct = 99
	}
	rs.run.ProgressPercent = pct
}

// observeJob records one job attempt's duration and outcome.
func (o *Orchestrator) observeJob(agentID datatypes.AgentID, start time.Time, err error) {
	if o.metrics == nil {
		return
	}
	status := "completed"
	if err != nil {
		status = "failed"
	}
	o.metrics.JobDurationSeconds.
		WithLabelValues(string(agentID), status).
		Observe(time.Since(start).Seconds())
}
