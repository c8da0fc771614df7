// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package recalc implements the recalculation orchestrator: concurrent,
// retryable, cancellable execution of the fixed agent roster against the
// report sections affected by a trip revision, with live progress
// reporting.
//
// State machine per run: queued -> processing -> {completed | failed |
// cancelled}. At most one non-terminal run exists per trip; the per-trip
// lock is held only around the check-and-create step, never for the run's
// lifetime.
package recalc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/TripSmith/services/revision/agents"
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/observability"
	"github.com/AleutianAI/TripSmith/services/revision/store"
)

// Config configures the orchestrator.
type Config struct {
	// MaxWorkers bounds concurrent agent jobs per run.
	// Default: 8, the full roster size.
	MaxWorkers int64

	// MaxRetries is how many times a failed job is re-invoked before it
	// becomes terminal failed. Default: 2.
	MaxRetries int

	// JobTimeout is the per-job deadline. A job exceeding it fails with a
	// timeout error and is eligible for retry like any other failure.
	// Default: 120s.
	JobTimeout time.Duration
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 8
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 120 * time.Second
	}
}

// Orchestrator runs recalculation runs.
//
// Thread Safety: safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	registry *agents.Registry
	sections store.ReportSectionStore
	logger   *slog.Logger
	metrics  *observability.Metrics

	// mu guards runs and activeByTrip. Held only around check-and-create
	// and terminal-state bookkeeping.
	mu           sync.Mutex
	runs         map[string]*runState
	activeByTrip map[string]string
}

// runState is the orchestrator-internal state of one run.
type runState struct {
	mu sync.Mutex

	run             datatypes.RecalculationRun
	snapshot        datatypes.TripSnapshot
	cancelRequested bool
	cancelFn        context.CancelFunc
	subscribers     map[string]chan datatypes.RecalculationRun
}

// NewOrchestrator creates an orchestrator.
//
// Inputs:
//
//	cfg - Orchestrator configuration. Zero values use defaults.
//	registry - Resolves sections to agent implementations. Must not be nil.
//	sections - Destination for completed job output. Must not be nil.
//	metrics - Optional Prometheus metrics. May be nil.
//	logger - Logger for run events. If nil, uses slog.Default().
func NewOrchestrator(cfg Config, registry *agents.Registry, sections store.ReportSectionStore, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:          cfg,
		registry:     registry,
		sections:     sections,
		logger:       logger.With(slog.String("component", "recalc_orchestrator")),
		metrics:      metrics,
		runs:         make(map[string]*runState),
		activeByTrip: make(map[string]string),
	}
}

// Start creates and launches a recalculation run.
//
// Description:
//
//	Creates one AgentJob per section using the static section-to-agent
//	mapping, registers the run, and returns immediately; job execution
//	and progress updates happen asynchronously. Observe progress via
//	Subscribe or Get.
//
// Inputs:
//
//	tripID - The trip whose sections are regenerated.
//	triggeringVersionNumber - The version whose commit triggered the run.
//	sections - The affected sections. Must be non-empty and valid.
//	snapshot - The trip state the agents generate from.
//
// Outputs:
//
//	datatypes.RecalculationRun - A snapshot of the created run (queued).
//	error - ErrAlreadyRunning if a non-terminal run exists for the trip;
//	  ErrNoSections for an empty section list.
func (o *Orchestrator) Start(tripID string, triggeringVersionNumber int, sections []datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.RecalculationRun, error) {
	if len(sections) == 0 {
		return datatypes.RecalculationRun{}, ErrNoSections
	}

	jobs := make(map[datatypes.AgentID]datatypes.AgentJob, len(sections))
	ordered := make([]datatypes.ReportSectionID, 0, len(sections))
	for _, sectionID := range sections {
		agentID, _, err := o.registry.Resolve(sectionID)
		if err != nil {
			return datatypes.RecalculationRun{}, err
		}
		if _, dup := jobs[agentID]; dup {
			continue
		}
		jobs[agentID] = datatypes.AgentJob{
			AgentID:   agentID,
			SectionID: sectionID,
			Status:    datatypes.JobPending,
		}
		ordered = append(ordered, sectionID)
	}

	rs := &runState{
		run: datatypes.RecalculationRun{
			ID:                      uuid.NewString(),
			TripID:                  tripID,
			TriggeringVersionNumber: triggeringVersionNumber,
			Sections:                ordered,
			Jobs:                    jobs,
			Status:                  datatypes.RunQueued,
			StartedAt:               time.Now(),
		},
		snapshot:    snapshot.Clone(),
		subscribers: make(map[string]chan datatypes.RecalculationRun),
	}

	o.mu.Lock()
	if activeID, busy := o.activeByTrip[tripID]; busy {
		o.mu.Unlock()
		return datatypes.RecalculationRun{}, fmt.Errorf("%w: run %s", ErrAlreadyRunning, activeID)
	}
	o.runs[rs.run.ID] = rs
	o.activeByTrip[tripID] = rs.run.ID
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveRuns.Inc()
	}

	o.logger.Info("recalculation run started",
		slog.String("run_id", rs.run.ID),
		slog.String("trip_id", tripID),
		slog.Int("triggering_version", triggeringVersionNumber),
		slog.Int("sections", len(ordered)),
	)

	go o.execute(rs)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.Clone(), nil
}

// Get returns a snapshot of the run with the given ID.
func (o *Orchestrator) Get(runID string) (datatypes.RecalculationRun, error) {
	rs, err := o.lookup(runID)
	if err != nil {
		return datatypes.RecalculationRun{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.run.Clone(), nil
}

// ActiveRun returns the non-terminal run for a trip, if any.
func (o *Orchestrator) ActiveRun(tripID string) (datatypes.RecalculationRun, bool) {
	o.mu.Lock()
	runID, ok := o.activeByTrip[tripID]
	o.mu.Unlock()
	if !ok {
		return datatypes.RecalculationRun{}, false
	}
	run, err := o.Get(runID)
	if err != nil {
		return datatypes.RecalculationRun{}, false
	}
	return run, true
}

// Cancel requests cooperative cancellation of a run.
//
// Description:
//
//	Marks the run cancel-pending and propagates a cancellation signal to
//	all non-terminal jobs. Jobs that observe cancellation before starting
//	become terminal failed without retry; jobs already running finish or
//	abort per the agent's own cancellation contract. Already-completed
//	sections are retained.
//
// Outputs:
//
//	error - ErrRunNotFound for an unknown ID; ErrInvalidState when the
//	  run is already terminal.
func (o *Orchestrator) Cancel(runID string) error {
	rs, err := o.lookup(runID)
	if err != nil {
		return err
	}

	rs.mu.Lock()
	if rs.run.Status.IsTerminal() {
		rs.mu.Unlock()
		return fmt.Errorf("%w: run is %s", ErrInvalidState, rs.run.Status)
	}
	rs.cancelRequested = true
	cancel := rs.cancelFn
	rs.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	o.logger.Info("recalculation run cancel requested", slog.String("run_id", runID))
	return nil
}

// RetryFailed re-queues the failed jobs of a failed run.
//
// Description:
//
//	Valid only when the run status is failed. Failed jobs are reset to
//	pending with a fresh retry budget; completed jobs are untouched. The
//	run transitions back to processing and the per-trip exclusivity is
//	re-acquired.
//
// Outputs:
//
//	datatypes.RecalculationRun - A snapshot of the re-queued run.
//	error - ErrInvalidState unless the run is failed; ErrAlreadyRunning
//	  if another run became active for the trip in the meantime.
func (o *Orchestrator) RetryFailed(runID string) (datatypes.RecalculationRun, error) {
	rs, err := o.lookup(runID)
	if err != nil {
		return datatypes.RecalculationRun{}, err
	}

	rs.mu.Lock()
	if rs.run.Status != datatypes.RunFailed {
		status := rs.run.Status
		rs.mu.Unlock()
		return datatypes.RecalculationRun{}, fmt.Errorf("%w: run is %s, not failed", ErrInvalidState, status)
	}
	tripID := rs.run.TripID
	rs.mu.Unlock()

	o.mu.Lock()
	if activeID, busy := o.activeByTrip[tripID]; busy {
		o.mu.Unlock()
		return datatypes.RecalculationRun{}, fmt.Errorf("%w: run %s", ErrAlreadyRunning, activeID)
	}
	o.activeByTrip[tripID] = runID
	o.mu.Unlock()

	rs.mu.Lock()
	for agentID, job := range rs.run.Jobs {
		if job.Status == datatypes.JobFailed {
			job.Status = datatypes.JobPending
			job.RetryCount = 0
			rs.run.Jobs[agentID] = job
		}
	}
	rs.run.Status = datatypes.RunProcessing
	rs.run.Error = ""
	rs.run.CompletedAt = time.Time{}
	rs.cancelRequested = false
	o.recomputeProgressLocked(rs)
	o.publishLocked(rs)
	snapshot := rs.run.Clone()
	rs.mu.Unlock()

	if o.metrics != nil {
		o.metrics.ActiveRuns.Inc()
	}

	o.logger.Info("recalculation run re-queued", slog.String("run_id", runID))

	go o.execute(rs)

	return snapshot, nil
}

func (o *Orchestrator) lookup(runID string) (*runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rs, ok := o.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rs, nil
}
