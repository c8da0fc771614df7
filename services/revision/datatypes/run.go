// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"
)

// AgentID identifies one of the fixed generation agents. Each report
// section maps to exactly one agent.
type AgentID string

const (
	AgentVisaIntelligence AgentID = "visa_intelligence"
	AgentDestinationGuide AgentID = "destination_guide"
	AgentItineraryBuilder AgentID = "itinerary_builder"
	AgentBudgetOptimizer  AgentID = "budget_optimizer"
	AgentSafetyAdvisor    AgentID = "safety_advisor"
	AgentCultureExpert    AgentID = "culture_expert"
	AgentPackingAssistant AgentID = "packing_assistant"
	AgentTransportPlanner AgentID = "transport_planner"
)

// RunStatus is the state of a recalculation run.
//
// State machine: queued -> processing -> {completed | failed | cancelled}.
// "idle" is not persisted; it is the absence of a run.
type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunQueued     RunStatus = "queued"
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// JobStatus is the state of a single agent job within a run.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job status is terminal.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// AgentJob tracks one agent's work on one section within a run.
//
// An AgentJob is owned by the RecalculationRun that created it and is never
// shared across runs.
type AgentJob struct {
	// AgentID is the agent responsible for the section.
	AgentID AgentID `json:"agent_id"`

	// SectionID is the report section being regenerated.
	SectionID ReportSectionID `json:"section_id"`

	// Status is the job's current state.
	Status JobStatus `json:"status"`

	// RetryCount is how many times the job has been re-invoked after a
	// failure. The first attempt does not count as a retry.
	RetryCount int `json:"retry_count"`

	// LastError holds the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`
}

// RecalculationRun is one orchestrated execution regenerating a set of
// affected report sections.
//
// Description:
//
//	At most one non-terminal run exists per trip at a time; the orchestrator
//	enforces this. ProgressPercent is the share of jobs in a terminal state,
//	recomputed on every job transition, and reaches exactly 100 only when
//	the run completes.
type RecalculationRun struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// TripID is the trip whose sections are being regenerated.
	TripID string `json:"trip_id"`

	// TriggeringVersionNumber is the version whose commit triggered the run.
	TriggeringVersionNumber int `json:"triggering_version_number"`

	// Sections are the report sections covered by this run.
	Sections []ReportSectionID `json:"sections"`

	// Jobs maps each agent to its job state.
	Jobs map[AgentID]AgentJob `json:"jobs"`

	// Status is the run's current state.
	Status RunStatus `json:"status"`

	// ProgressPercent is 0..100.
	ProgressPercent int `json:"progress_percent"`

	// StartedAt is when the run was created.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Error summarizes the failure for runs that ended failed.
	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy of the run.
//
// Subscribers receive cloned snapshots so they can never observe or mutate
// orchestrator-internal state.
func (r RecalculationRun) Clone() RecalculationRun {
	out := r
	out.Sections = make([]ReportSectionID, len(r.Sections))
	copy(out.Sections, r.Sections)
	out.Jobs = make(map[AgentID]AgentJob, len(r.Jobs))
	for id, job := range r.Jobs {
		out.Jobs[id] = job
	}
	return out
}

// TerminalJobs returns the number of jobs in a terminal state.
func (r RecalculationRun) TerminalJobs() int {
	n := 0
	for _, job := range r.Jobs {
		if job.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// FailedJobs returns the jobs currently in the failed state.
func (r RecalculationRun) FailedJobs() []AgentJob {
	var failed []AgentJob
	for _, job := range r.Jobs {
		if job.Status == JobFailed {
			failed = append(failed, job)
		}
	}
	return failed
}
