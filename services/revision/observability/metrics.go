// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the revision
// service: recalculation run outcomes, job retries and durations, and
// commit conflicts. Metrics are exposed via the /metrics endpoint.
//
// Thread Safety: all metric operations are thread-safe via Prometheus's
// internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "tripsmith"

// Metrics holds all Prometheus metrics for the revision service.
//
// Initialize once at startup via NewMetrics.
type Metrics struct {
	// RunsTotal counts recalculation runs by terminal status.
	// Labels: status (completed, failed, cancelled)
	RunsTotal *prometheus.CounterVec

	// ActiveRuns tracks runs currently in a non-terminal state.
	ActiveRuns prometheus.Gauge

	// JobRetriesTotal counts agent job retries.
	// Labels: agent
	JobRetriesTotal *prometheus.CounterVec

	// JobDurationSeconds measures agent job wall time.
	// Labels: agent, status (completed, failed)
	JobDurationSeconds *prometheus.HistogramVec

	// CommitConflictsTotal counts commits rejected by the optimistic
	// concurrency check.
	CommitConflictsTotal prometheus.Counter

	// VersionsCommittedTotal counts committed trip versions.
	// Labels: author (user, system, ai)
	VersionsCommittedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer for production; tests use a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recalc",
			Name:      "runs_total",
			Help:      "Recalculation runs by terminal status.",
		}, []string{"status"}),

		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "recalc",
			Name:      "active_runs",
			Help:      "Recalculation runs currently in a non-terminal state.",
		}),

		JobRetriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "recalc",
			Name:      "job_retries_total",
			Help:      "Agent job retries.",
		}, []string{"agent"}),

		JobDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "recalc",
			Name:      "job_duration_seconds",
			Help:      "Agent job wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"agent", "status"}),

		CommitConflictsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "version",
			Name:      "commit_conflicts_total",
			Help:      "Commits rejected by the optimistic concurrency check.",
		}),

		VersionsCommittedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "version",
			Name:      "versions_committed_total",
			Help:      "Committed trip versions by author.",
		}, []string{"author"}),
	}
}
