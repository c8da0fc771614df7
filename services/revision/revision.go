// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package revision provides the trip revision HTTP service.
//
// The service exposes endpoints for:
//   - Committing trip edits with diff, impact, and confirmation gating
//   - Browsing and comparing the append-only version history
//   - Restoring earlier versions as new versions
//   - Running, cancelling, and retrying section recalculation
//   - Streaming live recalculation progress over WebSocket
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/TripSmith/services/revision/agents"
	"github.com/AleutianAI/TripSmith/services/revision/diff"
	"github.com/AleutianAI/TripSmith/services/revision/observability"
	"github.com/AleutianAI/TripSmith/services/revision/recalc"
	"github.com/AleutianAI/TripSmith/services/revision/store"
	"github.com/AleutianAI/TripSmith/services/revision/version"
)

// Config configures the revision service.
type Config struct {
	// ListenAddr is the HTTP listen address.
	// Default: ":8094"
	ListenAddr string `validate:"required"`

	// DataDir is the BadgerDB directory. Empty selects the in-memory
	// store, which loses all state on restart.
	DataDir string

	// PolicyFile optionally overrides the built-in diff policy tables.
	PolicyFile string

	// OpenAIAPIKey enables the OpenAI-backed agents. Empty selects the
	// offline template agent.
	OpenAIAPIKey string

	// OpenAIModel is the chat model for section generation.
	OpenAIModel string

	// MaxWorkers bounds concurrent agent jobs per run.
	MaxWorkers int64 `validate:"min=0,max=64"`

	// MaxRetries is the per-job retry budget.
	MaxRetries int `validate:"min=0,max=10"`

	// JobTimeout is the per-job deadline.
	JobTimeout time.Duration

	// ShutdownGrace is how long Run waits for in-flight requests after
	// the context is cancelled.
	// Default: 10s
	ShutdownGrace time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8094",
		MaxWorkers:    8,
		MaxRetries:    2,
		JobTimeout:    120 * time.Second,
		ShutdownGrace: 10 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Service is the trip revision service.
//
// Thread Safety: safe for concurrent use once constructed.
type Service struct {
	cfg    Config
	logger *slog.Logger

	engine       *diff.Engine
	manager      *version.Manager
	orchestrator *recalc.Orchestrator
	snapshots    store.SnapshotStore
	sections     store.ReportSectionStore
	metrics      *observability.Metrics

	router *gin.Engine
	closer func() error
}

// NewService wires the full service from configuration.
//
// Description:
//
//	Opens the snapshot and section stores (badger when DataDir is set),
//	loads the diff policy, builds the agent registry (OpenAI-backed when
//	an API key is configured, template otherwise), and registers all
//	routes on a fresh gin engine.
//
// Inputs:
//
//	cfg - Service configuration. Validated; see Config.
//	reg - Prometheus registerer. Nil uses prometheus.DefaultRegisterer.
//	logger - Base logger. If nil, uses slog.Default().
func NewService(cfg Config, reg prometheus.Registerer, logger *slog.Logger) (*Service, error) {
	if cfg.ListenAddr == "" {
		cfg = mergeDefaults(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	policy := diff.DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := diff.LoadPolicyFile(cfg.PolicyFile)
		if err != nil {
			return nil, fmt.Errorf("load policy file %s: %w", cfg.PolicyFile, err)
		}
		policy = p
	}
	engine := diff.NewEngine(diff.WithPolicy(policy))

	var (
		snapshots store.SnapshotStore
		sections  store.ReportSectionStore
		closer    = func() error { return nil }
	)
	if cfg.DataDir != "" {
		bs, err := store.OpenBadger(store.DefaultBadgerConfig(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("open badger at %s: %w", cfg.DataDir, err)
		}
		snapshots, sections, closer = bs, bs, bs.Close
	} else {
		ms := store.NewMemStore()
		snapshots, sections = ms, ms
		logger.Warn("no data directory configured, using in-memory store")
	}

	var agent agents.Agent
	if cfg.OpenAIAPIKey != "" {
		oa, err := agents.NewOpenAIAgent(agents.OpenAIAgentConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			_ = closer()
			return nil, fmt.Errorf("configure openai agent: %w", err)
		}
		agent = oa
	} else {
		agent = agents.NewTemplateAgent()
		logger.Warn("no OpenAI API key configured, using template agent")
	}

	metrics := observability.NewMetrics(reg)
	manager := version.NewManager(snapshots, engine, logger)
	orchestrator := recalc.NewOrchestrator(recalc.Config{
		MaxWorkers: cfg.MaxWorkers,
		MaxRetries: cfg.MaxRetries,
		JobTimeout: cfg.JobTimeout,
	}, agents.NewUniformRegistry(agent), sections, metrics, logger)

	svc := &Service{
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "revision_service")),
		engine:       engine,
		manager:      manager,
		orchestrator: orchestrator,
		snapshots:    snapshots,
		sections:     sections,
		metrics:      metrics,
		closer:       closer,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	handlers := NewHandlers(svc)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)

	svc.router = router
	return svc, nil
}

// Router exposes the gin engine, mainly for tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Orchestrator exposes the recalculation orchestrator.
func (s *Service) Orchestrator() *recalc.Orchestrator {
	return s.orchestrator
}

// Manager exposes the version manager.
func (s *Service) Manager() *version.Manager {
	return s.manager
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully and
// closes the backing store.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("revision service listening", slog.String("addr", s.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", slog.String("error", err.Error()))
		}
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = s.closer()
			return fmt.Errorf("serve on %s: %w", s.cfg.ListenAddr, err)
		}
	}

	return s.closer()
}

func mergeDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = def.ShutdownGrace
	}
	return cfg
}
