// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/TripSmith/pkg/logging"
	"github.com/AleutianAI/TripSmith/services/revision"
)

// runServe starts the revision HTTP service and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		LogDir:  logDir,
		Service: "revision",
	})
	defer logger.Close()

	cfg := configFromEnv()
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if policyFile != "" {
		cfg.PolicyFile = policyFile
	}

	svc, err := revision.NewService(cfg, nil, logger.Slog())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return svc.Run(ctx)
}
