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
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/TripSmith/services/revision"
)

// configFromEnv builds the service configuration from environment
// variables, with CLI flags taking precedence where set.
//
// Variables:
//
//	TRIPSMITH_LISTEN_ADDR - HTTP listen address (default ":8094")
//	TRIPSMITH_DATA_DIR - Badger directory; empty selects in-memory
//	TRIPSMITH_POLICY_FILE - YAML diff policy overrides
//	TRIPSMITH_MAX_WORKERS - concurrent agent jobs per run (default 8)
//	TRIPSMITH_MAX_RETRIES - per-job retry budget (default 2)
//	TRIPSMITH_JOB_TIMEOUT_SECONDS - per-job deadline (default 120)
//	OPENAI_API_KEY - enables the OpenAI-backed agents
//	OPENAI_MODEL - chat model for section generation
func configFromEnv() revision.Config {
	cfg := revision.DefaultConfig()
	cfg.ListenAddr = getEnvString("TRIPSMITH_LISTEN_ADDR", cfg.ListenAddr)
	cfg.DataDir = getEnvString("TRIPSMITH_DATA_DIR", "")
	cfg.PolicyFile = getEnvString("TRIPSMITH_POLICY_FILE", "")
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "")
	cfg.MaxWorkers = int64(getEnvInt("TRIPSMITH_MAX_WORKERS", int(cfg.MaxWorkers)))
	cfg.MaxRetries = getEnvInt("TRIPSMITH_MAX_RETRIES", cfg.MaxRetries)
	cfg.JobTimeout = time.Duration(getEnvInt("TRIPSMITH_JOB_TIMEOUT_SECONDS", int(cfg.JobTimeout/time.Second))) * time.Second
	return cfg
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
