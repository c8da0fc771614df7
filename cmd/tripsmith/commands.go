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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	dataDir    string
	listenAddr string
	logLevel   string
	logDir     string
	policyFile string
	jsonOutput bool

	rootCmd = &cobra.Command{
		Use:   "tripsmith",
		Short: "A cli to manage the TripSmith trip revision service",
		Long: `TripSmith tracks travel-plan edits as an append-only version
history, computes field-level change impact, and regenerates AI-produced
report sections through a concurrent recalculation orchestrator.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the revision HTTP service",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	versionsCmd = &cobra.Command{
		Use:   "versions [tripId]",
		Short: "List the version history of a trip from the local store",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersions, // Defined in cmd_history.go
	}

	compareCmd = &cobra.Command{
		Use:   "compare [tripId] [from] [to]",
		Short: "Show the field-level changes between two versions",
		Args:  cobra.ExactArgs(3),
		RunE:  runCompare, // Defined in cmd_history.go
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [tripId] [version]",
		Short: "Restore an earlier version as a new version",
		Args:  cobra.ExactArgs(2),
		RunE:  runRestore, // Defined in cmd_history.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "BadgerDB directory (overrides TRIPSMITH_DATA_DIR)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files")
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy-file", "", "YAML diff policy overrides")

	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (overrides TRIPSMITH_LISTEN_ADDR)")

	versionsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	compareCmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a summary")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(restoreCmd)
}
