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
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/TripSmith/pkg/logging"
	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
	"github.com/AleutianAI/TripSmith/services/revision/diff"
	"github.com/AleutianAI/TripSmith/services/revision/store"
	"github.com/AleutianAI/TripSmith/services/revision/version"
)

// openManager opens the local badger store and builds a version manager
// over it. The returned close function must be called before exit.
func openManager() (*version.Manager, func(), error) {
	dir := dataDir
	if dir == "" {
		dir = getEnvString("TRIPSMITH_DATA_DIR", "")
	}
	if dir == "" {
		return nil, nil, fmt.Errorf("no data directory: set --data-dir or TRIPSMITH_DATA_DIR")
	}

	policy := diff.DefaultPolicy()
	if policyFile != "" {
		p, err := diff.LoadPolicyFile(policyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load policy file %s: %w", policyFile, err)
		}
		policy = p
	}

	bs, err := store.OpenBadger(store.DefaultBadgerConfig(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", dir, err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "cli",
		Quiet:   true,
	})

	engine := diff.NewEngine(diff.WithPolicy(policy))
	manager := version.NewManager(bs, engine, logger.Slog())
	closeAll := func() {
		_ = bs.Close()
		_ = logger.Close()
	}
	return manager, closeAll, nil
}

// runVersions lists a trip's version history.
func runVersions(cmd *cobra.Command, args []string) error {
	manager, closeAll, err := openManager()
	if err != nil {
		return err
	}
	defer closeAll()

	tripID := args[0]
	versions, err := manager.ListVersions(context.Background(), tripID)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Printf("no versions for trip %s\n", tripID)
		return nil
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(versions)
	}

	fmt.Printf("Trip %s: %d version(s)\n", tripID, len(versions))
	for _, v := range versions {
		summary := v.ChangeSummary
		if summary == "" {
			summary = "(no summary)"
		}
		fmt.Printf("  v%-4d %s  %-6s  %s  [%d field(s) changed]\n",
			v.Number,
			v.CreatedAt.Format("2006-01-02 15:04:05"),
			v.CreatedBy,
			summary,
			len(v.ChangedFields),
		)
	}
	return nil
}

// runCompare prints the change set between two versions.
func runCompare(cmd *cobra.Command, args []string) error {
	manager, closeAll, err := openManager()
	if err != nil {
		return err
	}
	defer closeAll()

	tripID := args[0]
	from, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid from version %q", args[1])
	}
	to, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid to version %q", args[2])
	}

	cs, err := manager.Compare(context.Background(), tripID, from, to)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(cs)
	}

	fmt.Println(cs.ImpactSummary)
	for _, c := range cs.Changes {
		fmt.Printf("  [%s] %s (%s): %v -> %v\n", c.ImpactLevel, c.Label, c.Kind, c.OldValue, c.NewValue)
	}
	for _, w := range cs.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if cs.RequiresRecalculation {
		fmt.Printf("Recalculation needed for %d section(s), estimated %ds\n",
			len(cs.AffectedSections), cs.EstimatedRecalcSeconds)
	}
	return nil
}

// runRestore restores an earlier version as a new version.
func runRestore(cmd *cobra.Command, args []string) error {
	manager, closeAll, err := openManager()
	if err != nil {
		return err
	}
	defer closeAll()

	tripID := args[0]
	target, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[1])
	}

	restored, err := manager.Restore(context.Background(), tripID, target, datatypes.AuthorUser)
	if err != nil {
		return err
	}
	fmt.Printf("restored trip %s to version %d as new version %d\n", tripID, target, restored.Number)
	return nil
}
