// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// ScriptedAgent is a test agent with programmable failures and delays.
//
// Thread Safety: safe for concurrent use.
type ScriptedAgent struct {
	mu sync.Mutex

	// FailuresPerSection makes Generate fail the first N calls for a
	// section. A negative count fails every call.
	FailuresPerSection map[datatypes.ReportSectionID]int

	// Delay is applied before each Generate returns. Generate honors
	// context cancellation during the delay.
	Delay time.Duration

	// calls counts Generate invocations per section.
	calls map[datatypes.ReportSectionID]int

	// started signals each Generate entry, if set. Tests use it to
	// observe jobs that are in flight.
	started chan datatypes.ReportSectionID
}

// NewScriptedAgent creates a scripted agent that always succeeds.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{
		FailuresPerSection: make(map[datatypes.ReportSectionID]int),
		calls:              make(map[datatypes.ReportSectionID]int),
	}
}

// WithStartSignal attaches a channel that receives the section ID each
// time Generate begins. The channel must be buffered or drained.
func (a *ScriptedAgent) WithStartSignal(ch chan datatypes.ReportSectionID) *ScriptedAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = ch
	return a
}

// Calls returns how many times Generate ran for a section.
func (a *ScriptedAgent) Calls(sectionID datatypes.ReportSectionID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[sectionID]
}

// Generate succeeds or fails per the configured script.
func (a *ScriptedAgent) Generate(ctx context.Context, sectionID datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.SectionContent, error) {
	a.mu.Lock()
	a.calls[sectionID]++
	call := a.calls[sectionID]
	remaining := a.FailuresPerSection[sectionID]
	delay := a.Delay
	started := a.started
	a.mu.Unlock()

	if started != nil {
		select {
		case started <- sectionID:
		default:
		}
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return datatypes.SectionContent{}, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return datatypes.SectionContent{}, err
	}

	if remaining < 0 || call <= remaining {
		return datatypes.SectionContent{}, fmt.Errorf("scripted failure %d for section %s", call, sectionID)
	}

	return datatypes.SectionContent{
		SectionID:   sectionID,
		Body:        fmt.Sprintf("scripted content for %s (call %d)", sectionID, call),
		Model:       "scripted",
		GeneratedAt: time.Now(),
	}, nil
}

var _ Agent = (*ScriptedAgent)(nil)
