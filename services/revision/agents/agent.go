// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents defines the generation agent boundary: the fixed roster
// of section agents, the section-to-agent mapping, and the Agent interface
// the orchestrator invokes.
//
// Agents are black boxes to the rest of the system. Latency and content
// quality are the agent's responsibility; the orchestrator only handles
// retries, timeouts, and cancellation around Generate calls.
package agents

import (
	"context"
	"fmt"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// Agent is an opaque capability that generates content for report sections.
//
// Generate must honor ctx cancellation: when the orchestrator cancels a
// run or a per-job timeout fires, the context is cancelled and the agent
// should return promptly. Best effort is acceptable.
type Agent interface {
	Generate(ctx context.Context, sectionID datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.SectionContent, error)
}

// sectionAgents is the static section-to-agent table. Each section maps to
// exactly one agent in the fixed 8-agent roster.
var sectionAgents = map[datatypes.ReportSectionID]datatypes.AgentID{
	datatypes.SectionVisa:           datatypes.AgentVisaIntelligence,
	datatypes.SectionDestination:    datatypes.AgentDestinationGuide,
	datatypes.SectionItinerary:      datatypes.AgentItineraryBuilder,
	datatypes.SectionBudget:         datatypes.AgentBudgetOptimizer,
	datatypes.SectionSafety:         datatypes.AgentSafetyAdvisor,
	datatypes.SectionCulture:        datatypes.AgentCultureExpert,
	datatypes.SectionPacking:        datatypes.AgentPackingAssistant,
	datatypes.SectionTransportation: datatypes.AgentTransportPlanner,
}

// AgentForSection returns the agent responsible for a section.
func AgentForSection(sectionID datatypes.ReportSectionID) (datatypes.AgentID, error) {
	agentID, ok := sectionAgents[sectionID]
	if !ok {
		return "", fmt.Errorf("no agent for section %q", sectionID)
	}
	return agentID, nil
}

// Roster returns all agent IDs in section roster order.
func Roster() []datatypes.AgentID {
	out := make([]datatypes.AgentID, 0, len(sectionAgents))
	for _, section := range datatypes.AllSections() {
		out = append(out, sectionAgents[section])
	}
	return out
}

// Registry resolves sections to their Agent implementations.
//
// Thread Safety: immutable after construction; safe for concurrent use.
type Registry struct {
	agents map[datatypes.AgentID]Agent
}

// NewRegistry creates a registry with explicit per-agent implementations.
func NewRegistry(impls map[datatypes.AgentID]Agent) *Registry {
	agents := make(map[datatypes.AgentID]Agent, len(impls))
	for id, impl := range impls {
		agents[id] = impl
	}
	return &Registry{agents: agents}
}

// NewUniformRegistry creates a registry where every roster agent uses the
// same implementation. This is the common case: one backing model serves
// all sections, differentiated only by prompt.
func NewUniformRegistry(impl Agent) *Registry {
	agents := make(map[datatypes.AgentID]Agent, len(sectionAgents))
	for _, agentID := range Roster() {
		agents[agentID] = impl
	}
	return &Registry{agents: agents}
}

// Resolve returns the agent implementation for a section.
func (r *Registry) Resolve(sectionID datatypes.ReportSectionID) (datatypes.AgentID, Agent, error) {
	agentID, err := AgentForSection(sectionID)
	if err != nil {
		return "", nil, err
	}
	impl, ok := r.agents[agentID]
	if !ok {
		return "", nil, fmt.Errorf("no implementation registered for agent %q", agentID)
	}
	return agentID, impl, nil
}
