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
	"log/slog"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// sectionPrompts holds the per-section system prompts. Each section gets a
// specialist persona; the trip snapshot is rendered into the user message.
var sectionPrompts = map[datatypes.ReportSectionID]string{
	datatypes.SectionVisa:           "You are a visa and entry-requirements specialist. Produce a concise visa requirements section for the trip described by the user. Cover visa type, processing time, and required documents.",
	datatypes.SectionDestination:    "You are a destination expert. Produce a destination overview section: highlights, neighborhoods, and seasonal considerations for the trip described by the user.",
	datatypes.SectionItinerary:      "You are an itinerary planner. Produce a day-by-day itinerary section matching the trip's dates, pace, and interests.",
	datatypes.SectionBudget:         "You are a travel budget analyst. Produce a budget breakdown section allocating the stated budget across lodging, food, transport, and activities.",
	datatypes.SectionSafety:         "You are a travel safety advisor. Produce a safety section: local risks, emergency numbers, and health precautions for the destination.",
	datatypes.SectionCulture:        "You are a cultural etiquette expert. Produce a culture section: customs, etiquette, tipping norms, and key phrases.",
	datatypes.SectionPacking:        "You are a packing assistant. Produce a packing list section tailored to the destination, season, and trip length.",
	datatypes.SectionTransportation: "You are a transportation planner. Produce a transportation section: getting there, local transit options, and transfer advice.",
}

// OpenAIAgentConfig configures the OpenAI-backed agent.
type OpenAIAgentConfig struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// Model is the chat model used for generation.
	// Default: gpt-4o-mini.
	Model string

	// RequestsPerSecond rate-limits outgoing API calls across all
	// sections. Default: 2.
	RequestsPerSecond float64

	// Logger for generation events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// OpenAIAgent generates section content through the OpenAI chat API.
//
// A single OpenAIAgent instance serves all roster agents: the section ID
// selects the system prompt. Calls are rate-limited so a burst of eight
// concurrent jobs does not trip API limits.
//
// Thread Safety: safe for concurrent use.
type OpenAIAgent struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIAgent creates an OpenAI-backed agent.
func NewOpenAIAgent(cfg OpenAIAgentConfig) (*OpenAIAgent, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIAgent{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger.With(slog.String("component", "openai_agent")),
	}, nil
}

// Generate produces section content for the given trip snapshot.
func (a *OpenAIAgent) Generate(ctx context.Context, sectionID datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.SectionContent, error) {
	prompt, ok := sectionPrompts[sectionID]
	if !ok {
		return datatypes.SectionContent{}, fmt.Errorf("no prompt for section %q", sectionID)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return datatypes.SectionContent{}, fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: renderSnapshot(snapshot)},
		},
	})
	if err != nil {
		return datatypes.SectionContent{}, fmt.Errorf("chat completion for section %s: %w", sectionID, err)
	}
	if len(resp.Choices) == 0 {
		return datatypes.SectionContent{}, fmt.Errorf("chat completion for section %s returned no choices", sectionID)
	}

	a.logger.Debug("section generated",
		slog.String("section", string(sectionID)),
		slog.String("model", a.model),
		slog.Duration("duration", time.Since(start)),
	)

	return datatypes.SectionContent{
		SectionID:   sectionID,
		Body:        resp.Choices[0].Message.Content,
		Model:       a.model,
		GeneratedAt: time.Now(),
	}, nil
}

// renderSnapshot renders the trip fields into a deterministic prompt body.
func renderSnapshot(snapshot datatypes.TripSnapshot) string {
	fields := snapshot.FieldNames()
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("Trip details:\n")
	for _, field := range fields {
		fmt.Fprintf(&b, "- %s: %v\n", field, snapshot[field])
	}
	return b.String()
}

var _ Agent = (*OpenAIAgent)(nil)
