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
	"time"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// TemplateAgent generates placeholder section content without calling any
// external API. It is the offline default when no API key is configured,
// so the service remains fully exercisable in local development.
type TemplateAgent struct{}

// NewTemplateAgent creates a template agent.
func NewTemplateAgent() *TemplateAgent {
	return &TemplateAgent{}
}

// Generate renders a deterministic placeholder for the section.
func (a *TemplateAgent) Generate(ctx context.Context, sectionID datatypes.ReportSectionID, snapshot datatypes.TripSnapshot) (datatypes.SectionContent, error) {
	if err := ctx.Err(); err != nil {
		return datatypes.SectionContent{}, err
	}

	destination := "your destination"
	if d, ok := snapshot["destination"].(string); ok && d != "" {
		destination = d
	}

	return datatypes.SectionContent{
		SectionID:   sectionID,
		Body:        fmt.Sprintf("## %s\n\nGenerated %s guidance for %s.\n", sectionID, sectionID, destination),
		Model:       "template",
		GeneratedAt: time.Now(),
	}, nil
}

var _ Agent = (*TemplateAgent)(nil)
