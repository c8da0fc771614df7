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
	"errors"
	"fmt"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// AgentError is a per-job generation failure.
//
// The orchestrator retries AgentErrors up to the retry ceiling; after that
// the failure becomes part of the run's terminal state with the job's last
// error preserved. Timeouts are AgentErrors with Timeout set and follow
// the same retry rules.
type AgentError struct {
	AgentID   datatypes.AgentID
	SectionID datatypes.ReportSectionID
	Timeout   bool
	Err       error
}

func (e *AgentError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("agent %s timed out generating section %s: %v", e.AgentID, e.SectionID, e.Err)
	}
	return fmt.Sprintf("agent %s failed generating section %s: %v", e.AgentID, e.SectionID, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is an AgentError caused by a timeout.
func IsTimeout(err error) bool {
	var agentErr *AgentError
	return errors.As(err, &agentErr) && agentErr.Timeout
}
