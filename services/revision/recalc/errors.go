// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recalc

import "errors"

// ErrAlreadyRunning is returned by Start when a non-terminal run already
// exists for the trip. The caller may poll the existing run or cancel it.
var ErrAlreadyRunning = errors.New("recalculation already running for trip")

// ErrRunNotFound is returned when the run ID is unknown.
var ErrRunNotFound = errors.New("recalculation run not found")

// ErrInvalidState is returned when an operation is not valid for the
// run's current state, e.g. retrying a run that has not failed.
var ErrInvalidState = errors.New("operation not valid in current run state")

// ErrNoSections is returned by Start when called with no sections.
var ErrNoSections = errors.New("no sections to recalculate")
