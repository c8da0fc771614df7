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

import (
	"github.com/google/uuid"

	"github.com/AleutianAI/TripSmith/services/revision/datatypes"
)

// subscriberBuffer bounds each subscriber channel. A run with a full
// roster produces at most a few dozen transitions; a slow consumer that
// overflows the buffer loses intermediate snapshots but always receives
// the terminal one before close.
const subscriberBuffer = 64

// Subscribe registers a progress listener for a run.
//
// Description:
//
//	The returned channel first delivers the run's current snapshot, then a
//	cloned snapshot after every state transition, and is closed once the
//	run reaches a terminal state. Subscribing to an already-terminal run
//	yields exactly one snapshot and a closed channel.
//
// Outputs:
//
//	<-chan datatypes.RecalculationRun - The progress channel.
//	func() - Unsubscribe. Safe to call multiple times; after the run ends
//	  it is a no-op.
//	error - ErrRunNotFound for an unknown run ID.
func (o *Orchestrator) Subscribe(runID string) (<-chan datatypes.RecalculationRun, func(), error) {
	rs, err := o.lookup(runID)
	if err != nil {
		return nil, nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	ch := make(chan datatypes.RecalculationRun, subscriberBuffer)
	ch <- rs.run.Clone()

	if rs.run.Status.IsTerminal() {
		close(ch)
		return ch, func() {}, nil
	}

	id := uuid.NewString()
	rs.subscribers[id] = ch

	unsubscribe := func() {
		rs.mu.Lock()
		defer rs.mu.Unlock()
		if sub, ok := rs.subscribers[id]; ok {
			delete(rs.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe, nil
}

// publishLocked pushes a cloned snapshot to every subscriber. Callers
// hold rs.mu. Sends never block; an overflowing subscriber drops the
// oldest undelivered snapshot to make room for the newest.
func (o *Orchestrator) publishLocked(rs *runState) {
	if len(rs.subscribers) == 0 {
		return
	}
	snapshot := rs.run.Clone()
	for _, ch := range rs.subscribers {
		for {
			select {
			case ch <- snapshot:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// closeSubscribersLocked closes all subscriber channels after the final
// snapshot has been published. Callers hold rs.mu.
func (o *Orchestrator) closeSubscribersLocked(rs *runState) {
	for id, ch := range rs.subscribers {
		close(ch)
		delete(rs.subscribers, id)
	}
}
