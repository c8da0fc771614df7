// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package revision

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/TripSmith/services/revision/recalc"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

const progressWriteTimeout = 10 * time.Second

// HandleRunProgress handles GET /v1/runs/:runId/progress.
//
// Description:
//
//	Upgrades the connection to a WebSocket and streams run snapshots: the
//	current state immediately, then one message per state transition. The
//	connection closes normally once the run reaches a terminal state. A
//	client connecting to an already-terminal run receives exactly one
//	snapshot.
//
// Response:
//
//	101 Switching Protocols on success
//	404 Not Found: unknown run ID
func (h *Handlers) HandleRunProgress(c *gin.Context) {
	runID := c.Param("runId")

	updates, unsubscribe, err := h.svc.orchestrator.Subscribe(runID)
	if err != nil {
		if errors.Is(err, recalc.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "RUN_NOT_FOUND"})
			return
		}
		h.writeError(c, err)
		return
	}
	defer unsubscribe()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer ws.Close()

	// Detect client disconnects so unsubscribe happens promptly instead
	// of waiting for the run to end.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case run, ok := <-updates:
			if !ok {
				deadline := time.Now().Add(progressWriteTimeout)
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), deadline)
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
			if err := ws.WriteJSON(run); err != nil {
				h.logger.Debug("progress write failed, dropping subscriber",
					slog.String("run_id", runID),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-disconnected:
			return
		}
	}
}
