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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all revision routes with the router group.
//
// Endpoints:
//
//	POST /v1/trips/:tripId/commit - Diff, gate, and commit an edit
//	GET  /v1/trips/:tripId/versions - List version history
//	GET  /v1/trips/:tripId/versions/:number - Fetch one version
//	GET  /v1/trips/:tripId/compare - Compare two versions
//	POST /v1/trips/:tripId/restore - Restore an earlier version
//	POST /v1/trips/:tripId/recalculate - Start a recalculation run
//	GET  /v1/trips/:tripId/sections/:sectionId - Fetch generated content
//	GET  /v1/runs/:runId - Fetch run state
//	POST /v1/runs/:runId/cancel - Request cancellation
//	POST /v1/runs/:runId/retry - Re-queue failed jobs
//	GET  /v1/runs/:runId/progress - WebSocket progress stream
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	trips := rg.Group("/trips")
	{
		trips.POST("/:tripId/commit", handlers.HandleCommit)
		trips.GET("/:tripId/versions", handlers.HandleListVersions)
		trips.GET("/:tripId/versions/:number", handlers.HandleGetVersion)
		trips.GET("/:tripId/compare", handlers.HandleCompare)
		trips.POST("/:tripId/restore", handlers.HandleRestore)
		trips.POST("/:tripId/recalculate", handlers.HandleRecalculate)
		trips.GET("/:tripId/sections/:sectionId", handlers.HandleGetSection)
	}

	runs := rg.Group("/runs")
	{
		runs.GET("/:runId", handlers.HandleGetRun)
		runs.POST("/:runId/cancel", handlers.HandleCancelRun)
		runs.POST("/:runId/retry", handlers.HandleRetryRun)
		runs.GET("/:runId/progress", handlers.HandleRunProgress)
	}
}
