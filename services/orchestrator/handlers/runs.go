// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/executor"
)

// HandleRun executes the project's dependency graph against the given
// environment.
func HandleRun(exec *executor.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")
		var req datatypes.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		run, err := exec.ExecuteRun(c.Request.Context(), projectID, req.Environment)
		if err != nil {
			slog.Error("Run bookkeeping failed", "project_id", projectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to execute run"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runId": run.ID, "status": run.Status})
	}
}

// GetRun returns the run projection.
func GetRun(reporter *executor.Reporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := reporter.Report(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("Failed to project run", "run_id", c.Param("id"), "error", err)
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
