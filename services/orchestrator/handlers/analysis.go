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

	"github.com/latticeci/lattice/services/orchestrator/analysis"
	"github.com/latticeci/lattice/services/orchestrator/observability"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

// HandleAnalyze runs the deterministic and LLM inference passes and
// replaces the project's candidate set.
func HandleAnalyze(analyzer *analysis.Analyzer, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("id")
		candidates, err := analyzer.Analyze(c.Request.Context(), projectID)
		if err != nil {
			slog.Error("Dependency analysis failed", "project_id", projectID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "dependency analysis failed"})
			return
		}
		metrics.ObserveCandidates(len(candidates))
		c.JSON(http.StatusOK, gin.H{"candidates": candidates})
	}
}

// ListCandidates lists the project's current candidate set.
func ListCandidates(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		candidates, err := s.ListCandidates(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("Failed to list candidates", "project_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list candidates"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"candidates": candidates})
	}
}
