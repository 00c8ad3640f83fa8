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
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/ingest"
	"github.com/latticeci/lattice/services/orchestrator/observability"
)

// HandleIngest invokes the spec ingestor. Accepts either a JSON body
// with {projectId, source} or a multipart form with a projectId field
// and an uploaded spec file.
func HandleIngest(ing *ingest.Ingestor, metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.IngestRequest
		var cleanup func()

		if strings.Contains(c.ContentType(), "multipart") {
			projectID := c.PostForm("projectId")
			file, err := c.FormFile("file")
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "missing spec file upload"})
				return
			}
			dst := filepath.Join(os.TempDir(), file.Filename)
			if err := c.SaveUploadedFile(file, dst); err != nil {
				slog.Error("Failed to save uploaded spec", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
				return
			}
			cleanup = func() { _ = os.Remove(dst) }
			req = datatypes.IngestRequest{ProjectID: projectID, Source: dst}
		} else {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
				return
			}
		}
		if cleanup != nil {
			defer cleanup()
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		endpoints, err := ing.Ingest(c.Request.Context(), req.ProjectID, req.Source)
		if err != nil {
			slog.Error("Spec ingest failed", "project_id", req.ProjectID, "error", err)
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, ingest.ErrUnsupportedVersion):
				status = http.StatusUnprocessableEntity
			case errors.Is(err, ingest.ErrInvalidSpec),
				errors.Is(err, ingest.ErrUnserializableSchema):
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		metrics.ObserveIngest(len(endpoints))
		c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
	}
}
