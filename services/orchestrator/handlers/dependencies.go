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

	"github.com/gin-gonic/gin"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/registry"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

// ListDependencies lists a project's confirmed dependencies.
func ListDependencies(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps, err := s.ListDependencies(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("Failed to list dependencies", "project_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dependencies"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"dependencies": deps})
	}
}

// PromoteDependency confirms a candidate or manual mapping.
func PromoteDependency(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.PromoteDependencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dep, err := reg.Promote(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, registry.ErrSelfDependency) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("Failed to promote dependency", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to promote dependency"})
			return
		}
		c.JSON(http.StatusCreated, dep)
	}
}

// DeleteDependency removes a confirmed dependency.
func DeleteDependency(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := reg.Delete(c.Request.Context(), id); err != nil {
			slog.Error("Failed to delete dependency", "dependency_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete dependency"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "dependencyId": id})
	}
}
