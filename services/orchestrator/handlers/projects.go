// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers of the REST surface. Each
// handler is a constructor taking its collaborators and returning a
// gin.HandlerFunc; the core components never see gin.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateProject creates a new project scope.
func CreateProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateProjectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		project := &datatypes.Project{Name: req.Name, OwnerRef: req.OwnerRef}
		if err := s.CreateProject(c.Request.Context(), project); err != nil {
			slog.Error("Failed to create project", "name", req.Name, "error", err)
			c.JSON(http.StatusConflict, gin.H{"error": "project name already exists"})
			return
		}
		slog.Info("Project created", "project_id", project.ID, "name", project.Name)
		c.JSON(http.StatusCreated, project)
	}
}

// ListProjects lists every project.
func ListProjects(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		projects, err := s.ListProjects(c.Request.Context())
		if err != nil {
			slog.Error("Failed to list projects", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

// DeleteProject cascade-deletes a project's catalog and dependency
// graph; run history is detached, not deleted.
func DeleteProject(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.DeleteProject(c.Request.Context(), id); err != nil {
			slog.Error("Failed to delete project", "project_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project"})
			return
		}
		slog.Info("Project deleted", "project_id", id)
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "projectId": id})
	}
}

// ListApis lists a project's catalog.
func ListApis(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		apis, err := s.ListApis(c.Request.Context(), c.Param("id"))
		if err != nil {
			slog.Error("Failed to list apis", "project_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list apis"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"apis": apis})
	}
}

// GetApi returns one endpoint with candidate-confidence enrichment: a
// variable claimed by a pending candidate mapping is surfaced as
// dependent_candidate with the candidate's confidence, without mutating
// the stored row.
func GetApi(s *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		api, err := s.GetApi(ctx, c.Param("id"))
		if err != nil {
			slog.Error("Failed to load api", "api_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load api"})
			return
		}
		if api == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "api not found"})
			return
		}

		cands, err := s.ListCandidatesForTarget(ctx, api.ID)
		if err != nil {
			slog.Error("Failed to load candidates", "api_id", api.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load candidates"})
			return
		}
		confidence := map[string]float64{}
		for _, cand := range cands {
			for name := range cand.Mapping {
				if existing, ok := confidence[name]; !ok || cand.Confidence > existing {
					confidence[name] = cand.Confidence
				}
			}
		}
		for i := range api.Variables {
			v := &api.Variables[i]
			if conf, ok := confidence[v.Name]; ok && v.VarType == datatypes.VarTypeUserInput {
				v.VarType = datatypes.VarTypeDependentCandidate
				conf := conf
				v.AIConfidence = &conf
			}
		}
		c.JSON(http.StatusOK, api)
	}
}
