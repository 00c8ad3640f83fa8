// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latticeci/lattice/services/orchestrator/analysis"
	"github.com/latticeci/lattice/services/orchestrator/executor"
	"github.com/latticeci/lattice/services/orchestrator/handlers"
	"github.com/latticeci/lattice/services/orchestrator/ingest"
	"github.com/latticeci/lattice/services/orchestrator/observability"
	"github.com/latticeci/lattice/services/orchestrator/registry"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

// SetupRoutes wires the REST surface over the core components.
func SetupRoutes(router *gin.Engine, s *store.Store, ing *ingest.Ingestor,
	analyzer *analysis.Analyzer, reg *registry.Registry,
	exec *executor.Executor, reporter *executor.Reporter,
	metrics *observability.Metrics) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/projects", handlers.CreateProject(s))
	router.GET("/projects", handlers.ListProjects(s))
	router.DELETE("/projects/:id", handlers.DeleteProject(s))

	router.POST("/ingest", handlers.HandleIngest(ing, metrics))

	router.GET("/projects/:id/apis", handlers.ListApis(s))
	router.GET("/apis/:id", handlers.GetApi(s))

	router.POST("/projects/:id/analyze", handlers.HandleAnalyze(analyzer, metrics))
	router.GET("/projects/:id/candidates", handlers.ListCandidates(s))

	router.GET("/projects/:id/dependencies", handlers.ListDependencies(s))
	router.POST("/dependencies", handlers.PromoteDependency(reg))
	router.DELETE("/dependencies/:id", handlers.DeleteDependency(reg))

	router.POST("/projects/:id/run", handlers.HandleRun(exec))
	router.GET("/runs/:id", handlers.GetRun(reporter))
}
