// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/latticeci/lattice/services/llm"
	"github.com/latticeci/lattice/services/orchestrator/analysis"
	"github.com/latticeci/lattice/services/orchestrator/executor"
	"github.com/latticeci/lattice/services/orchestrator/ingest"
	"github.com/latticeci/lattice/services/orchestrator/observability"
	"github.com/latticeci/lattice/services/orchestrator/registry"
	"github.com/latticeci/lattice/services/orchestrator/routes"
	"github.com/latticeci/lattice/services/orchestrator/store"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// No collector configured; tracing stays a no-op.
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("lattice-orchestrator")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("LATTICE_PORT")
	if port == "" {
		port = "12400"
	}
	dbPath := os.Getenv("LATTICE_DB_PATH")
	if dbPath == "" {
		dbPath = "lattice.db"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	catalog, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open catalog store: %v", err)
	}

	var chatClient llm.Client
	ollama, err := llm.NewOllamaClient()
	if err != nil {
		slog.Warn("LLM client unavailable, analysis runs deterministic-only", "error", err)
	} else {
		chatClient = ollama
	}

	metrics := observability.New()
	ingestor := ingest.New(catalog)
	analyzer := analysis.NewAnalyzer(catalog, chatClient, os.Getenv("OLLAMA_MODEL"))
	reg := registry.New(catalog)
	exec := executor.New(catalog, executor.WithMetrics(metrics))
	reporter := executor.NewReporter(catalog)

	router := gin.Default()
	router.Use(otelgin.Middleware("lattice-orchestrator"))
	routes.SetupRoutes(router, catalog, ingestor, analyzer, reg, exec, reporter, metrics)

	slog.Info("Starting orchestrator service", "port", port, "db_path", dbPath)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("orchestrator service failed: %v", err)
	}
}
