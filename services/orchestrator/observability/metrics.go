// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the
// orchestrator: ingest volume, analysis output, and run outcomes.
// Metrics are exposed via /metrics; all operations are thread-safe via
// Prometheus's internal locking. Every method tolerates a nil receiver
// so components can run unmetered in tests.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "lattice"

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	SpecsIngested       prometheus.Counter
	EndpointsIngested   prometheus.Counter
	CandidatesProduced  prometheus.Counter
	RunsTotal           *prometheus.CounterVec
	ExecutionsTotal     *prometheus.CounterVec
	ExecutionDurationMs prometheus.Histogram
}

// New registers the orchestrator metrics with the default registry.
// Call once at startup.
func New() *Metrics {
	return &Metrics{
		SpecsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "specs_ingested_total",
			Help:      "Number of OpenAPI documents ingested.",
		}),
		EndpointsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "endpoints_ingested_total",
			Help:      "Number of endpoints written by the ingestor.",
		}),
		CandidatesProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "candidates_produced_total",
			Help:      "Number of dependency candidates persisted by analysis.",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Number of test runs by terminal status.",
		}, []string{"status"}),
		ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Number of endpoint executions by status.",
		}, []string{"status"}),
		ExecutionDurationMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execution_duration_ms",
			Help:      "Latency of target endpoint calls in milliseconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
}

// ObserveIngest records one ingested spec and its endpoint count.
func (m *Metrics) ObserveIngest(endpoints int) {
	if m == nil {
		return
	}
	m.SpecsIngested.Inc()
	m.EndpointsIngested.Add(float64(endpoints))
}

// ObserveCandidates records the size of a persisted candidate set.
func (m *Metrics) ObserveCandidates(count int) {
	if m == nil {
		return
	}
	m.CandidatesProduced.Add(float64(count))
}

// ObserveRun records a terminal run status.
func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}

// ObserveExecution records one endpoint execution.
func (m *Metrics) ObserveExecution(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDurationMs.Observe(float64(elapsed.Milliseconds()))
}
