// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor runs a project's dependency graph against a live
// environment. Layers execute in sequence with a barrier between them;
// endpoints inside a layer run concurrently. Individual failures land on
// their execution rows and never abort the run.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	gormtypes "gorm.io/datatypes"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/observability"
	"github.com/latticeci/lattice/services/orchestrator/planner"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

var tracer = otel.Tracer("lattice.orchestrator.executor")

// Executor is the run execution component.
type Executor struct {
	store      *store.Store
	httpClient *http.Client
	metrics    *observability.Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the target-call client; tests point it at an
// httptest server.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) { e.httpClient = c }
}

// WithMetrics attaches run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New builds an Executor. The default client carries a request timeout
// only; 4xx and 5xx come back as normal responses so status
// classification happens in exactly one place.
func New(s *store.Store, opts ...Option) *Executor {
	e := &Executor{
		store:      s,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteRun plans and executes the project's graph against the
// environment base URL. The returned run carries the terminal status:
// COMPLETED when every layer settled (individual executions may still
// have FAILED), ERROR when planning or bookkeeping broke the run itself.
func (e *Executor) ExecuteRun(ctx context.Context, projectID, environment string) (*datatypes.TestRun, error) {
	ctx, span := tracer.Start(ctx, "Executor.ExecuteRun")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	run := &datatypes.TestRun{
		ProjectID:     &projectID,
		Environment:   environment,
		TriggerSource: "system",
		Status:        datatypes.RunStatusRunning,
		StartedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	apis, err := e.store.ListApis(ctx, projectID)
	if err != nil {
		return e.failRun(ctx, run, err)
	}
	deps, err := e.store.ListDependencies(ctx, projectID)
	if err != nil {
		return e.failRun(ctx, run, err)
	}

	plan, err := planner.Build(apis, deps)
	if err != nil {
		slog.Error("Execution planning failed", "run_id", run.ID, "error", err)
		return e.failRun(ctx, run, err)
	}
	span.SetAttributes(attribute.Int("run.levels", len(plan.Levels)))

	apiByID := map[string]*datatypes.Api{}
	for i := range apis {
		apiByID[apis[i].ID] = &apis[i]
	}
	depsByTarget := map[string][]datatypes.ApiDependency{}
	for _, dep := range deps {
		depsByTarget[dep.TargetApiID] = append(depsByTarget[dep.TargetApiID], dep)
	}

	rc := newRunContext()
	for levelIdx, level := range plan.Levels {
		slog.Info("Executing level", "run_id", run.ID, "level", levelIdx,
			"endpoints", len(level))
		g, gctx := errgroup.WithContext(ctx)
		for _, apiID := range level {
			api := apiByID[apiID]
			g.Go(func() error {
				e.executeEndpoint(gctx, run, api, depsByTarget[api.ID], rc)
				return nil
			})
		}
		// Barrier: the next layer must observe every context entry of
		// this one.
		_ = g.Wait()
	}

	if err := e.store.FinishRun(ctx, run.ID, datatypes.RunStatusCompleted); err != nil {
		span.RecordError(err)
		return nil, err
	}
	run.Status = datatypes.RunStatusCompleted
	now := time.Now().UTC()
	run.CompletedAt = &now
	e.metrics.ObserveRun(run.Status)
	slog.Info("Run completed", "run_id", run.ID, "levels", len(plan.Levels))
	return run, nil
}

// failRun marks the run terminal ERROR. The causing error is logged and
// reflected in the run status rather than propagated: per-run failures
// are data, not control flow.
func (e *Executor) failRun(ctx context.Context, run *datatypes.TestRun, cause error) (*datatypes.TestRun, error) {
	slog.Error("Run aborted", "run_id", run.ID, "error", cause)
	if err := e.store.FinishRun(ctx, run.ID, datatypes.RunStatusError); err != nil {
		return nil, err
	}
	run.Status = datatypes.RunStatusError
	now := time.Now().UTC()
	run.CompletedAt = &now
	e.metrics.ObserveRun(run.Status)
	return run, nil
}

// executeEndpoint performs one endpoint call: resolve inputs, issue the
// HTTP request, capture the artifact, classify, publish into the run
// context. Every failure path lands on the execution row.
func (e *Executor) executeEndpoint(ctx context.Context, run *datatypes.TestRun,
	api *datatypes.Api, deps []datatypes.ApiDependency, rc *runContext) {

	ctx, span := tracer.Start(ctx, "Executor.executeEndpoint")
	defer span.End()
	span.SetAttributes(
		attribute.String("api.method", api.Method),
		attribute.String("api.path", api.Path),
	)

	exec := &datatypes.TestExecution{
		RunID:  run.ID,
		ApiID:  &api.ID,
		Status: datatypes.ExecStatusRunning,
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		slog.Error("Failed to create execution row", "run_id", run.ID,
			"api_id", api.ID, "error", err)
		return
	}

	resolved, err := resolveInputs(deps, rc)
	if err != nil {
		e.finishExecution(ctx, exec, datatypes.ExecStatusFailed, err.Error())
		return
	}

	req, reqData, err := buildRequest(ctx, run.Environment, api, resolved)
	if err != nil {
		e.finishExecution(ctx, exec, datatypes.ExecStatusFailed, err.Error())
		return
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		e.recordArtifact(ctx, exec.ID, reqData, nil, elapsed)
		e.finishExecution(ctx, exec, datatypes.ExecStatusFailed, err.Error())
		e.metrics.ObserveExecution(datatypes.ExecStatusFailed, elapsed)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	parsed := parseBody(body)
	e.recordArtifact(ctx, exec.ID, reqData, map[string]interface{}{
		"status": resp.StatusCode,
		"body":   parsed,
	}, elapsed)

	status := datatypes.ExecStatusFailed
	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		status = datatypes.ExecStatusPassed
		message = ""
	}
	e.finishExecution(ctx, exec, status, message)
	e.metrics.ObserveExecution(status, elapsed)

	rc.put(api.ID, contextEntry{Response: parsed, Status: resp.StatusCode})
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
}

func (e *Executor) finishExecution(ctx context.Context, exec *datatypes.TestExecution,
	status, message string) {
	if err := e.store.UpdateExecution(ctx, exec.ID, status, message); err != nil {
		slog.Error("Failed to update execution row", "execution_id", exec.ID, "error", err)
	}
}

func (e *Executor) recordArtifact(ctx context.Context, execID string,
	reqData, respData map[string]interface{}, elapsed time.Duration) {

	art := &datatypes.ExecutionArtifact{
		ExecutionID:    execID,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if reqData != nil {
		if raw, err := json.Marshal(reqData); err == nil {
			art.RequestData = gormtypes.JSON(raw)
		}
	}
	if respData != nil {
		if raw, err := json.Marshal(respData); err == nil {
			art.ResponseData = gormtypes.JSON(raw)
		}
	}
	if err := e.store.CreateArtifact(ctx, art); err != nil {
		slog.Error("Failed to record artifact", "execution_id", execID, "error", err)
	}
}

// buildRequest hydrates the endpoint's request from the resolved
// variables: {key} path substitution, then query, header, and body
// placement according to each variable's location.
func buildRequest(ctx context.Context, environment string, api *datatypes.Api,
	resolved map[string]interface{}) (*http.Request, map[string]interface{}, error) {

	locations := map[string]string{}
	for _, v := range api.Variables {
		locations[v.Name] = v.Location
	}

	path := api.Path
	for key, value := range resolved {
		placeholder := "{" + key + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder,
				url.PathEscape(fmt.Sprintf("%v", value)))
		}
	}
	target := strings.TrimSuffix(environment, "/") + path

	query := url.Values{}
	headers := http.Header{}
	body := map[string]interface{}{}
	for key, value := range resolved {
		if value == nil {
			continue
		}
		switch locations[key] {
		case datatypes.LocationQuery:
			query.Set(key, fmt.Sprintf("%v", value))
		case datatypes.LocationHeader:
			headers.Set(key, headerValue(key, value))
		case datatypes.LocationBody:
			setBodyPath(body, key, value)
		}
	}

	var bodyReader io.Reader
	reqData := map[string]interface{}{
		"method": api.Method,
		"url":    target,
	}
	if len(body) > 0 {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		bodyReader = bytes.NewReader(raw)
		headers.Set("Content-Type", "application/json")
		reqData["body"] = body
	}

	req, err := http.NewRequestWithContext(ctx, api.Method, target, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
		reqData["query"] = query.Encode()
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	if len(headers) > 0 {
		flat := map[string]string{}
		for key := range headers {
			flat[key] = headers.Get(key)
		}
		reqData["headers"] = flat
	}
	return req, reqData, nil
}

// headerValue renders a resolved header value. Authorization values get
// the Bearer prefix unless the producer already included one.
func headerValue(name string, value interface{}) string {
	s := fmt.Sprintf("%v", value)
	if strings.EqualFold(name, "Authorization") && !strings.HasPrefix(s, "Bearer ") {
		return "Bearer " + s
	}
	return s
}

// parseBody decodes a response body as JSON, falling back to the raw
// string for non-JSON targets.
func parseBody(body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return string(body)
	}
	return parsed
}
