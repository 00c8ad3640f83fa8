// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/latticeci/lattice/services/llm"
	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

var tracer = otel.Tracer("lattice.orchestrator.analysis")

// consumerBatchSize bounds how many consumer endpoints share one LLM
// prompt. Small batches keep the model focused and make a single bad
// reply cheap to lose.
const consumerBatchSize = 3

// llmBatchTimeout is the per-batch deadline for a chat call.
const llmBatchTimeout = 10 * time.Minute

// Analyzer is the dependency inference pipeline: deterministic pass,
// LLM augmentation, post-processing, wholesale candidate replacement.
type Analyzer struct {
	store *store.Store
	llm   llm.Client
	model string
}

// NewAnalyzer builds an Analyzer. client may be nil, in which case only
// the deterministic pass runs.
func NewAnalyzer(s *store.Store, client llm.Client, model string) *Analyzer {
	return &Analyzer{store: s, llm: client, model: model}
}

// Analyze infers dependency candidates for every consumer endpoint of
// the project and replaces the project's candidate set atomically. LLM
// batch failures are absorbed: the deterministic candidates and the
// other batches still land.
func (a *Analyzer) Analyze(ctx context.Context, projectID string) ([]datatypes.DependencyCandidate, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	apis, err := a.store.ListApis(ctx, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	producers := BuildProducerMap(apis)
	candidates := DeterministicCandidates(apis, producers)
	slog.Info("Deterministic analysis complete", "project_id", projectID,
		"candidates", len(candidates))

	if a.llm != nil {
		candidates = append(candidates, a.llmCandidates(ctx, apis)...)
	}

	accepted := PostProcess(candidates, apis, producers)
	rows := make([]datatypes.DependencyCandidate, 0, len(accepted))
	for _, c := range accepted {
		rows = append(rows, datatypes.DependencyCandidate{
			ProjectID:      projectID,
			SourceApiID:    c.SourceApiID,
			TargetApiID:    c.TargetApiID,
			Mapping:        datatypes.JSONMapFromStrings(map[string]string{c.Variable: c.SourceField}),
			Confidence:     c.Confidence,
			Reason:         c.Reason,
			Origin:         c.Origin,
			StructuralType: c.StructuralType,
			DependencyType: c.DependencyType,
			CreatedAt:      time.Now().UTC(),
		})
	}
	if err := a.store.ReplaceCandidates(ctx, projectID, rows); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.Info("Dependency analysis complete", "project_id", projectID,
		"candidates", len(rows))
	span.SetAttributes(attribute.Int("analysis.candidates", len(rows)))
	return rows, nil
}

// =============================================================================
// LLM pass
// =============================================================================

// producerContext is the catalog view the model sees for each potential
// producer endpoint.
type producerContext struct {
	ApiID     string                     `json:"apiId"`
	Method    string                     `json:"method"`
	Path      string                     `json:"path"`
	Responses map[string]json.RawMessage `json:"responses,omitempty"`
}

// consumerContext is one consumer endpoint with its open inputs.
type consumerContext struct {
	ApiID  string   `json:"apiId"`
	Method string   `json:"method"`
	Path   string   `json:"path"`
	Inputs []string `json:"inputs"`
}

// llmCandidate is the JSON shape the model is asked to reply with.
type llmCandidate struct {
	SourceApiID    string  `json:"sourceApiId"`
	TargetApiID    string  `json:"targetApiId"`
	Variable       string  `json:"variable"`
	SourceField    string  `json:"sourceField"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	StructuralType string  `json:"structuralType"`
	DependencyType string  `json:"dependencyType"`
}

// llmCandidates asks the model for proposals, batching consumers and
// absorbing per-batch failures.
func (a *Analyzer) llmCandidates(ctx context.Context, apis []datatypes.Api) []Candidate {
	ctx, span := tracer.Start(ctx, "Analyzer.llmCandidates")
	defer span.End()

	producers := make([]producerContext, 0, len(apis))
	for i := range apis {
		producers = append(producers, buildProducerContext(&apis[i]))
	}
	consumers := buildConsumerContexts(apis)
	if len(consumers) == 0 {
		return nil
	}

	var out []Candidate
	for start := 0; start < len(consumers); start += consumerBatchSize {
		end := start + consumerBatchSize
		if end > len(consumers) {
			end = len(consumers)
		}
		batch := consumers[start:end]
		proposals, err := a.analyzeBatch(ctx, producers, batch)
		if err != nil {
			slog.Error("LLM batch failed, keeping deterministic candidates for it",
				"error", err, "batch_start", start, "batch_size", len(batch))
			span.RecordError(err)
			continue
		}
		for _, p := range proposals {
			out = append(out, Candidate{
				SourceApiID:    p.SourceApiID,
				TargetApiID:    p.TargetApiID,
				Variable:       p.Variable,
				SourceField:    p.SourceField,
				Confidence:     p.Confidence,
				Reason:         p.Reason,
				Origin:         datatypes.OriginInferred,
				StructuralType: p.StructuralType,
				DependencyType: p.DependencyType,
			})
		}
	}
	return out
}

func (a *Analyzer) analyzeBatch(ctx context.Context, producers []producerContext,
	consumers []consumerContext) ([]llmCandidate, error) {

	ctx, cancel := context.WithTimeout(ctx, llmBatchTimeout)
	defer cancel()

	prompt, err := buildPrompt(producers, consumers)
	if err != nil {
		return nil, err
	}
	resp, err := a.llm.Chat(ctx, llm.ChatRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Format:  "json",
		Stream:  false,
		Options: llm.Options{Temperature: 0},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Candidates []llmCandidate `json:"candidates"`
	}
	content := StripCodeFences(resp.Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse LLM candidate list: %w", err)
	}
	return parsed.Candidates, nil
}

const systemPrompt = `You are an API dependency analyzer. Given a list of producer endpoints with their response schemas and a list of consumer endpoints with their open inputs, propose which producer outputs should feed which consumer inputs.

Reply with strict JSON only, shaped as:
{"candidates":[{"sourceApiId":"...","targetApiId":"...","variable":"<consumer input name>","sourceField":"<dot-path into producer response>","confidence":0.0,"reason":"...","structuralType":"variable","dependencyType":"dependent"}]}

Rules:
- Only propose variables that appear in the consumer's input list.
- Never propose an endpoint as its own producer.
- confidence is your belief in [0,1] that the link is real.`

func buildPrompt(producers []producerContext, consumers []consumerContext) (string, error) {
	payload := map[string]interface{}{
		"producers": producers,
		"consumers": consumers,
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return "Analyze the following catalog and propose dependencies:\n\n" + string(raw), nil
}

func buildProducerContext(api *datatypes.Api) producerContext {
	pc := producerContext{ApiID: api.ID, Method: api.Method, Path: api.Path}
	if len(api.Responses) > 0 {
		pc.Responses = map[string]json.RawMessage{}
		for _, resp := range api.Responses {
			if len(resp.Schema) > 0 {
				pc.Responses[fmt.Sprintf("%d", resp.StatusCode)] = json.RawMessage(resp.Schema)
			}
		}
	}
	return pc
}

// buildConsumerContexts selects every Api with at least one user_input
// variable after stripping Authorization headers — those are linked
// deterministically and never shown to the model.
func buildConsumerContexts(apis []datatypes.Api) []consumerContext {
	var out []consumerContext
	for i := range apis {
		api := &apis[i]
		var inputs []string
		for _, v := range api.Variables {
			if v.Name == "Authorization" && v.Location == datatypes.LocationHeader {
				continue
			}
			if v.VarType != datatypes.VarTypeUserInput {
				continue
			}
			inputs = append(inputs, fmt.Sprintf("%s (%s)", v.Name, v.DataType))
		}
		if len(inputs) == 0 {
			continue
		}
		out = append(out, consumerContext{
			ApiID:  api.ID,
			Method: api.Method,
			Path:   api.Path,
			Inputs: inputs,
		})
	}
	return out
}

// StripCodeFences removes a wrapping Markdown code fence from model
// output, tolerating a language tag after the opening fence.
func StripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
