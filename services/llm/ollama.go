// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lattice.llm.ollama")

// Dependency analysis prompts can cover large catalogs and slow local
// models; the client-side ceiling stays above the analyzer's per-batch
// deadline so the context, not the transport, decides when to give up.
const defaultChatTimeout = 15 * time.Minute

// OllamaClient talks to an Ollama-compatible /api/chat endpoint.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaClient builds a client from OLLAMA_BASE_URL and OLLAMA_MODEL.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, requests must specify model, default llama3.1")
		model = "llama3.1"
	}
	baseURL = strings.TrimSuffix(strings.Trim(baseURL, "\"' "), "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: defaultChatTimeout},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Chat implements the Client interface against /api/chat.
func (o *OllamaClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()

	if req.Model == "" {
		req.Model = o.model
	}
	span.SetAttributes(attribute.String("llm.model", req.Model))
	span.SetAttributes(attribute.Int("llm.num_messages", len(req.Messages)))
	slog.Debug("Sending chat request to Ollama", "model", req.Model, "format", req.Format)

	chatURL := o.baseURL + "/api/chat"
	reqBodyBytes, err := json.Marshal(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	// Use NewRequestWithContext to respect context cancellation/timeout
	httpReq, err := http.NewRequestWithContext(ctx, "POST", chatURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama API call failed", "error", err)
		return ChatResponse{}, fmt.Errorf("Ollama API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ChatResponse{}, fmt.Errorf("failed to read response body from Ollama: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(respBodyBytes, &errResp); err == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", "model", req.Model)
				return ChatResponse{}, fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'",
					req.Model, req.Model)
			}
		}
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode,
			"response", string(respBodyBytes))
		return ChatResponse{}, fmt.Errorf("Ollama failed with status %d: %s",
			resp.StatusCode, string(respBodyBytes))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBodyBytes, &chatResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Ollama", "error", err,
			"response", string(respBodyBytes))
		return ChatResponse{}, fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	slog.Debug("Received chat response from Ollama")
	return chatResp, nil
}
