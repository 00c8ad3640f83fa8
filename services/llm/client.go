// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm defines the chat client interface the analyzer depends on
// and the Ollama-wire implementation of it.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the generation options sent with a chat request.
type Options struct {
	Temperature float64 `json:"temperature"`
}

// ChatRequest is the wire shape of a chat call. Format "json" asks the
// backend to constrain output to a JSON document.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Format   string    `json:"format,omitempty"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

// ChatResponse carries the assistant message back.
type ChatResponse struct {
	Message Message `json:"message"`
}

// Client is the interface any LLM backend implements. Batching and
// prompt construction are the caller's concern; Chat blocks until the
// backend answers or ctx expires.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
