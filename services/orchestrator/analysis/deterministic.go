// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis infers producer→consumer dependency candidates for a
// project's catalog. A deterministic pass runs first — auth chains and a
// producer map for *Id path parameters — and an LLM pass augments it.
// Every proposal then passes the post-processing filters before the
// project's candidate set is replaced wholesale.
package analysis

import (
	"encoding/json"
	"strings"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

// Candidate is the working form of a proposed dependency before
// persistence.
type Candidate struct {
	SourceApiID    string
	TargetApiID    string
	Variable       string
	SourceField    string
	Confidence     float64
	Reason         string
	Origin         string
	StructuralType string
	DependencyType string

	// deterministicAuth marks auth-chain candidates. Their confidence is
	// fixed at 1.0 and the LLM-oriented filters never touch them.
	deterministicAuth bool
}

const reasonDeterministicAuth = "Deterministic Auth: Bearer Token"
const reasonProducerMap = "Deterministic Producer Map"

// tokenFields is the auth-chain preference order; the first response
// property present wins per (producer, consumer) pair.
var tokenFields = []string{"accessToken", "access_token", "refreshToken", "refresh_token"}

// ProducerMap records which endpoint likely produces each inferred *Id.
type ProducerMap map[string]*datatypes.Api

// BuildProducerMap derives the producer map from root-collection
// endpoints: a single-segment path like /orders under POST or GET
// produces orderId. POST /register additionally produces userId unless an
// endpoint earlier in apis has already claimed userId. POST wins over GET
// when both exist for the same resource.
func BuildProducerMap(apis []datatypes.Api) ProducerMap {
	m := ProducerMap{}
	for i := range apis {
		api := &apis[i]
		if api.Method != "POST" && api.Method != "GET" {
			continue
		}
		segs := pathSegments(api.Path)
		if len(segs) != 1 || strings.Contains(segs[0], "{") {
			continue
		}
		inferredID := singularize(segs[0]) + "Id"
		if existing, ok := m[inferredID]; !ok || (existing.Method != "POST" && api.Method == "POST") {
			m[inferredID] = api
		}
		if api.Method == "POST" && api.Path == "/register" {
			if _, ok := m["userId"]; !ok {
				m["userId"] = api
			}
		}
	}
	return m
}

// DeterministicCandidates emits the high-confidence pass: the auth chain
// and producer-map bindings for *Id path parameters. Producer-map
// candidates carry confidence 1.0 here; post-processing caps them.
func DeterministicCandidates(apis []datatypes.Api, producers ProducerMap) []Candidate {
	var out []Candidate
	out = append(out, authChainCandidates(apis)...)
	out = append(out, producerIDCandidates(apis, producers)...)
	return out
}

// authChainCandidates links every Authorization-consuming endpoint to
// every endpoint whose response carries a token field.
func authChainCandidates(apis []datatypes.Api) []Candidate {
	type tokenProducer struct {
		api   *datatypes.Api
		field string
	}
	var producers []tokenProducer
	for i := range apis {
		api := &apis[i]
		if field := firstTokenField(api); field != "" {
			producers = append(producers, tokenProducer{api: api, field: field})
		}
	}

	var out []Candidate
	for i := range apis {
		consumer := &apis[i]
		if !hasAuthorizationHeader(consumer) {
			continue
		}
		for _, p := range producers {
			if p.api.ID == consumer.ID {
				continue
			}
			out = append(out, Candidate{
				SourceApiID:       p.api.ID,
				TargetApiID:       consumer.ID,
				Variable:          "Authorization",
				SourceField:       p.field,
				Confidence:        1.0,
				Reason:            reasonDeterministicAuth,
				Origin:            datatypes.OriginDeterministic,
				deterministicAuth: true,
			})
		}
	}
	return out
}

// producerIDCandidates binds each *Id path parameter of a consumer to
// the producer-map endpoint for that id, applying the context-sensitive
// rewrite for literal {id} segments.
func producerIDCandidates(apis []datatypes.Api, producers ProducerMap) []Candidate {
	var out []Candidate
	for i := range apis {
		consumer := &apis[i]
		for _, v := range consumer.Variables {
			if v.Location != datatypes.LocationPath {
				continue
			}
			key := RewritePathParam(consumer.Path, v.Name)
			if !strings.HasSuffix(key, "Id") {
				continue
			}
			producer, ok := producers[key]
			if !ok || producer.ID == consumer.ID {
				continue
			}
			out = append(out, Candidate{
				SourceApiID: producer.ID,
				TargetApiID: consumer.ID,
				Variable:    v.Name,
				SourceField: producedIDField(producer, key),
				Confidence:  1.0,
				Reason:      reasonProducerMap,
				Origin:      datatypes.OriginDeterministic,
			})
		}
	}
	return out
}

// RewritePathParam resolves a consumer's parameter name into the
// producer-map key. A literal {id} segment preceded by a resource
// segment R binds to singular(R)+"Id"; anything else binds to itself.
func RewritePathParam(path, param string) string {
	if param != "id" {
		return param
	}
	segs := pathSegments(path)
	for i, seg := range segs {
		if seg == "{id}" && i > 0 && !strings.Contains(segs[i-1], "{") {
			return singularize(segs[i-1]) + "Id"
		}
	}
	return param
}

// producedIDField picks the response selector for a producer-map
// candidate: the literal "id" property when the producer's response has
// one, else the inferred id name.
func producedIDField(producer *datatypes.Api, inferredID string) string {
	props := responseProperties(producer)
	if props["id"] {
		return "id"
	}
	if props[inferredID] {
		return inferredID
	}
	return "id"
}

// firstTokenField returns the preferred token property present in any of
// the producer's response schemas, or "".
func firstTokenField(api *datatypes.Api) string {
	props := responseProperties(api)
	for _, field := range tokenFields {
		if props[field] {
			return field
		}
	}
	return ""
}

// responseProperties collects the top-level property names across all of
// an Api's response schemas. Array schemas contribute their item
// properties.
func responseProperties(api *datatypes.Api) map[string]bool {
	props := map[string]bool{}
	for _, resp := range api.Responses {
		if len(resp.Schema) == 0 {
			continue
		}
		var schema map[string]interface{}
		if err := json.Unmarshal(resp.Schema, &schema); err != nil {
			continue
		}
		collectProps(schema, props)
	}
	return props
}

func collectProps(schema map[string]interface{}, out map[string]bool) {
	if properties, ok := schema["properties"].(map[string]interface{}); ok {
		for name := range properties {
			out[name] = true
		}
	}
	if items, ok := schema["items"].(map[string]interface{}); ok {
		collectProps(items, out)
	}
}

func hasAuthorizationHeader(api *datatypes.Api) bool {
	for _, v := range api.Variables {
		if v.Name == "Authorization" && v.Location == datatypes.LocationHeader {
			return true
		}
	}
	return false
}

func pathSegments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func singularize(resource string) string {
	return strings.TrimSuffix(resource, "s")
}
