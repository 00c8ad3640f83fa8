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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

func proposal(source, target, variable, field string, confidence float64) Candidate {
	return Candidate{
		SourceApiID: source, TargetApiID: target,
		Variable: variable, SourceField: field, Confidence: confidence,
	}
}

func TestScopeFilterDropsHallucinations(t *testing.T) {
	producer := api("orders-post", "POST", "/orders")
	consumer := withVariable(api("pay", "POST", "/payments"), "amount", datatypes.LocationBody)
	apis := []datatypes.Api{producer, consumer}

	out := PostProcess([]Candidate{
		proposal("orders-post", "pay", "randomField", "id", 0.9),
		proposal("orders-post", "pay", "amount", "total", 0.5),
	}, apis, ProducerMap{})

	require.Len(t, out, 1)
	assert.Equal(t, "amount", out[0].Variable)
}

func TestSelfReferenceDiscarded(t *testing.T) {
	a := withVariable(api("a", "POST", "/things"), "name", datatypes.LocationBody)
	out := PostProcess([]Candidate{
		proposal("a", "a", "name", "name", 0.9),
	}, []datatypes.Api{a}, ProducerMap{})
	assert.Empty(t, out)
}

func TestPathIDOverride(t *testing.T) {
	producer := api("orders-post", "POST", "/orders")
	consumer := withVariable(api("detail", "GET", "/items/{itemId}"), "itemId", datatypes.LocationPath)
	apis := []datatypes.Api{producer, consumer}

	out := PostProcess([]Candidate{
		proposal("orders-post", "detail", "itemId", "sku", 0.95),
	}, apis, ProducerMap{})

	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, "variable", c.StructuralType)
	assert.Equal(t, "dependent", c.DependencyType)
	assert.Equal(t, "[System Logic] Path Parameter ID override", c.Reason)
	assert.LessOrEqual(t, c.Confidence, 0.6)
}

func TestConfidenceClamps(t *testing.T) {
	t.Run("lifecycle source path caps at 0.5", func(t *testing.T) {
		source := api("status", "GET", "/orders/{id}/status")
		consumer := withVariable(api("pay", "POST", "/payments"), "state", datatypes.LocationBody)
		out := PostProcess([]Candidate{
			proposal("status", "pay", "state", "state", 0.9),
		}, []datatypes.Api{source, consumer}, ProducerMap{})
		require.Len(t, out, 1)
		assert.Equal(t, 0.5, out[0].Confidence)
	})

	t.Run("non-POST-collection source caps at 0.6", func(t *testing.T) {
		source := api("detail", "GET", "/widgets")
		consumer := withVariable(api("use", "POST", "/uses"), "widget", datatypes.LocationBody)
		out := PostProcess([]Candidate{
			proposal("detail", "use", "widget", "name", 0.9),
		}, []datatypes.Api{source, consumer}, ProducerMap{})
		require.Len(t, out, 1)
		assert.Equal(t, 0.6, out[0].Confidence)
	})

	t.Run("soft cap 0.8 applies to clean POST-collection links", func(t *testing.T) {
		source := api("create", "POST", "/widgets")
		consumer := withVariable(api("use", "POST", "/uses"), "widget", datatypes.LocationBody)
		out := PostProcess([]Candidate{
			proposal("create", "use", "widget", "name", 0.97),
		}, []datatypes.Api{source, consumer}, ProducerMap{})
		require.Len(t, out, 1)
		assert.Equal(t, 0.8, out[0].Confidence)
	})

	t.Run("id usage caps at 0.6 and rounds to two decimals", func(t *testing.T) {
		source := api("create", "POST", "/widgets")
		consumer := withVariable(api("use", "POST", "/uses"), "widgetId", datatypes.LocationBody)
		out := PostProcess([]Candidate{
			proposal("create", "use", "widgetId", "id", 0.555555),
		}, []datatypes.Api{source, consumer}, ProducerMap{})
		require.Len(t, out, 1)
		assert.Equal(t, 0.56, out[0].Confidence)
	})
}

func TestDeterministicAuthBypassesClamps(t *testing.T) {
	login := withResponse(api("login", "POST", "/login"), 200,
		`{"type":"object","properties":{"accessToken":{"type":"string"}}}`)
	me := withVariable(api("me", "GET", "/me"), "Authorization", datatypes.LocationHeader)
	apis := []datatypes.Api{login, me}

	cands := DeterministicCandidates(apis, ProducerMap{})
	out := PostProcess(cands, apis, ProducerMap{})

	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Confidence,
		"the deterministic auth chain is never clamped")
	assert.Equal(t, "Deterministic Auth: Bearer Token", out[0].Reason)
}

func TestOriginTagging(t *testing.T) {
	producer := withResponse(api("orders-post", "POST", "/orders"), 201,
		`{"type":"object","properties":{"id":{"type":"string"}}}`)
	consumer := withVariable(api("use", "POST", "/uses"), "orderId", datatypes.LocationBody)
	apis := []datatypes.Api{producer, consumer}
	producers := BuildProducerMap(apis)

	out := PostProcess([]Candidate{
		proposal("orders-post", "use", "orderId", "id", 0.9),
	}, apis, producers)

	require.Len(t, out, 1)
	assert.Equal(t, datatypes.OriginDeterministic, out[0].Origin,
		"(variable, source) matches the producer map")
}

func TestDuplicateCandidatesCollapse(t *testing.T) {
	source := api("create", "POST", "/widgets")
	consumer := withVariable(api("use", "POST", "/uses"), "widget", datatypes.LocationBody)
	apis := []datatypes.Api{source, consumer}

	out := PostProcess([]Candidate{
		proposal("create", "use", "widget", "name", 0.7),
		proposal("create", "use", "widget", "label", 0.6),
	}, apis, ProducerMap{})

	require.Len(t, out, 1)
	assert.Equal(t, "name", out[0].SourceField, "first proposal wins")
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"{\"a\":1}", `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json\n{\"a\":1}\n```\n  ", `{"a":1}`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StripCodeFences(tc.in))
	}
}
