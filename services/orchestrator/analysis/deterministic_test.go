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
	gormtypes "gorm.io/datatypes"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

func api(id, method, path string) datatypes.Api {
	return datatypes.Api{ID: id, Method: method, Path: path}
}

func withResponse(a datatypes.Api, status int, schema string) datatypes.Api {
	a.Responses = append(a.Responses, datatypes.ApiResponse{
		ApiID: a.ID, StatusCode: status, Schema: gormtypes.JSON(schema),
	})
	return a
}

func withVariable(a datatypes.Api, name, location string) datatypes.Api {
	a.Variables = append(a.Variables, datatypes.Variable{
		ApiID: a.ID, Name: name, Location: location,
		VarType: datatypes.VarTypeUserInput,
	})
	return a
}

func TestBuildProducerMap(t *testing.T) {
	apis := []datatypes.Api{
		api("orders-post", "POST", "/orders"),
		api("orders-get", "GET", "/orders"),
		api("users-get", "GET", "/users"),
		api("register", "POST", "/register"),
		api("detail", "GET", "/orders/{id}"),
		api("nested", "POST", "/orders/{id}/items"),
	}
	m := BuildProducerMap(apis)

	require.Contains(t, m, "orderId")
	assert.Equal(t, "orders-post", m["orderId"].ID, "POST wins over GET for the same resource")
	assert.Equal(t, "users-get", m["userId"].ID)
	require.Contains(t, m, "registerId")
	assert.NotContains(t, m, "detailId")
	assert.NotContains(t, m, "itemId", "nested paths are not root collections")
}

func TestRegisterProducesUserId(t *testing.T) {
	m := BuildProducerMap([]datatypes.Api{api("register", "POST", "/register")})
	require.Contains(t, m, "userId")
	assert.Equal(t, "register", m["userId"].ID)
}

func TestRewritePathParam(t *testing.T) {
	assert.Equal(t, "orderId", RewritePathParam("/orders/{id}", "id"))
	assert.Equal(t, "userId", RewritePathParam("/users/{id}", "id"))
	assert.Equal(t, "orderId", RewritePathParam("/orders/{orderId}", "orderId"),
		"explicit names pass through")
	assert.Equal(t, "id", RewritePathParam("/{id}", "id"),
		"no preceding resource segment, no rewrite")
}

func TestAuthChainCandidates(t *testing.T) {
	login := withResponse(api("login", "POST", "/login"), 200,
		`{"type":"object","properties":{"accessToken":{"type":"string"}}}`)
	refresh := withResponse(api("refresh", "POST", "/refresh"), 200,
		`{"type":"object","properties":{"refresh_token":{"type":"string"}}}`)
	me := withVariable(api("me", "GET", "/me"), "Authorization", datatypes.LocationHeader)

	cands := DeterministicCandidates([]datatypes.Api{login, refresh, me}, ProducerMap{})

	require.Len(t, cands, 2)
	bySource := map[string]Candidate{}
	for _, c := range cands {
		bySource[c.SourceApiID] = c
	}
	access := bySource["login"]
	assert.Equal(t, "me", access.TargetApiID)
	assert.Equal(t, "Authorization", access.Variable)
	assert.Equal(t, "accessToken", access.SourceField)
	assert.Equal(t, 1.0, access.Confidence)
	assert.Equal(t, "Deterministic Auth: Bearer Token", access.Reason)
	assert.Equal(t, datatypes.OriginDeterministic, access.Origin)

	assert.Equal(t, "refresh_token", bySource["refresh"].SourceField,
		"token field preference applies per producer")
}

func TestAuthChainSkipsSelf(t *testing.T) {
	login := withVariable(withResponse(api("login", "POST", "/login"), 200,
		`{"type":"object","properties":{"accessToken":{"type":"string"}}}`),
		"Authorization", datatypes.LocationHeader)

	cands := DeterministicCandidates([]datatypes.Api{login}, ProducerMap{})
	assert.Empty(t, cands)
}

func TestProducerIDCandidates(t *testing.T) {
	orders := withResponse(api("orders-post", "POST", "/orders"), 201,
		`{"type":"object","properties":{"id":{"type":"string"}}}`)
	detail := withVariable(api("detail", "GET", "/orders/{id}"), "id", datatypes.LocationPath)
	apis := []datatypes.Api{orders, detail}

	cands := DeterministicCandidates(apis, BuildProducerMap(apis))

	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, "orders-post", c.SourceApiID)
	assert.Equal(t, "detail", c.TargetApiID)
	assert.Equal(t, "id", c.Variable)
	assert.Equal(t, "id", c.SourceField)
	assert.Equal(t, datatypes.OriginDeterministic, c.Origin)
}
