// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

const shopSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "shop", "version": "1.2.0"},
  "security": [{"bearerAuth": []}],
  "components": {
    "securitySchemes": {
      "bearerAuth": {"type": "http", "scheme": "bearer"}
    }
  },
  "paths": {
    "/login": {
      "post": {
        "security": [],
        "requestBody": {
          "content": {
            "application/json": {
              "schema": {
                "type": "object",
                "required": ["email"],
                "properties": {
                  "email": {"type": "string"},
                  "password": {"type": "string", "format": "password"}
                }
              }
            }
          }
        },
        "responses": {
          "200": {
            "description": "ok",
            "content": {
              "application/json": {
                "schema": {
                  "type": "object",
                  "properties": {"accessToken": {"type": "string"}}
                }
              }
            }
          },
          "default": {"description": "error"}
        }
      }
    },
    "/orders": {
      "post": {
        "requestBody": {
          "content": {
            "multipart/form-data": {
              "schema": {"type": "object", "properties": {"attachment": {"type": "string"}}}
            },
            "application/json": {
              "schema": {
                "type": "object",
                "properties": {
                  "amount": {"type": "number"},
                  "createdAt": {"type": "string", "readOnly": true}
                }
              }
            }
          }
        },
        "responses": {
          "201": {
            "description": "created",
            "content": {
              "application/json": {
                "schema": {"type": "object", "properties": {"id": {"type": "string"}}}
              }
            }
          }
        }
      }
    },
    "/orders/{id}": {
      "parameters": [
        {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
      ],
      "get": {
        "parameters": [
          {"name": "expand", "in": "query", "schema": {"type": "boolean"}}
        ],
        "responses": {"200": {"description": "ok"}}
      }
    }
  }
}`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testIngest(t *testing.T, content string) (*store.Store, string, []EndpointRef, error) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	project := &datatypes.Project{Name: "shop"}
	require.NoError(t, s.CreateProject(context.Background(), project))

	refs, err := New(s).Ingest(context.Background(), project.ID, writeSpec(t, content))
	return s, project.ID, refs, err
}

func TestIngestWritesCatalog(t *testing.T) {
	s, projectID, refs, err := testIngest(t, shopSpec)
	require.NoError(t, err)

	assert.ElementsMatch(t, []EndpointRef{
		{Method: "POST", Path: "/login"},
		{Method: "POST", Path: "/orders"},
		{Method: "GET", Path: "/orders/{id}"},
	}, refs)

	apis, err := s.ListApis(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, apis, 3)

	byPath := map[string]datatypes.Api{}
	for _, api := range apis {
		byPath[api.Method+" "+api.Path] = api
	}

	login := byPath["POST /login"]
	require.NotNil(t, login.Request)
	assert.Empty(t, login.AuthScheme, "operation-level security [] overrides the document default")
	// Non-numeric response keys are skipped.
	require.Len(t, login.Responses, 1)
	assert.Equal(t, 200, login.Responses[0].StatusCode)

	orders := byPath["POST /orders"]
	// Document-level bearer security falls through to the operation.
	assert.Equal(t, "bearer", orders.AuthScheme)
	require.NotNil(t, orders.Request)
	// JSON wins over multipart.
	assert.Contains(t, string(orders.Request.BodySchema), "amount")
	assert.NotContains(t, string(orders.Request.BodySchema), "attachment")
	_, hasAuth := orders.Request.Headers["Authorization"]
	assert.True(t, hasAuth, "auth header synthesized into the headers map")

	detail := byPath["GET /orders/{id}"]
	require.NotNil(t, detail.Request)
	_, hasID := detail.Request.PathParams["id"]
	assert.True(t, hasID, "path-item parameters are merged in")
	_, hasExpand := detail.Request.QueryParams["expand"]
	assert.True(t, hasExpand)
}

func TestIngestVariables(t *testing.T) {
	s, projectID, _, err := testIngest(t, shopSpec)
	require.NoError(t, err)

	apis, err := s.ListApis(context.Background(), projectID)
	require.NoError(t, err)
	byPath := map[string]datatypes.Api{}
	for _, api := range apis {
		byPath[api.Method+" "+api.Path] = api
	}

	type key struct{ name, location string }
	varsOf := func(api datatypes.Api) map[key]datatypes.Variable {
		out := map[key]datatypes.Variable{}
		for _, v := range api.Variables {
			out[key{v.Name, v.Location}] = v
		}
		return out
	}

	login := varsOf(byPath["POST /login"])
	email := login[key{"email", datatypes.LocationBody}]
	assert.True(t, email.Required)
	assert.Equal(t, "string", email.DataType)
	password := login[key{"password", datatypes.LocationBody}]
	assert.False(t, password.Required)
	assert.Equal(t, "string(password)", password.DataType)
	_, hasAuth := login[key{"Authorization", datatypes.LocationHeader}]
	assert.False(t, hasAuth, "login opted out of the document security")

	orders := varsOf(byPath["POST /orders"])
	auth := orders[key{"Authorization", datatypes.LocationHeader}]
	assert.Equal(t, datatypes.VarTypeSynthetic, auth.VarType)
	assert.True(t, auth.Required)
	_, hasReadOnly := orders[key{"createdAt", datatypes.LocationBody}]
	assert.False(t, hasReadOnly, "readOnly properties are not inputs")

	detail := varsOf(byPath["GET /orders/{id}"])
	id := detail[key{"id", datatypes.LocationPath}]
	assert.True(t, id.Required, "path params are always required")
	expand := detail[key{"expand", datatypes.LocationQuery}]
	assert.Equal(t, "boolean", expand.DataType)
}

func TestIngestIdempotent(t *testing.T) {
	s, projectID, _, err := testIngest(t, shopSpec)
	require.NoError(t, err)

	count := func() (apis, vars, responses int) {
		list, err := s.ListApis(context.Background(), projectID)
		require.NoError(t, err)
		for _, api := range list {
			vars += len(api.Variables)
			responses += len(api.Responses)
		}
		return len(list), vars, responses
	}
	apis1, vars1, resp1 := count()

	_, err = New(s).Ingest(context.Background(), projectID, writeSpec(t, shopSpec))
	require.NoError(t, err)

	apis2, vars2, resp2 := count()
	assert.Equal(t, apis1, apis2)
	assert.Equal(t, vars1, vars2)
	assert.Equal(t, resp1, resp2)
}

func TestIngestRejectsNonV3(t *testing.T) {
	swagger2 := `{"swagger": "2.0", "info": {"title": "old", "version": "1"}, "paths": {}}`
	_, _, _, err := testIngest(t, swagger2)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestIngestRejectsGarbage(t *testing.T) {
	_, _, _, err := testIngest(t, `{"openapi": "3.0.0"`)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestIngestMultipartOnlyBody(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "info": {"title": "up", "version": "1"},
	  "paths": {
	    "/upload": {
	      "post": {
	        "requestBody": {
	          "content": {
	            "multipart/form-data": {
	              "schema": {"type": "object", "properties": {"file": {"type": "string"}}}
	            }
	          }
	        },
	        "responses": {"204": {"description": "ok"}}
	      }
	    }
	  }
	}`
	s, projectID, _, err := testIngest(t, spec)
	require.NoError(t, err)

	apis, err := s.ListApis(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, apis, 1)
	require.NotNil(t, apis[0].Request)
	assert.Contains(t, string(apis[0].Request.BodySchema), "file")
}

func TestIngestNoBodyStillStoresParameters(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "info": {"title": "q", "version": "1"},
	  "paths": {
	    "/search": {
	      "get": {
	        "parameters": [{"name": "q", "in": "query", "schema": {"type": "string"}}],
	        "responses": {"200": {"description": "ok"}}
	      }
	    }
	  }
	}`
	s, projectID, _, err := testIngest(t, spec)
	require.NoError(t, err)

	apis, err := s.ListApis(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, apis, 1)
	require.NotNil(t, apis[0].Request)
	assert.Empty(t, apis[0].Request.BodySchema)
	_, hasQ := apis[0].Request.QueryParams["q"]
	assert.True(t, hasQ)
}
