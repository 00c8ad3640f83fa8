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
	"encoding/json"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

func parseSchema(t *testing.T, raw string) *openapi3.Schema {
	t.Helper()
	schema := &openapi3.Schema{}
	require.NoError(t, json.Unmarshal([]byte(raw), schema))
	return schema
}

func names(rows []VarRow) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestExtractNestedObjectsDotJoin(t *testing.T) {
	schema := parseSchema(t, `{
	  "type": "object",
	  "required": ["customer"],
	  "properties": {
	    "customer": {
	      "type": "object",
	      "required": ["name"],
	      "properties": {
	        "name": {"type": "string"},
	        "address": {
	          "type": "object",
	          "properties": {"city": {"type": "string"}}
	        }
	      }
	    },
	    "items": {
	      "type": "array",
	      "items": {
	        "type": "object",
	        "properties": {"sku": {"type": "string"}}
	      }
	    }
	  }
	}`)

	rows := ExtractVariables(&openapi3.Operation{}, nil, schema, false)

	// Intermediates and leaves both appear, dot-joined.
	assert.ElementsMatch(t, []string{
		"customer", "customer.name", "customer.address", "customer.address.city",
		"items", "items.sku",
	}, names(rows))

	byName := map[string]VarRow{}
	for _, r := range rows {
		byName[r.Name] = r
	}
	assert.True(t, byName["customer"].Required)
	assert.True(t, byName["customer.name"].Required,
		"required comes from the immediate parent schema")
	assert.False(t, byName["customer.address.city"].Required)
	assert.Equal(t, "object", byName["customer.address"].DataType)
	assert.Equal(t, "array", byName["items"].DataType)
	for _, r := range rows {
		assert.Equal(t, datatypes.LocationBody, r.Location)
	}
}

func TestExtractComposite(t *testing.T) {
	schema := parseSchema(t, `{
	  "allOf": [
	    {"type": "object", "properties": {"a": {"type": "string"}}},
	    {"type": "object", "properties": {"b": {"type": "integer"}}}
	  ]
	}`)

	rows := ExtractVariables(&openapi3.Operation{}, nil, schema, false)
	assert.ElementsMatch(t, []string{"a", "b"}, names(rows))
}

func TestExtractUnknownType(t *testing.T) {
	schema := parseSchema(t, `{
	  "type": "object",
	  "properties": {"blob": {}}
	}`)

	rows := ExtractVariables(&openapi3.Operation{}, nil, schema, false)
	require.Len(t, rows, 1)
	assert.Equal(t, "unknown", rows[0].DataType)
}

func TestExtractCyclicSchemaTerminates(t *testing.T) {
	// A self-referential node, as full dereferencing produces.
	node := &openapi3.Schema{
		Type: &openapi3.Types{"object"},
		Properties: openapi3.Schemas{
			"value": openapi3.NewSchemaRef("", &openapi3.Schema{
				Type: &openapi3.Types{"string"},
			}),
		},
	}
	node.Properties["next"] = openapi3.NewSchemaRef("", node)

	rows := ExtractVariables(&openapi3.Operation{}, nil, node, false)

	// The revisit guard emits the intermediate node, then stops the
	// walk instead of descending into itself.
	assert.Contains(t, names(rows), "value")
	assert.Contains(t, names(rows), "next")
	assert.NotContains(t, names(rows), "next.value")
}

func TestSyntheticAuthorizationSkippedWhenDeclared(t *testing.T) {
	op := &openapi3.Operation{
		Parameters: openapi3.Parameters{
			{Value: &openapi3.Parameter{
				Name: "Authorization", In: openapi3.ParameterInHeader, Required: true,
				Schema: openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{"string"}}),
			}},
		},
	}
	rows := ExtractVariables(op, nil, nil, true)

	require.Len(t, rows, 1)
	assert.Equal(t, datatypes.VarTypeUserInput, rows[0].VarType,
		"a declared Authorization parameter suppresses the synthetic one")
}

func TestSyntheticAuthorizationEmitted(t *testing.T) {
	rows := ExtractVariables(&openapi3.Operation{}, nil, nil, true)

	require.Len(t, rows, 1)
	assert.Equal(t, "Authorization", rows[0].Name)
	assert.Equal(t, datatypes.LocationHeader, rows[0].Location)
	assert.Equal(t, datatypes.VarTypeSynthetic, rows[0].VarType)
	assert.Equal(t, "string", rows[0].DataType)
	assert.True(t, rows[0].Required)
}
