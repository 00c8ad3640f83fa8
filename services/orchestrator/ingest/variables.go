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
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

// VarRow is one extracted variable prior to persistence.
type VarRow struct {
	Name     string
	Location string
	VarType  string
	DataType string
	Required bool
}

// schemaKind is the tagged-sum view of a dereferenced schema. The
// extractor's descent is total over these five cases.
type schemaKind int

const (
	kindUnknown schemaKind = iota
	kindObject
	kindArray
	kindPrimitive
	kindComposite
)

func classify(s *openapi3.Schema) schemaKind {
	switch {
	case s == nil:
		return kindUnknown
	case len(s.AllOf) > 0 || len(s.OneOf) > 0 || len(s.AnyOf) > 0:
		return kindComposite
	case len(s.Properties) > 0 || (s.Type != nil && s.Type.Is(openapi3.TypeObject)):
		return kindObject
	case s.Items != nil || (s.Type != nil && s.Type.Is(openapi3.TypeArray)):
		return kindArray
	case s.Type != nil && len(*s.Type) > 0:
		return kindPrimitive
	default:
		return kindUnknown
	}
}

// ExtractVariables decomposes one operation into its input variable rows:
// body leaves and intermediates from the picked body schema, one row per
// parameter, and the synthetic Authorization header when the operation's
// effective security demands it.
func ExtractVariables(op *openapi3.Operation, item *openapi3.PathItem,
	bodySchema *openapi3.Schema, requiresAuth bool) []VarRow {

	var rows []VarRow
	seen := map[string]bool{}
	add := func(r VarRow) {
		key := r.Name + "\x00" + r.Location
		if seen[key] {
			return
		}
		seen[key] = true
		rows = append(rows, r)
	}

	if bodySchema != nil {
		visited := map[*openapi3.Schema]bool{}
		descendBody(bodySchema, "", visited, add)
	}

	for _, p := range mergedParameters(item, op) {
		location := paramLocation(p.In)
		if location == "" {
			continue
		}
		required := p.Required
		if location == datatypes.LocationPath {
			required = true
		}
		var schema *openapi3.Schema
		if p.Schema != nil {
			schema = p.Schema.Value
		}
		add(VarRow{
			Name:     p.Name,
			Location: location,
			VarType:  datatypes.VarTypeUserInput,
			DataType: typeString(schema),
			Required: required,
		})
	}

	if requiresAuth && !seen["Authorization\x00"+datatypes.LocationHeader] {
		add(VarRow{
			Name:     "Authorization",
			Location: datatypes.LocationHeader,
			VarType:  datatypes.VarTypeSynthetic,
			DataType: "string",
			Required: true,
		})
	}
	return rows
}

// descendBody walks the schema sum, emitting a row for every reachable
// named node — intermediate objects as well as leaves. Names dot-join
// along the property chain; array items and composite branches descend
// without extending the name. readOnly properties never become inputs.
// Dereferencing produces shared subgraphs and possibly cycles, so a
// visited set keyed by schema identity bounds the recursion.
func descendBody(s *openapi3.Schema, prefix string,
	visited map[*openapi3.Schema]bool, add func(VarRow)) {

	if s == nil || visited[s] {
		return
	}
	visited[s] = true
	defer delete(visited, s)

	switch classify(s) {
	case kindObject:
		required := map[string]bool{}
		for _, name := range s.Required {
			required[name] = true
		}
		for _, name := range sortedPropNames(s.Properties) {
			ref := s.Properties[name]
			if ref == nil {
				continue
			}
			prop := ref.Value
			if prop != nil && prop.ReadOnly {
				continue
			}
			qualified := name
			if prefix != "" {
				qualified = prefix + "." + name
			}
			add(VarRow{
				Name:     qualified,
				Location: datatypes.LocationBody,
				VarType:  datatypes.VarTypeUserInput,
				DataType: typeString(prop),
				Required: required[name],
			})
			descendBody(prop, qualified, visited, add)
		}
	case kindArray:
		if s.Items != nil {
			descendBody(s.Items.Value, prefix, visited, add)
		}
	case kindComposite:
		for _, group := range [][]*openapi3.SchemaRef{s.AllOf, s.OneOf, s.AnyOf} {
			for _, ref := range group {
				if ref != nil {
					descendBody(ref.Value, prefix, visited, add)
				}
			}
		}
	case kindPrimitive, kindUnknown:
		// Leaves were emitted by the parent; a bare primitive root has
		// no name to emit under.
	}
}

// typeString renders a schema's data type as `type`, `type(format)`, or
// `unknown`.
func typeString(s *openapi3.Schema) string {
	if s == nil || s.Type == nil || len(*s.Type) == 0 {
		return "unknown"
	}
	t := (*s.Type)[0]
	if s.Format != "" {
		return fmt.Sprintf("%s(%s)", t, s.Format)
	}
	return t
}

// mergedParameters joins path-item and operation parameters; operation
// parameters shadow path-item ones of the same (name, in).
func mergedParameters(item *openapi3.PathItem, op *openapi3.Operation) []*openapi3.Parameter {
	merged := map[string]*openapi3.Parameter{}
	order := []string{}
	put := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.Name + "\x00" + ref.Value.In
			if _, ok := merged[key]; !ok {
				order = append(order, key)
			}
			merged[key] = ref.Value
		}
	}
	if item != nil {
		put(item.Parameters)
	}
	put(op.Parameters)

	out := make([]*openapi3.Parameter, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

func paramLocation(in string) string {
	switch in {
	case openapi3.ParameterInPath:
		return datatypes.LocationPath
	case openapi3.ParameterInQuery:
		return datatypes.LocationQuery
	case openapi3.ParameterInHeader:
		return datatypes.LocationHeader
	default:
		return ""
	}
}

func sortedPropNames(props openapi3.Schemas) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
