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
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

const reasonPathIDOverride = "[System Logic] Path Parameter ID override"

// lifecyclePattern marks producer paths that act on an existing resource
// rather than creating one; links from them are weak evidence.
var lifecyclePattern = regexp.MustCompile(`history|status|balance|cancel|pay`)

// PostProcess applies the filtering and clamping rules to every
// candidate, LLM-proposed or deterministic. Deterministic auth-chain
// candidates are the one exception: their confidence is fixed at 1.0 and
// the scope filter does not apply (Authorization headers are synthetic
// and never part of the explicit input set).
func PostProcess(cands []Candidate, apis []datatypes.Api, producers ProducerMap) []Candidate {
	byID := map[string]*datatypes.Api{}
	for i := range apis {
		byID[apis[i].ID] = &apis[i]
	}

	var out []Candidate
	seen := map[string]bool{}
	for _, c := range cands {
		// Self-reference refusal applies to everything.
		if c.SourceApiID == c.TargetApiID {
			continue
		}
		target, ok := byID[c.TargetApiID]
		if !ok {
			continue
		}
		source, ok := byID[c.SourceApiID]
		if !ok {
			continue
		}

		if !c.deterministicAuth {
			inputs := explicitInputs(target)
			if !inputs[c.Variable] {
				// Variables outside the explicit input set are treated
				// as hallucinations.
				continue
			}
			applyPathIDOverride(&c, target)
			clampConfidence(&c, source, target)
			tagOrigin(&c, producers)
		}

		key := c.SourceApiID + "\x00" + c.TargetApiID + "\x00" + c.Variable
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// explicitInputs is the scope-filter allowlist for a target endpoint:
// path parameters parsed from {..} segments, extracted body keys, and
// query variables.
func explicitInputs(api *datatypes.Api) map[string]bool {
	inputs := map[string]bool{}
	for _, seg := range pathSegments(api.Path) {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			inputs[strings.Trim(seg, "{}")] = true
		}
	}
	for _, v := range api.Variables {
		if v.Location == datatypes.LocationBody || v.Location == datatypes.LocationQuery {
			inputs[v.Name] = true
		}
	}
	return inputs
}

// applyPathIDOverride forces the structural shape of path-parameter id
// links. The model is systematically over-confident about these.
func applyPathIDOverride(c *Candidate, target *datatypes.Api) {
	if !isPathParam(target, c.Variable) {
		return
	}
	if !strings.HasSuffix(c.Variable, "Id") && c.Variable != "id" {
		return
	}
	c.StructuralType = "variable"
	c.DependencyType = "dependent"
	c.Reason = reasonPathIDOverride
	if c.Confidence > 0.6 {
		c.Confidence = 0.6
	}
}

// clampConfidence applies the hard caps in order; the lowest applicable
// cap wins, then the value rounds to two decimals.
func clampConfidence(c *Candidate, source, target *datatypes.Api) {
	clamp := func(limit float64) {
		if c.Confidence > limit {
			c.Confidence = limit
		}
	}
	if usesID(c) || targetHasID(c) {
		clamp(0.6)
	}
	if lifecyclePattern.MatchString(source.Path) {
		clamp(0.5)
	}
	if !isPostOnCollection(source) {
		clamp(0.6)
	}
	if source.Method == "GET" && returnsArray(source) {
		clamp(0.7)
	}
	clamp(0.8)
	c.Confidence = math.Round(c.Confidence*100) / 100
}

// tagOrigin marks candidates whose (variable, source) matches the
// deterministic producer map.
func tagOrigin(c *Candidate, producers ProducerMap) {
	if c.Origin == datatypes.OriginDeterministic {
		return
	}
	c.Origin = datatypes.OriginInferred
	key := c.Variable
	if producer, ok := producers[key]; ok && producer.ID == c.SourceApiID {
		c.Origin = datatypes.OriginDeterministic
	}
}

func usesID(c *Candidate) bool {
	f := c.SourceField
	return f == "id" || strings.HasSuffix(f, ".id") || strings.HasSuffix(f, "Id")
}

func targetHasID(c *Candidate) bool {
	v := c.Variable
	return v == "id" || strings.HasSuffix(v, "Id") || strings.HasSuffix(v, "_id")
}

func isPathParam(api *datatypes.Api, name string) bool {
	for _, seg := range pathSegments(api.Path) {
		if seg == "{"+name+"}" {
			return true
		}
	}
	return false
}

// isPostOnCollection reports whether the source is a POST onto a root
// collection — the canonical resource creator.
func isPostOnCollection(api *datatypes.Api) bool {
	if api.Method != "POST" {
		return false
	}
	segs := pathSegments(api.Path)
	return len(segs) == 1 && !strings.Contains(segs[0], "{")
}

// returnsArray reports whether any 2xx response schema of the source has
// top-level type array.
func returnsArray(api *datatypes.Api) bool {
	for _, resp := range api.Responses {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(resp.Schema) == 0 {
			continue
		}
		var schema struct {
			Type interface{} `json:"type"`
		}
		if err := json.Unmarshal(resp.Schema, &schema); err != nil {
			continue
		}
		switch t := schema.Type.(type) {
		case string:
			if t == "array" {
				return true
			}
		case []interface{}:
			for _, v := range t {
				if v == "array" {
					return true
				}
			}
		}
	}
	return false
}
