// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

// contextEntry is what one completed endpoint publishes into the run
// context: its parsed response body and HTTP status.
type contextEntry struct {
	Response interface{}
	Status   int
}

// runContext is the per-run map from apiRef to contextEntry. Each
// endpoint writes its own key exactly once; layer barriers order the
// writes before any dependent read, the mutex only covers concurrent
// sibling insertion.
type runContext struct {
	mu      sync.RWMutex
	entries map[string]contextEntry
}

func newRunContext() *runContext {
	return &runContext{entries: map[string]contextEntry{}}
}

func (rc *runContext) get(apiID string) (contextEntry, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	entry, ok := rc.entries[apiID]
	return entry, ok
}

func (rc *runContext) put(apiID string, entry contextEntry) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries[apiID] = entry
}

// dependencyError is the per-endpoint resolution failure. It lands on
// the execution row; it never aborts the run.
type dependencyError struct {
	sourceID string
}

func (e *dependencyError) Error() string {
	return fmt.Sprintf("Dependency failed: Source %s not ready or failed.", e.sourceID)
}

// resolveInputs looks up every confirmed dependency of the endpoint in
// the run context and evaluates its mapping. A missing source, or one
// whose HTTP status was >= 300, fails the resolution; downstream
// endpoints are reached naturally because later layers' resolutions also
// miss.
func resolveInputs(deps []datatypes.ApiDependency, rc *runContext) (map[string]interface{}, error) {
	resolved := map[string]interface{}{}
	for _, dep := range deps {
		entry, ok := rc.get(dep.SourceApiID)
		if !ok || entry.Status >= 300 {
			return nil, &dependencyError{sourceID: dep.SourceApiID}
		}
		for targetVar, sourcePath := range datatypes.MappingStrings(dep.Mapping) {
			resolved[targetVar] = SelectPath(entry.Response, sourcePath)
		}
	}
	return resolved, nil
}

// SelectPath evaluates a dot-path selector against a parsed JSON value:
// split on '.', step through object keys, nil on any missing step.
func SelectPath(value interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	current := value
	for _, step := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = obj[step]
		if !ok {
			return nil
		}
	}
	return current
}

// setBodyPath writes a resolved value into a request body under its
// dot-joined variable name, creating intermediate objects as needed. An
// intermediate that already holds a non-object value wins; the write is
// dropped rather than clobbering a sibling leaf.
func setBodyPath(body map[string]interface{}, name string, value interface{}) {
	parts := strings.Split(name, ".")
	current := body
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			if _, exists := current[part]; exists {
				return
			}
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
