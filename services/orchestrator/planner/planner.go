// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns a project's confirmed dependency edges into an
// execution order. Kahn's algorithm yields both a linear order and the
// layered batches the executor parallelizes within.
package planner

import (
	"errors"
	"sort"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

// ErrCycleDetected means the confirmed dependency graph has a cycle and
// no valid execution order exists.
var ErrCycleDetected = errors.New("dependency graph contains a cycle")

// Plan is the planner's output. SortedOrder is a full topological order
// of every Api id; Levels groups ids into batches whose members have no
// mutual dependency and may run concurrently.
type Plan struct {
	SortedOrder []string   `json:"sortedOrder"`
	Levels      [][]string `json:"executionLevels"`
}

// Build runs Kahn's algorithm over the project's endpoints and edges.
// Every Api is a node, including isolated ones. Edges run source→target.
func Build(apis []datatypes.Api, deps []datatypes.ApiDependency) (*Plan, error) {
	nodes := make([]string, 0, len(apis))
	known := map[string]bool{}
	for _, api := range apis {
		nodes = append(nodes, api.ID)
		known[api.ID] = true
	}
	sort.Strings(nodes)

	inDegree := map[string]int{}
	adjacency := map[string][]string{}
	for _, id := range nodes {
		inDegree[id] = 0
	}
	for _, dep := range deps {
		if !known[dep.SourceApiID] || !known[dep.TargetApiID] {
			continue
		}
		adjacency[dep.SourceApiID] = append(adjacency[dep.SourceApiID], dep.TargetApiID)
		inDegree[dep.TargetApiID]++
	}

	var layer []string
	for _, id := range nodes {
		if inDegree[id] == 0 {
			layer = append(layer, id)
		}
	}

	plan := &Plan{}
	for len(layer) > 0 {
		sort.Strings(layer)
		plan.Levels = append(plan.Levels, layer)
		plan.SortedOrder = append(plan.SortedOrder, layer...)

		var next []string
		for _, id := range layer {
			for _, target := range adjacency[id] {
				inDegree[target]--
				if inDegree[target] == 0 {
					next = append(next, target)
				}
			}
		}
		layer = next
	}

	if len(plan.SortedOrder) != len(nodes) {
		return nil, ErrCycleDetected
	}
	return plan, nil
}
