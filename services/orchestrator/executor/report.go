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
	"context"
	"fmt"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

// Reporter is the read-side projection over a run's executions and
// artifacts.
type Reporter struct {
	store *store.Store
}

// NewReporter builds a Reporter over the given store handle.
func NewReporter(s *store.Store) *Reporter {
	return &Reporter{store: s}
}

// Report aggregates one run: its executions joined with endpoint
// identity and artifacts, plus pass/fail totals.
func (r *Reporter) Report(ctx context.Context, runID string) (*datatypes.RunReport, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	execs, err := r.store.ListExecutions(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &datatypes.RunReport{Run: *run, Total: len(execs)}
	for _, exec := range execs {
		entry := datatypes.ExecutionReport{Execution: exec}
		if exec.ApiID != nil {
			api, err := r.store.GetApi(ctx, *exec.ApiID)
			if err != nil {
				return nil, err
			}
			if api != nil {
				entry.Method = api.Method
				entry.Path = api.Path
			}
		}
		arts, err := r.store.ListArtifacts(ctx, exec.ID)
		if err != nil {
			return nil, err
		}
		entry.Artifacts = arts

		switch exec.Status {
		case datatypes.ExecStatusPassed:
			report.Passed++
		case datatypes.ExecStatusFailed:
			report.Failed++
		}
		report.Executions = append(report.Executions, entry)
	}
	return report, nil
}
