// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry promotes dependency candidates into confirmed
// ApiDependency edges and keeps variable classification in step: every
// target variable named in a confirmed mapping becomes dependent.
package registry

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

var tracer = otel.Tracer("lattice.orchestrator.registry")

// ErrSelfDependency rejects an edge whose producer and consumer are the
// same endpoint.
var ErrSelfDependency = errors.New("an endpoint cannot depend on itself")

// Registry is the dependency confirmation component.
type Registry struct {
	store *store.Store
}

// New builds a Registry over the given store handle.
func New(s *store.Store) *Registry {
	return &Registry{store: s}
}

// Promote confirms a mapping as an ApiDependency. Upserts on the
// (source, target) key — an existing edge has its mapping and isRequired
// replaced — and re-tags every mapped target variable as dependent.
func (r *Registry) Promote(ctx context.Context, req *datatypes.PromoteDependencyRequest) (*datatypes.ApiDependency, error) {
	ctx, span := tracer.Start(ctx, "Registry.Promote")
	defer span.End()
	span.SetAttributes(
		attribute.String("dependency.source", req.SourceApiID),
		attribute.String("dependency.target", req.TargetApiID),
	)

	if req.SourceApiID == req.TargetApiID {
		return nil, ErrSelfDependency
	}

	dep := &datatypes.ApiDependency{
		ProjectID:   req.ProjectID,
		SourceApiID: req.SourceApiID,
		TargetApiID: req.TargetApiID,
		Mapping:     datatypes.JSONMapFromStrings(req.Mapping),
		IsRequired:  req.IsRequired,
	}

	names := make([]string, 0, len(req.Mapping))
	for name := range req.Mapping {
		names = append(names, name)
	}

	err := r.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.UpsertDependency(ctx, dep); err != nil {
			return err
		}
		return tx.RetagVariablesDependent(ctx, req.TargetApiID, names)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	slog.Info("Dependency confirmed", "source_api_id", req.SourceApiID,
		"target_api_id", req.TargetApiID, "variables", names)
	return dep, nil
}

// Delete removes a confirmed dependency by id.
func (r *Registry) Delete(ctx context.Context, id string) error {
	return r.store.DeleteDependency(ctx, id)
}
