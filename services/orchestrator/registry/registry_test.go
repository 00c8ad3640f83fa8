// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

func seed(t *testing.T) (*store.Store, string, string, string) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()

	project := &datatypes.Project{Name: "shop"}
	require.NoError(t, s.CreateProject(ctx, project))

	source := &datatypes.Api{ProjectID: project.ID, Method: "POST", Path: "/login"}
	require.NoError(t, s.CreateApi(ctx, source))
	target := &datatypes.Api{ProjectID: project.ID, Method: "GET", Path: "/me"}
	require.NoError(t, s.CreateApi(ctx, target))

	require.NoError(t, s.UpsertVariable(ctx, &datatypes.Variable{
		ApiID: target.ID, Name: "Authorization", Location: datatypes.LocationHeader,
		VarType: datatypes.VarTypeSynthetic, DataType: "string", Required: true,
	}))
	return s, project.ID, source.ID, target.ID
}

func TestPromoteRejectsSelfDependency(t *testing.T) {
	s, projectID, sourceID, _ := seed(t)
	_, err := New(s).Promote(context.Background(), &datatypes.PromoteDependencyRequest{
		ProjectID: projectID, SourceApiID: sourceID, TargetApiID: sourceID,
		Mapping: map[string]string{"x": "y"},
	})
	assert.ErrorIs(t, err, ErrSelfDependency)
}

func TestPromoteRetagsMappedVariables(t *testing.T) {
	s, projectID, sourceID, targetID := seed(t)
	ctx := context.Background()

	dep, err := New(s).Promote(ctx, &datatypes.PromoteDependencyRequest{
		ProjectID: projectID, SourceApiID: sourceID, TargetApiID: targetID,
		Mapping:    map[string]string{"Authorization": "accessToken"},
		IsRequired: true,
	})
	require.NoError(t, err)
	require.NotNil(t, dep)

	vars, err := s.ListVariables(ctx, targetID)
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, datatypes.VarTypeDependent, vars[0].VarType)
}

func TestPromoteUpsertsOnEdge(t *testing.T) {
	s, projectID, sourceID, targetID := seed(t)
	ctx := context.Background()
	reg := New(s)

	_, err := reg.Promote(ctx, &datatypes.PromoteDependencyRequest{
		ProjectID: projectID, SourceApiID: sourceID, TargetApiID: targetID,
		Mapping: map[string]string{"Authorization": "accessToken"}, IsRequired: true,
	})
	require.NoError(t, err)

	_, err = reg.Promote(ctx, &datatypes.PromoteDependencyRequest{
		ProjectID: projectID, SourceApiID: sourceID, TargetApiID: targetID,
		Mapping: map[string]string{"Authorization": "refresh_token"}, IsRequired: false,
	})
	require.NoError(t, err)

	deps, err := s.ListDependencies(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "refresh_token",
		datatypes.MappingStrings(deps[0].Mapping)["Authorization"])
	assert.False(t, deps[0].IsRequired)
}

func TestDeleteDependency(t *testing.T) {
	s, projectID, sourceID, targetID := seed(t)
	ctx := context.Background()
	reg := New(s)

	dep, err := reg.Promote(ctx, &datatypes.PromoteDependencyRequest{
		ProjectID: projectID, SourceApiID: sourceID, TargetApiID: targetID,
		Mapping: map[string]string{"Authorization": "accessToken"},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, dep.ID))
	deps, err := s.ListDependencies(ctx, projectID)
	require.NoError(t, err)
	assert.Empty(t, deps)
}
