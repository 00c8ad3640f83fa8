// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the single persistence authority of the orchestrator.
// Every catalog mutation flows through it; unique keys are enforced by
// the schema indexes so concurrent writers fail loudly instead of
// duplicating rows. Components receive a *Store handle explicitly; there
// is no package-level database state.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
)

// Store wraps a gorm handle. A Store produced by Transaction shares the
// transaction; the zero value is not usable.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the SQLite database at path and migrates the
// catalog schema. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return New(db)
}

// New wraps an already-opened gorm handle and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	err := db.AutoMigrate(
		&datatypes.Project{},
		&datatypes.ApiSpec{},
		&datatypes.Api{},
		&datatypes.ApiRequest{},
		&datatypes.ApiResponse{},
		&datatypes.Variable{},
		&datatypes.DependencyCandidate{},
		&datatypes.ApiDependency{},
		&datatypes.TestRun{},
		&datatypes.TestExecution{},
		&datatypes.ExecutionArtifact{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Transaction runs fn inside one database transaction. Any error rolls
// the whole transaction back; no partial catalog is ever visible.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(g *gorm.DB) error {
		return fn(&Store{db: g})
	})
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// Projects
// =============================================================================

func (s *Store) CreateProject(ctx context.Context, p *datatypes.Project) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetProject(ctx context.Context, id string) (*datatypes.Project, error) {
	var p datatypes.Project
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]datatypes.Project, error) {
	var out []datatypes.Project
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

// DeleteProject removes the project and everything whose transitive
// foreign key reaches it. Test runs are detached (project_id nulled)
// instead of deleted so run history survives.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var apiIDs []string
		if err := tx.db.Model(&datatypes.Api{}).
			Where("project_id = ?", id).Pluck("id", &apiIDs).Error; err != nil {
			return err
		}
		if len(apiIDs) > 0 {
			for _, model := range []interface{}{
				&datatypes.Variable{}, &datatypes.ApiResponse{}, &datatypes.ApiRequest{},
			} {
				if err := tx.db.Where("api_id IN ?", apiIDs).Delete(model).Error; err != nil {
					return err
				}
			}
		}
		steps := []error{
			tx.db.Where("project_id = ?", id).Delete(&datatypes.Api{}).Error,
			tx.db.Where("project_id = ?", id).Delete(&datatypes.ApiSpec{}).Error,
			tx.db.Where("project_id = ?", id).Delete(&datatypes.DependencyCandidate{}).Error,
			tx.db.Where("project_id = ?", id).Delete(&datatypes.ApiDependency{}).Error,
			tx.db.Model(&datatypes.TestRun{}).Where("project_id = ?", id).
				Update("project_id", nil).Error,
			tx.db.Delete(&datatypes.Project{}, "id = ?", id).Error,
		}
		for _, err := range steps {
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Specs
// =============================================================================

func (s *Store) FindSpecByHash(ctx context.Context, projectID, hash string) (*datatypes.ApiSpec, error) {
	var spec datatypes.ApiSpec
	err := s.db.WithContext(ctx).
		First(&spec, "project_id = ? AND spec_hash = ?", projectID, hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Store) CreateSpec(ctx context.Context, spec *datatypes.ApiSpec) error {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(spec).Error
}

// =============================================================================
// Apis and children
// =============================================================================

func (s *Store) FindApiByIdentity(ctx context.Context, projectID, method, path string) (*datatypes.Api, error) {
	var api datatypes.Api
	err := s.db.WithContext(ctx).
		First(&api, "project_id = ? AND method = ? AND path = ?", projectID, method, path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &api, nil
}

func (s *Store) CreateApi(ctx context.Context, api *datatypes.Api) error {
	if api.ID == "" {
		api.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(api).Error
}

func (s *Store) SaveApi(ctx context.Context, api *datatypes.Api) error {
	return s.db.WithContext(ctx).Model(&datatypes.Api{}).Where("id = ?", api.ID).
		Updates(map[string]interface{}{
			"operation_id": api.OperationID,
			"summary":      api.Summary,
			"auth_scheme":  api.AuthScheme,
		}).Error
}

// EraseApiChildren deletes the request, responses, and variables of an
// Api. The ingestor calls this before rewriting an updated endpoint so
// no stale children survive a re-ingest.
func (s *Store) EraseApiChildren(ctx context.Context, apiID string) error {
	for _, model := range []interface{}{
		&datatypes.ApiRequest{}, &datatypes.ApiResponse{}, &datatypes.Variable{},
	} {
		if err := s.db.WithContext(ctx).Where("api_id = ?", apiID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateApiRequest(ctx context.Context, req *datatypes.ApiRequest) error {
	if req.ID == "" {
		req.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(req).Error
}

func (s *Store) CreateApiResponse(ctx context.Context, resp *datatypes.ApiResponse) error {
	if resp.ID == "" {
		resp.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(resp).Error
}

func (s *Store) ListApis(ctx context.Context, projectID string) ([]datatypes.Api, error) {
	var out []datatypes.Api
	err := s.db.WithContext(ctx).
		Preload("Request").Preload("Responses").Preload("Variables").
		Where("project_id = ?", projectID).Order("path, method").Find(&out).Error
	return out, err
}

func (s *Store) GetApi(ctx context.Context, id string) (*datatypes.Api, error) {
	var api datatypes.Api
	err := s.db.WithContext(ctx).
		Preload("Request").Preload("Responses").Preload("Variables").
		First(&api, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &api, nil
}

// =============================================================================
// Variables
// =============================================================================

// UpsertVariable inserts or updates on the (api, name, location) key. An
// existing row keeps its id; var type, data type, and required are
// refreshed in place.
func (s *Store) UpsertVariable(ctx context.Context, v *datatypes.Variable) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "api_id"}, {Name: "name"}, {Name: "location"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"var_type", "data_type", "required", "ai_confidence",
		}),
	}).Create(v).Error
}

func (s *Store) ListVariables(ctx context.Context, apiID string) ([]datatypes.Variable, error) {
	var out []datatypes.Variable
	err := s.db.WithContext(ctx).Where("api_id = ?", apiID).Order("location, name").Find(&out).Error
	return out, err
}

// RetagVariablesDependent marks the named variables of an Api as
// dependent. This is the sole path by which a variable leaves the
// user_input / candidate state.
func (s *Store) RetagVariablesDependent(ctx context.Context, apiID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&datatypes.Variable{}).
		Where("api_id = ? AND name IN ?", apiID, names).
		Update("var_type", datatypes.VarTypeDependent).Error
}

// =============================================================================
// Candidates
// =============================================================================

// ReplaceCandidates deletes every prior candidate of the project and
// inserts the new set in one transaction.
func (s *Store) ReplaceCandidates(ctx context.Context, projectID string, cands []datatypes.DependencyCandidate) error {
	return s.Transaction(ctx, func(tx *Store) error {
		if err := tx.db.Where("project_id = ?", projectID).
			Delete(&datatypes.DependencyCandidate{}).Error; err != nil {
			return err
		}
		for i := range cands {
			if cands[i].ID == "" {
				cands[i].ID = NewID()
			}
			cands[i].ProjectID = projectID
		}
		if len(cands) == 0 {
			return nil
		}
		return tx.db.Create(&cands).Error
	})
}

func (s *Store) ListCandidates(ctx context.Context, projectID string) ([]datatypes.DependencyCandidate, error) {
	var out []datatypes.DependencyCandidate
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("confidence DESC").Find(&out).Error
	return out, err
}

func (s *Store) ListCandidatesForTarget(ctx context.Context, targetApiID string) ([]datatypes.DependencyCandidate, error) {
	var out []datatypes.DependencyCandidate
	err := s.db.WithContext(ctx).Where("target_api_id = ?", targetApiID).
		Order("confidence DESC").Find(&out).Error
	return out, err
}

// =============================================================================
// Dependencies
// =============================================================================

// UpsertDependency inserts or replaces on the (source, target) key; an
// existing edge has its mapping and isRequired swapped out.
func (s *Store) UpsertDependency(ctx context.Context, dep *datatypes.ApiDependency) error {
	if dep.ID == "" {
		dep.ID = NewID()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_api_id"}, {Name: "target_api_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mapping", "is_required"}),
	}).Create(dep).Error
}

func (s *Store) DeleteDependency(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&datatypes.ApiDependency{}, "id = ?", id).Error
}

func (s *Store) ListDependencies(ctx context.Context, projectID string) ([]datatypes.ApiDependency, error) {
	var out []datatypes.ApiDependency
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&out).Error
	return out, err
}

// ListTargetDependencies returns the confirmed edges whose consumer is
// the given Api.
func (s *Store) ListTargetDependencies(ctx context.Context, targetApiID string) ([]datatypes.ApiDependency, error) {
	var out []datatypes.ApiDependency
	err := s.db.WithContext(ctx).Where("target_api_id = ?", targetApiID).Find(&out).Error
	return out, err
}

// =============================================================================
// Runs, executions, artifacts
// =============================================================================

func (s *Store) CreateRun(ctx context.Context, run *datatypes.TestRun) error {
	if run.ID == "" {
		run.ID = NewID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *Store) FinishRun(ctx context.Context, runID, status string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&datatypes.TestRun{}).Where("id = ?", runID).
		Updates(map[string]interface{}{"status": status, "completed_at": now}).Error
}

func (s *Store) GetRun(ctx context.Context, id string) (*datatypes.TestRun, error) {
	var run datatypes.TestRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) CreateExecution(ctx context.Context, exec *datatypes.TestExecution) error {
	if exec.ID == "" {
		exec.ID = NewID()
	}
	return s.db.WithContext(ctx).Create(exec).Error
}

func (s *Store) UpdateExecution(ctx context.Context, execID, status, errorMessage string) error {
	return s.db.WithContext(ctx).Model(&datatypes.TestExecution{}).Where("id = ?", execID).
		Updates(map[string]interface{}{"status": status, "error_message": errorMessage}).Error
}

func (s *Store) ListExecutions(ctx context.Context, runID string) ([]datatypes.TestExecution, error) {
	var out []datatypes.TestExecution
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_at").Find(&out).Error
	return out, err
}

func (s *Store) CreateArtifact(ctx context.Context, art *datatypes.ExecutionArtifact) error {
	if art.ID == "" {
		art.ID = NewID()
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(art).Error
}

func (s *Store) ListArtifacts(ctx context.Context, executionID string) ([]datatypes.ExecutionArtifact, error) {
	var out []datatypes.ExecutionArtifact
	err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).
		Order("created_at").Find(&out).Error
	return out, err
}
