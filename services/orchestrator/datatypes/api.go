// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Request and response types for the REST surface. Validation happens in
// the handlers via the shared validator instance before any store call.
package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// apiValidate is the validator instance for REST datatypes.
var apiValidate = validator.New()

// CreateProjectRequest creates a new project scope.
type CreateProjectRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=256"`
	OwnerRef string `json:"ownerRef" validate:"max=256"`
}

// Validate checks field constraints.
func (r *CreateProjectRequest) Validate() error {
	return apiValidate.Struct(r)
}

// IngestRequest points the ingestor at an OpenAPI document. Source is a
// URL or a local file path; the ingestor decides which by scheme.
type IngestRequest struct {
	ProjectID string `json:"projectId" validate:"required"`
	Source    string `json:"source" validate:"required"`
}

// Validate checks field constraints.
func (r *IngestRequest) Validate() error {
	return apiValidate.Struct(r)
}

// PromoteDependencyRequest confirms a candidate (or a manually
// constructed mapping) into an ApiDependency.
type PromoteDependencyRequest struct {
	ProjectID   string            `json:"projectId" validate:"required"`
	SourceApiID string            `json:"sourceApiId" validate:"required"`
	TargetApiID string            `json:"targetApiId" validate:"required"`
	Mapping     map[string]string `json:"mapping" validate:"required,min=1"`
	IsRequired  bool              `json:"isRequired"`
}

// Validate checks field constraints.
func (r *PromoteDependencyRequest) Validate() error {
	return apiValidate.Struct(r)
}

// RunRequest starts a test run against an environment base URL.
type RunRequest struct {
	Environment string `json:"environment" validate:"required,url"`
}

// Validate checks field constraints.
func (r *RunRequest) Validate() error {
	return apiValidate.Struct(r)
}

// RunReport is the read-side projection of a run: the run row, its
// executions, and their artifacts, with pass/fail totals.
type RunReport struct {
	Run        TestRun           `json:"run"`
	Executions []ExecutionReport `json:"executions"`
	Total      int               `json:"total"`
	Passed     int               `json:"passed"`
	Failed     int               `json:"failed"`
}

// ExecutionReport joins one execution with its endpoint identity and
// captured artifacts.
type ExecutionReport struct {
	Execution TestExecution       `json:"execution"`
	Method    string              `json:"method,omitempty"`
	Path      string              `json:"path,omitempty"`
	Artifacts []ExecutionArtifact `json:"artifacts,omitempty"`
}
