// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the persisted entities and wire types of the
// orchestrator service. The catalog entities map one-to-one onto the
// store's tables; JSON-shaped columns (schemas, parameter maps, mappings,
// artifacts) use gorm.io/datatypes so they stay queryable as text in
// SQLite while round-tripping as structured values in Go.
package datatypes

import (
	"time"

	"gorm.io/datatypes"
)

// Variable locations. A variable is always bucketed into exactly one.
const (
	LocationPath   = "path"
	LocationQuery  = "query"
	LocationHeader = "header"
	LocationBody   = "body"
)

// Variable types. user_input is the initial state for anything a caller
// must supply; the registry re-tags variables to dependent when a
// dependency mapping claims them.
const (
	VarTypeUserInput          = "user_input"
	VarTypeDependent          = "dependent"
	VarTypeDependentCandidate = "dependent_candidate"
	VarTypeConstant           = "constant"
	VarTypeSynthetic          = "synthetic"
)

// Candidate origins.
const (
	OriginDeterministic = "deterministic"
	OriginInferred      = "inferred"
)

// Test run / execution statuses.
const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusError     = "ERROR"

	ExecStatusRunning = "RUNNING"
	ExecStatusPassed  = "PASSED"
	ExecStatusFailed  = "FAILED"
)

// Project is the root of a catalog. Deleting a project cascades through
// the catalog and the dependency graph; test runs are detached instead so
// run history survives.
type Project struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	Name      string    `gorm:"column:name;uniqueIndex;not null" json:"name"`
	OwnerRef  string    `gorm:"column:owner_ref" json:"ownerRef,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// ApiSpec records one ingested OpenAPI document. (ProjectID, SpecHash) is
// unique so re-ingesting an identical document never creates a second row.
type ApiSpec struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	ProjectID string    `gorm:"column:project_id;uniqueIndex:idx_spec_project_hash,priority:1;not null" json:"projectId"`
	Version   string    `gorm:"column:version" json:"version"`
	SpecHash  string    `gorm:"column:spec_hash;uniqueIndex:idx_spec_project_hash,priority:2;not null" json:"specHash"`
	SrcRef    string    `gorm:"column:src_ref" json:"srcRef"`
	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
}

// Api is a single (method, path) endpoint of a project's catalog. Method
// is stored upper-case; (project, method, path) identifies the endpoint
// across re-ingests.
type Api struct {
	ID          string `gorm:"column:id;primaryKey" json:"id"`
	ProjectID   string `gorm:"column:project_id;uniqueIndex:idx_api_identity,priority:1;not null" json:"projectId"`
	Method      string `gorm:"column:method;uniqueIndex:idx_api_identity,priority:2;not null" json:"method"`
	Path        string `gorm:"column:path;uniqueIndex:idx_api_identity,priority:3;not null" json:"path"`
	OperationID string `gorm:"column:operation_id" json:"operationId,omitempty"`
	Summary     string `gorm:"column:summary" json:"summary,omitempty"`
	AuthScheme  string `gorm:"column:auth_scheme" json:"authScheme,omitempty"`

	Request   *ApiRequest   `gorm:"foreignKey:ApiID" json:"request,omitempty"`
	Responses []ApiResponse `gorm:"foreignKey:ApiID" json:"responses,omitempty"`
	Variables []Variable    `gorm:"foreignKey:ApiID" json:"variables,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// ApiRequest is the single request shape of an Api: the picked body
// schema plus parameter maps bucketed by their `in` value, each keyed by
// parameter name with the OpenAPI schema as value.
type ApiRequest struct {
	ID          string            `gorm:"column:id;primaryKey" json:"id"`
	ApiID       string            `gorm:"column:api_id;uniqueIndex;not null" json:"apiId"`
	BodySchema  datatypes.JSON    `gorm:"column:body_schema" json:"bodySchema,omitempty"`
	QueryParams datatypes.JSONMap `gorm:"column:query_params" json:"queryParams,omitempty"`
	PathParams  datatypes.JSONMap `gorm:"column:path_params" json:"pathParams,omitempty"`
	Headers     datatypes.JSONMap `gorm:"column:headers" json:"headers,omitempty"`
}

// ApiResponse is one response schema per numeric status code.
type ApiResponse struct {
	ID         string         `gorm:"column:id;primaryKey" json:"id"`
	ApiID      string         `gorm:"column:api_id;uniqueIndex:idx_response_status,priority:1;not null" json:"apiId"`
	StatusCode int            `gorm:"column:status_code;uniqueIndex:idx_response_status,priority:2;not null" json:"statusCode"`
	Schema     datatypes.JSON `gorm:"column:schema" json:"schema,omitempty"`
}

// Variable is a typed input element of an endpoint. (api, name, location)
// is unique; the extractor upserts into that key so re-ingest never
// duplicates rows.
type Variable struct {
	ID           string   `gorm:"column:id;primaryKey" json:"id"`
	ApiID        string   `gorm:"column:api_id;uniqueIndex:idx_variable_identity,priority:1;not null" json:"apiId"`
	Name         string   `gorm:"column:name;uniqueIndex:idx_variable_identity,priority:2;not null" json:"name"`
	Location     string   `gorm:"column:location;uniqueIndex:idx_variable_identity,priority:3;not null" json:"location"`
	VarType      string   `gorm:"column:var_type;not null" json:"varType"`
	DataType     string   `gorm:"column:data_type" json:"dataType"`
	Required     bool     `gorm:"column:required" json:"required"`
	AIConfidence *float64 `gorm:"column:ai_confidence" json:"aiConfidence,omitempty"`
}

// DependencyCandidate is an unconfirmed machine-proposed edge. The
// analyzer replaces a project's candidate set wholesale on every analysis
// pass, so candidates carry no update timestamps.
type DependencyCandidate struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	ProjectID      string            `gorm:"column:project_id;index;not null" json:"projectId"`
	SourceApiID    string            `gorm:"column:source_api_id;not null" json:"sourceApiId"`
	TargetApiID    string            `gorm:"column:target_api_id;not null" json:"targetApiId"`
	Mapping        datatypes.JSONMap `gorm:"column:mapping" json:"mapping"`
	Confidence     float64           `gorm:"column:confidence" json:"confidence"`
	Reason         string            `gorm:"column:reason" json:"reason,omitempty"`
	Origin         string            `gorm:"column:origin" json:"origin"`
	StructuralType string            `gorm:"column:structural_type" json:"structuralType,omitempty"`
	DependencyType string            `gorm:"column:dependency_type" json:"dependencyType,omitempty"`
	CreatedAt      time.Time         `gorm:"column:created_at" json:"createdAt"`
}

// ApiDependency is a confirmed producer→consumer edge.
type ApiDependency struct {
	ID          string            `gorm:"column:id;primaryKey" json:"id"`
	ProjectID   string            `gorm:"column:project_id;index;not null" json:"projectId"`
	SourceApiID string            `gorm:"column:source_api_id;uniqueIndex:idx_dependency_edge,priority:1;not null" json:"sourceApiId"`
	TargetApiID string            `gorm:"column:target_api_id;uniqueIndex:idx_dependency_edge,priority:2;not null" json:"targetApiId"`
	Mapping     datatypes.JSONMap `gorm:"column:mapping" json:"mapping"`
	IsRequired  bool              `gorm:"column:is_required" json:"isRequired"`
	CreatedAt   time.Time         `gorm:"column:created_at" json:"createdAt"`
}

// TestRun is one execution of a project's dependency graph. ProjectID is
// nullable so run history survives project deletion.
type TestRun struct {
	ID            string     `gorm:"column:id;primaryKey" json:"id"`
	ProjectID     *string    `gorm:"column:project_id;index" json:"projectId,omitempty"`
	Environment   string     `gorm:"column:environment" json:"environment"`
	TriggerSource string     `gorm:"column:trigger_source" json:"triggerSource"`
	Status        string     `gorm:"column:status" json:"status"`
	StartedAt     time.Time  `gorm:"column:started_at" json:"startedAt"`
	CompletedAt   *time.Time `gorm:"column:completed_at" json:"completedAt,omitempty"`
}

// TestExecution is the per-endpoint record of a run.
type TestExecution struct {
	ID           string    `gorm:"column:id;primaryKey" json:"id"`
	RunID        string    `gorm:"column:run_id;uniqueIndex:idx_execution_run_api,priority:1;not null" json:"runId"`
	ApiID        *string   `gorm:"column:api_id;uniqueIndex:idx_execution_run_api,priority:2" json:"apiId,omitempty"`
	Status       string    `gorm:"column:status" json:"status"`
	RetryCount   int       `gorm:"column:retry_count" json:"retryCount"`
	ErrorMessage string    `gorm:"column:error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

// ExecutionArtifact captures the request sent and the response observed
// for one execution attempt.
type ExecutionArtifact struct {
	ID             string         `gorm:"column:id;primaryKey" json:"id"`
	ExecutionID    string         `gorm:"column:execution_id;index;not null" json:"executionId"`
	RequestData    datatypes.JSON `gorm:"column:request_data" json:"requestData,omitempty"`
	ResponseData   datatypes.JSON `gorm:"column:response_data" json:"responseData,omitempty"`
	ResponseTimeMs int64          `gorm:"column:response_time_ms" json:"responseTimeMs"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"createdAt"`
}

// MappingStrings flattens a stored JSON mapping into map[string]string.
// Mappings are written by the analyzer and the registry as string→string;
// non-string values only appear in hand-edited rows and are dropped.
func MappingStrings(m datatypes.JSONMap) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// JSONMapFromStrings is the inverse of MappingStrings.
func JSONMapFromStrings(m map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
