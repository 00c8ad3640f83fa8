// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ingest validates and dereferences an OpenAPI 3.x document and
// writes the normalized catalog — Apis, requests, responses, variables —
// in one transaction. Re-ingesting an identical document is idempotent:
// the same ApiSpec row is reused and every endpoint's children are erased
// and rewritten so no stale rows survive.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	gormtypes "gorm.io/datatypes"

	"github.com/latticeci/lattice/services/orchestrator/datatypes"
	"github.com/latticeci/lattice/services/orchestrator/store"
)

var tracer = otel.Tracer("lattice.orchestrator.ingest")

// Sentinel errors surfaced to the caller. Any of them rolls the whole
// ingest transaction back; no partial catalog is ever visible.
var (
	ErrInvalidSpec          = errors.New("invalid OpenAPI specification")
	ErrUnsupportedVersion   = errors.New("unsupported OpenAPI version")
	ErrUnserializableSchema = errors.New("schema is not JSON-serializable")
)

// txTimeout bounds the catalog write. Large specs produce thousands of
// variable rows; anything under 20s risks aborting mid-spec.
const txTimeout = 30 * time.Second

// EndpointRef identifies one written endpoint.
type EndpointRef struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Ingestor is the spec ingestion component.
type Ingestor struct {
	store *store.Store
}

// New builds an Ingestor over the given store handle.
func New(s *store.Store) *Ingestor {
	return &Ingestor{store: s}
}

// Ingest loads the OpenAPI document at source (URL or local path),
// validates and dereferences it, and writes the catalog for projectID.
// It returns the (method, path) pairs written.
func (ing *Ingestor) Ingest(ctx context.Context, projectID, source string) ([]EndpointRef, error) {
	ctx, span := tracer.Start(ctx, "Ingestor.Ingest")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	doc, err := loadDocument(ctx, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Version gate runs before full validation so a swagger 2.0 or
	// hypothetical 4.x document reports the version, not a shape error.
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		err := fmt.Errorf("%w: %q", ErrUnsupportedVersion, doc.OpenAPI)
		span.RecordError(err)
		return nil, err
	}
	if err := doc.Validate(ctx); err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hash, err := specHash(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnserializableSchema, err)
	}

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	var written []EndpointRef
	err = ing.store.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.FindSpecByHash(ctx, projectID, hash)
		if err != nil {
			return err
		}
		if existing != nil {
			slog.Warn("Spec already ingested for project, performing idempotent update",
				"project_id", projectID, "spec_hash", hash)
		} else {
			version := doc.OpenAPI
			if doc.Info != nil && doc.Info.Version != "" {
				version = doc.Info.Version
			}
			spec := &datatypes.ApiSpec{
				ProjectID: projectID,
				Version:   version,
				SpecHash:  hash,
				SrcRef:    source,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.CreateSpec(ctx, spec); err != nil {
				return err
			}
		}

		var paths map[string]*openapi3.PathItem
		if doc.Paths != nil {
			paths = doc.Paths.Map()
		}
		for _, path := range sortedKeys(paths) {
			item := paths[path]
			ops := item.Operations()
			for _, method := range sortedKeys(ops) {
				op := ops[method]
				ref, err := ing.writeOperation(ctx, tx, doc, projectID, method, path, item, op)
				if err != nil {
					return err
				}
				written = append(written, ref)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slog.Info("Spec ingested", "project_id", projectID, "endpoints", len(written),
		"spec_hash", hash)
	span.SetAttributes(attribute.Int("ingest.endpoints", len(written)))
	return written, nil
}

// writeOperation upserts one Api and rewrites its children.
func (ing *Ingestor) writeOperation(ctx context.Context, tx *store.Store,
	doc *openapi3.T, projectID, method, path string,
	item *openapi3.PathItem, op *openapi3.Operation) (EndpointRef, error) {

	method = strings.ToUpper(method)
	ref := EndpointRef{Method: method, Path: path}

	authScheme := effectiveAuthScheme(doc, op)

	api, err := tx.FindApiByIdentity(ctx, projectID, method, path)
	if err != nil {
		return ref, err
	}
	if api == nil {
		api = &datatypes.Api{
			ProjectID:   projectID,
			Method:      method,
			Path:        path,
			OperationID: op.OperationID,
			Summary:     op.Summary,
			AuthScheme:  authScheme,
		}
		if err := tx.CreateApi(ctx, api); err != nil {
			return ref, err
		}
	} else {
		api.OperationID = op.OperationID
		api.Summary = op.Summary
		api.AuthScheme = authScheme
		if err := tx.SaveApi(ctx, api); err != nil {
			return ref, err
		}
		// Erase before rewrite so no stale children survive the update.
		if err := tx.EraseApiChildren(ctx, api.ID); err != nil {
			return ref, err
		}
	}

	bodySchema := pickBodySchema(op)
	queryParams, pathParams, headers := bucketParameters(item, op)
	if authScheme != "" {
		if _, ok := headers["Authorization"]; !ok {
			headers["Authorization"] = map[string]interface{}{"type": "string"}
		}
	}

	req := &datatypes.ApiRequest{
		ApiID:       api.ID,
		QueryParams: queryParams,
		PathParams:  pathParams,
		Headers:     headers,
	}
	if bodySchema != nil {
		raw, err := json.Marshal(bodySchema)
		if err != nil {
			return ref, fmt.Errorf("%w: body of %s %s: %v", ErrUnserializableSchema, method, path, err)
		}
		req.BodySchema = gormtypes.JSON(raw)
	}
	if err := tx.CreateApiRequest(ctx, req); err != nil {
		return ref, err
	}

	if err := writeResponses(ctx, tx, api.ID, method, path, op); err != nil {
		return ref, err
	}

	rows := ExtractVariables(op, item, bodySchema, authScheme != "")
	for _, row := range rows {
		v := &datatypes.Variable{
			ApiID:    api.ID,
			Name:     row.Name,
			Location: row.Location,
			VarType:  row.VarType,
			DataType: row.DataType,
			Required: row.Required,
		}
		if err := tx.UpsertVariable(ctx, v); err != nil {
			return ref, err
		}
	}
	return ref, nil
}

// writeResponses persists one row per numeric status code. Non-numeric
// keys such as "default" are skipped.
func writeResponses(ctx context.Context, tx *store.Store, apiID, method, path string,
	op *openapi3.Operation) error {

	if op.Responses == nil {
		return nil
	}
	m := op.Responses.Map()
	for _, code := range sortedKeys(m) {
		status, err := strconv.Atoi(code)
		if err != nil {
			continue
		}
		respRef := m[code]
		row := &datatypes.ApiResponse{ApiID: apiID, StatusCode: status}
		if respRef != nil && respRef.Value != nil {
			if schema := pickContentSchema(respRef.Value.Content); schema != nil {
				raw, err := json.Marshal(schema)
				if err != nil {
					return fmt.Errorf("%w: response %d of %s %s: %v",
						ErrUnserializableSchema, status, method, path, err)
				}
				row.Schema = gormtypes.JSON(raw)
			}
		}
		if err := tx.CreateApiResponse(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// pickBodySchema extracts the single request body schema by content-type
// preference: json, then multipart, then urlencoded, then whatever comes
// first.
func pickBodySchema(op *openapi3.Operation) *openapi3.Schema {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	return pickContentSchema(op.RequestBody.Value.Content)
}

func pickContentSchema(content openapi3.Content) *openapi3.Schema {
	if len(content) == 0 {
		return nil
	}
	keys := sortedKeys(content)
	pick := func(substr string) *openapi3.Schema {
		for _, k := range keys {
			if strings.Contains(k, substr) {
				return schemaOf(content[k])
			}
		}
		return nil
	}
	for _, substr := range []string{"json", "multipart", "urlencoded"} {
		if s := pick(substr); s != nil {
			return s
		}
	}
	return schemaOf(content[keys[0]])
}

func schemaOf(mt *openapi3.MediaType) *openapi3.Schema {
	if mt == nil || mt.Schema == nil {
		return nil
	}
	return mt.Schema.Value
}

// bucketParameters splits path-item and operation parameters by their
// `in` value, keyed by name with the parameter schema as value.
// Operation-level parameters shadow path-item ones of the same name.
func bucketParameters(item *openapi3.PathItem, op *openapi3.Operation) (query, path, headers gormtypes.JSONMap) {
	query = gormtypes.JSONMap{}
	path = gormtypes.JSONMap{}
	headers = gormtypes.JSONMap{}

	put := func(p *openapi3.Parameter) {
		var schema interface{} = map[string]interface{}{"type": "string"}
		if p.Schema != nil && p.Schema.Value != nil {
			if raw, err := json.Marshal(p.Schema.Value); err == nil {
				var v interface{}
				if json.Unmarshal(raw, &v) == nil {
					schema = v
				}
			}
		}
		switch p.In {
		case openapi3.ParameterInQuery:
			query[p.Name] = schema
		case openapi3.ParameterInPath:
			path[p.Name] = schema
		case openapi3.ParameterInHeader:
			headers[p.Name] = schema
		}
	}
	for _, ref := range item.Parameters {
		if ref != nil && ref.Value != nil {
			put(ref.Value)
		}
	}
	for _, ref := range op.Parameters {
		if ref != nil && ref.Value != nil {
			put(ref.Value)
		}
	}
	return query, path, headers
}

// effectiveAuthScheme resolves the effective security of an operation:
// the first non-null of operation security and document security. (The
// OpenAPI 3 object model has no path-item security; the fallthrough
// therefore has two steps.) It returns "bearer" or "oauth2" when any
// referenced scheme is http+bearer or oauth2, else "".
func effectiveAuthScheme(doc *openapi3.T, op *openapi3.Operation) string {
	var reqs openapi3.SecurityRequirements
	if op.Security != nil {
		reqs = *op.Security
	} else {
		reqs = doc.Security
	}
	if len(reqs) == 0 || doc.Components == nil {
		return ""
	}
	for _, req := range reqs {
		for _, name := range sortedKeys(req) {
			ref, ok := doc.Components.SecuritySchemes[name]
			if !ok || ref.Value == nil {
				continue
			}
			scheme := ref.Value
			if scheme.Type == "http" && strings.EqualFold(scheme.Scheme, "bearer") {
				return "bearer"
			}
			if scheme.Type == "oauth2" {
				return "oauth2"
			}
		}
	}
	return ""
}

// loadDocument fetches and parses the document; $refs resolve during
// load. Parse failures surface as ErrInvalidSpec.
func loadDocument(ctx context.Context, source string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		var u *url.URL
		u, err = url.Parse(source)
		if err == nil {
			doc, err = loader.LoadFromURI(u)
		}
	} else {
		doc, err = loader.LoadFromFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return doc, nil
}

// specHash computes a stable SHA-256 over the canonicalized resolved
// document. encoding/json emits map keys in sorted order, so the same
// resolved document always hashes identically.
func specHash(doc *openapi3.T) (string, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return "", err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
