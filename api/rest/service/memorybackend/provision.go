package memorybackend

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/murtihash94/kasal/internal/databricks"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"github.com/pkg/errors"
)

const (
	defaultCatalog   = "ml"
	defaultSchema    = "agents"
	defaultDimension = 768
	endpointType     = "STANDARD"
)

// indexTypes is the closed set of provisionable index kinds.
var indexTypes = map[string]struct{}{
	"short_term": {},
	"long_term":  {},
	"entity":     {},
	"document":   {},
}

// ValidationResult is the structured outcome of config
// validation; invalid configs carry every violation at once.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks a Databricks memory config without touching
// the workspace.
func (s *backendService) Validate(cfg *models.DatabricksMemoryConfig) *ValidationResult {
	result := &ValidationResult{}

	if cfg == nil {
		result.Errors = append(result.Errors, "databricks_config is required")
		return result
	}

	if cfg.WorkspaceURL != "" {
		parsed, err := url.Parse(cfg.WorkspaceURL)
		if err != nil || parsed.Scheme != "https" || parsed.Host == "" {
			result.Errors = append(result.Errors, "workspace_url must be a valid https URL")
		}
	}
	if strings.TrimSpace(cfg.EndpointName) == "" {
		result.Errors = append(result.Errors, "endpoint_name is required")
	}
	if strings.TrimSpace(cfg.ShortTermIndex) == "" {
		result.Errors = append(result.Errors, "short_term_index is required")
	}
	if cfg.EmbeddingDimension <= 0 {
		result.Errors = append(result.Errors, "embedding_dimension must be positive")
	}

	for _, name := range []string{cfg.ShortTermIndex, cfg.LongTermIndex, cfg.EntityIndex, cfg.DocumentIndex} {
		if name != "" && len(strings.Split(name, ".")) != 3 {
			result.Errors = append(result.Errors, fmt.Sprintf("index %q must be fully qualified as catalog.schema.name", name))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ConnectionRequest identifies a workspace plus the caller's
// credentials. OBOToken is tried first when present; the
// configured PAT is the fallback.
type ConnectionRequest struct {
	WorkspaceURL string `json:"workspace_url"`
	EndpointName string `json:"endpoint_name,omitempty"`
	Catalog      string `json:"catalog,omitempty"`
	Schema       string `json:"schema,omitempty"`
	OBOToken     string `json:"-"`
}

// ConnectionResult reports the outcome of a connectivity check,
// including which credential finally worked.
type ConnectionResult struct {
	Success    bool   `json:"success"`
	AuthMethod string `json:"auth_method,omitempty"`
	Message    string `json:"message,omitempty"`
}

// connect tries OBO then PAT, returning the first client that
// authenticates alongside the method used.
func (s *backendService) connect(req *ConnectionRequest) (VectorSearchAPI, string, error) {
	workspaceURL := req.WorkspaceURL
	if workspaceURL == "" {
		workspaceURL = env.Variables().DatabricksHost
	}
	if workspaceURL == "" {
		return nil, "", errors.New("workspace_url is required")
	}

	var lastErr error

	if req.OBOToken != "" {
		client, err := s.factory(workspaceURL, req.OBOToken)
		if err == nil {
			if err = client.Ping(s.ctx); err == nil {
				return client, "obo", nil
			}
		}
		if !databricks.IsAuthFailure(err) {
			return nil, "obo", err
		}
		lastErr = err
		log.Debug("obo authentication rejected, trying pat", "workspace", workspaceURL)
	}

	pat, err := secret.ResolveValue(s.ctx, s.resolver, env.Variables().DatabricksTokenRef)
	if err != nil || pat == "" {
		if lastErr != nil {
			return nil, "obo", lastErr
		}
		return nil, "pat", errors.New("no databricks token configured")
	}

	client, err := s.factory(workspaceURL, pat)
	if err != nil {
		return nil, "pat", err
	}
	if err := client.Ping(s.ctx); err != nil {
		return nil, "pat", err
	}
	return client, "pat", nil
}

// TestConnection never errors: failures come back as a
// structured result the UI can render.
func (s *backendService) TestConnection(req *ConnectionRequest) *ConnectionResult {
	client, method, err := s.connect(req)
	if err != nil {
		return &ConnectionResult{
			Success:    false,
			AuthMethod: method,
			Message:    err.Error(),
		}
	}

	result := &ConnectionResult{Success: true, AuthMethod: method, Message: "connection successful"}

	if req.EndpointName != "" {
		if _, err := client.GetEndpoint(s.ctx, req.EndpointName); err != nil {
			result.Success = false
			result.Message = fmt.Sprintf("connected, but endpoint %s is unavailable: %v", req.EndpointName, err)
		}
	}
	return result
}

// IndexListResult carries the endpoint's indexes plus the auth
// method that reached them.
type IndexListResult struct {
	AuthMethod string             `json:"auth_method"`
	Indexes    []databricks.Index `json:"indexes"`
}

func (s *backendService) GetIndexes(req *ConnectionRequest) (*IndexListResult, error) {
	if req.EndpointName == "" {
		return nil, errors.New("endpoint_name is required")
	}

	client, method, err := s.connect(req)
	if err != nil {
		return nil, err
	}

	indexes, err := client.ListIndexes(s.ctx, req.EndpointName)
	if err != nil {
		return nil, errors.Wrap(err, "list indexes")
	}

	return &IndexListResult{AuthMethod: method, Indexes: indexes}, nil
}

// CreateIndexRequest provisions one index of a known type.
type CreateIndexRequest struct {
	ConnectionRequest
	IndexType          string `json:"index_type"`
	Catalog            string `json:"catalog,omitempty"`
	Schema             string `json:"schema,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
}

func (s *backendService) CreateIndex(req *CreateIndexRequest) (*databricks.Index, error) {
	if _, ok := indexTypes[req.IndexType]; !ok {
		return nil, errors.Errorf("invalid index_type %q: must be one of short_term, long_term, entity, document", req.IndexType)
	}
	if req.EndpointName == "" {
		return nil, errors.New("endpoint_name is required")
	}

	client, _, err := s.connect(&req.ConnectionRequest)
	if err != nil {
		return nil, err
	}

	return s.ensureIndex(client, req.EndpointName, indexName(req.Catalog, req.Schema, req.IndexType), req.EmbeddingDimension)
}

// DeleteIndexRequest removes one index by full name.
type DeleteIndexRequest struct {
	ConnectionRequest
	IndexName string `json:"index_name"`
}

func (s *backendService) DeleteIndexByName(req *DeleteIndexRequest) error {
	if req.IndexName == "" {
		return errors.New("index_name is required")
	}

	client, _, err := s.connect(&req.ConnectionRequest)
	if err != nil {
		return err
	}

	if err := client.DeleteIndex(s.ctx, req.IndexName); err != nil && !databricks.IsNotFound(err) {
		return errors.Wrap(err, "delete index")
	}
	return nil
}

// EndpointStatus reads the endpoint's live state.
func (s *backendService) EndpointStatus(req *ConnectionRequest) (*databricks.Endpoint, error) {
	if req.EndpointName == "" {
		return nil, errors.New("endpoint_name is required")
	}

	client, _, err := s.connect(req)
	if err != nil {
		return nil, err
	}

	endpoint, err := client.GetEndpoint(s.ctx, req.EndpointName)
	if err != nil {
		return nil, errors.Wrap(err, "get endpoint")
	}
	return endpoint, nil
}

// OneClickRequest provisions a complete memory backend with
// conventional names.
type OneClickRequest struct {
	ConnectionRequest
	GroupID            string `json:"group_id"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
}

// SetupResult describes what one-click setup provisioned.
type SetupResult struct {
	Backend  *models.MemoryBackend          `json:"backend"`
	Endpoint *databricks.Endpoint           `json:"endpoint"`
	Indexes  map[string]*databricks.Index   `json:"indexes"`
	Config   *models.DatabricksMemoryConfig `json:"config"`
}

// OneClickSetup provisions the endpoint and the four memory
// indexes, verifies them, and saves the resulting config as the
// group's default backend. Already existing resources are
// reused, so a failed run can simply be retried.
func (s *backendService) OneClickSetup(req *OneClickRequest) (*SetupResult, error) {
	if req.EndpointName == "" {
		req.EndpointName = "kasal-memory"
	}
	catalog := req.Catalog
	if catalog == "" {
		catalog = defaultCatalog
	}
	schema := req.Schema
	if schema == "" {
		schema = defaultSchema
	}
	dimension := req.EmbeddingDimension
	if dimension <= 0 {
		dimension = defaultDimension
	}

	client, _, err := s.connect(&req.ConnectionRequest)
	if err != nil {
		return nil, err
	}

	endpoint, err := s.ensureEndpoint(client, req.EndpointName)
	if err != nil {
		return nil, err
	}

	indexes := map[string]*databricks.Index{}
	for indexType := range indexTypes {
		index, err := s.ensureIndex(client, req.EndpointName, indexName(catalog, schema, indexType), dimension)
		if err != nil {
			return nil, errors.Wrapf(err, "provision %s index", indexType)
		}
		indexes[indexType] = index
	}

	cfg := &models.DatabricksMemoryConfig{
		WorkspaceURL:       req.WorkspaceURL,
		EndpointName:       req.EndpointName,
		ShortTermIndex:     indexName(catalog, schema, "short_term"),
		LongTermIndex:      indexName(catalog, schema, "long_term"),
		EntityIndex:        indexName(catalog, schema, "entity"),
		DocumentIndex:      indexName(catalog, schema, "document"),
		EmbeddingDimension: dimension,
		Catalog:            catalog,
		Schema:             schema,
	}

	backend, err := s.Create(&CreateRequest{
		GroupID:     req.GroupID,
		Name:        "Databricks Vector Search",
		BackendType: models.MemoryBackendTypeDatabricks,
		IsDefault:   true,
		Databricks:  cfg,
	})
	if err != nil {
		return nil, err
	}

	return &SetupResult{
		Backend:  backend,
		Endpoint: endpoint,
		Indexes:  indexes,
		Config:   cfg,
	}, nil
}

// VerifyResult reports, resource by resource, whether the
// configured endpoint and indexes actually exist.
type VerifyResult struct {
	EndpointReady bool            `json:"endpoint_ready"`
	Indexes       map[string]bool `json:"indexes"`
	Complete      bool            `json:"complete"`
}

// VerifyResources checks the group's default Databricks config
// against the live workspace.
func (s *backendService) VerifyResources(req *ConnectionRequest) (*VerifyResult, error) {
	client, _, err := s.connect(req)
	if err != nil {
		return nil, err
	}

	if req.EndpointName == "" {
		return nil, errors.New("endpoint_name is required")
	}

	result := &VerifyResult{Indexes: map[string]bool{}}

	if _, err := client.GetEndpoint(s.ctx, req.EndpointName); err == nil {
		result.EndpointReady = true
	} else if !databricks.IsNotFound(err) {
		return nil, errors.Wrap(err, "verify endpoint")
	}

	indexes, err := client.ListIndexes(s.ctx, req.EndpointName)
	if err != nil && !databricks.IsNotFound(err) {
		return nil, errors.Wrap(err, "verify indexes")
	}

	catalog := req.Catalog
	if catalog == "" {
		catalog = defaultCatalog
	}
	schema := req.Schema
	if schema == "" {
		schema = defaultSchema
	}

	known := map[string]struct{}{}
	for _, index := range indexes {
		known[index.Name] = struct{}{}
	}
	for indexType := range indexTypes {
		_, ok := known[indexName(catalog, schema, indexType)]
		result.Indexes[indexType] = ok
	}

	result.Complete = result.EndpointReady
	for _, ok := range result.Indexes {
		result.Complete = result.Complete && ok
	}
	return result, nil
}

func (s *backendService) ensureEndpoint(client VectorSearchAPI, name string) (*databricks.Endpoint, error) {
	endpoint, err := client.GetEndpoint(s.ctx, name)
	if err == nil {
		return endpoint, nil
	}
	if !databricks.IsNotFound(err) {
		return nil, errors.Wrap(err, "get endpoint")
	}

	endpoint, err = client.CreateEndpoint(s.ctx, &databricks.CreateEndpointRequest{
		Name: name,
		Type: endpointType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create endpoint")
	}
	return endpoint, nil
}

func (s *backendService) ensureIndex(client VectorSearchAPI, endpointName, name string, dimension int) (*databricks.Index, error) {
	if dimension <= 0 {
		dimension = defaultDimension
	}

	index, err := client.GetIndex(s.ctx, name)
	if err == nil {
		return index, nil
	}
	if !databricks.IsNotFound(err) {
		return nil, errors.Wrap(err, "get index")
	}

	index, err = client.CreateIndex(s.ctx, &databricks.CreateIndexRequest{
		Name:               name,
		EndpointName:       endpointName,
		PrimaryKey:         "id",
		EmbeddingDimension: dimension,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create index")
	}
	return index, nil
}

func indexName(catalog, schema, indexType string) string {
	if catalog == "" {
		catalog = defaultCatalog
	}
	if schema == "" {
		schema = defaultSchema
	}
	return fmt.Sprintf("%s.%s.%s_memory", catalog, schema, indexType)
}
