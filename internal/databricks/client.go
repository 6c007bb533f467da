package databricks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client wraps the Databricks Vector Search and workspace REST
// APIs. It authenticates with either a service PAT or an
// On-Behalf-Of user token; callers choose per request by how
// they construct the client.
type Client struct {
	workspaceURL string
	token        string
	httpClient   *http.Client
}

// New builds a client for the workspace. token may be a PAT or
// an OBO user token; both are sent as bearer credentials.
func New(workspaceURL, token string) (*Client, error) {
	workspaceURL = strings.TrimSuffix(strings.TrimSpace(workspaceURL), "/")
	if workspaceURL == "" {
		return nil, fmt.Errorf("databricks: workspace url is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("databricks: token is required")
	}

	return &Client{
		workspaceURL: workspaceURL,
		token:        token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithHTTPClient overrides the HTTP client (primarily for tests).
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// Endpoint describes a Vector Search endpoint.
type Endpoint struct {
	Name  string `json:"name"`
	State string `json:"endpoint_status,omitempty"`
	Type  string `json:"endpoint_type,omitempty"`
}

// Index describes a Vector Search index.
type Index struct {
	Name         string `json:"name"`
	EndpointName string `json:"endpoint_name,omitempty"`
	PrimaryKey   string `json:"primary_key,omitempty"`
	IndexType    string `json:"index_type,omitempty"`
	State        string `json:"status,omitempty"`
}

// CreateEndpointRequest parameterizes endpoint creation.
type CreateEndpointRequest struct {
	Name string `json:"name"`
	Type string `json:"endpoint_type"`
}

// CreateIndexRequest parameterizes direct-access index creation.
type CreateIndexRequest struct {
	Name               string `json:"name"`
	EndpointName       string `json:"endpoint_name"`
	PrimaryKey         string `json:"primary_key"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// apiError mirrors the Databricks error envelope.
type apiError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// Error is a classified remote failure.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("databricks: %s (%d %s)", e.Message, e.StatusCode, e.Code)
}

// IsNotFound reports whether the error is a 404-class failure.
func IsNotFound(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.StatusCode == http.StatusNotFound || e.Code == "RESOURCE_DOES_NOT_EXIST"
	}
	return false
}

// IsAuthFailure reports whether the error is a credential
// problem, distinguished so callers can render an actionable
// message.
func IsAuthFailure(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Ping verifies the credential by listing endpoints.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListEndpoints(ctx)
	return err
}

// CreateEndpoint provisions a Vector Search endpoint.
func (c *Client) CreateEndpoint(ctx context.Context, req *CreateEndpointRequest) (*Endpoint, error) {
	if req.Type == "" {
		req.Type = "STANDARD"
	}

	out := &Endpoint{}
	err := c.do(ctx, http.MethodPost, "/api/2.0/vector-search/endpoints", req, out)
	return out, err
}

// GetEndpoint fetches one endpoint.
func (c *Client) GetEndpoint(ctx context.Context, name string) (*Endpoint, error) {
	out := &Endpoint{}
	err := c.do(ctx, http.MethodGet, "/api/2.0/vector-search/endpoints/"+name, nil, out)
	return out, err
}

// ListEndpoints enumerates endpoints.
func (c *Client) ListEndpoints(ctx context.Context) ([]Endpoint, error) {
	var out struct {
		Endpoints []Endpoint `json:"endpoints"`
	}
	err := c.do(ctx, http.MethodGet, "/api/2.0/vector-search/endpoints", nil, &out)
	return out.Endpoints, err
}

// CreateIndex provisions a direct-access index.
func (c *Client) CreateIndex(ctx context.Context, req *CreateIndexRequest) (*Index, error) {
	out := &Index{}
	err := c.do(ctx, http.MethodPost, "/api/2.0/vector-search/indexes", req, out)
	return out, err
}

// GetIndex fetches one index by fully qualified name.
func (c *Client) GetIndex(ctx context.Context, name string) (*Index, error) {
	out := &Index{}
	err := c.do(ctx, http.MethodGet, "/api/2.0/vector-search/indexes/"+name, nil, out)
	return out, err
}

// ListIndexes enumerates indexes on an endpoint.
func (c *Client) ListIndexes(ctx context.Context, endpointName string) ([]Index, error) {
	var out struct {
		Indexes []Index `json:"vector_indexes"`
	}
	err := c.do(ctx, http.MethodGet, "/api/2.0/vector-search/indexes?endpoint_name="+endpointName, nil, &out)
	return out.Indexes, err
}

// DeleteIndex removes an index.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/2.0/vector-search/indexes/"+name, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("databricks: encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.workspaceURL+path, body)
	if err != nil {
		return fmt.Errorf("databricks: build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("databricks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := apiError{}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return &Error{StatusCode: resp.StatusCode, Code: apiErr.ErrorCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("databricks: decode response: %w", err)
	}

	return nil
}
