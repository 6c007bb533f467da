package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/log"
)

// databricksAppsSuffix identifies the Databricks Apps hosting
// pattern. Servers hosted there require On-Behalf-Of user
// authentication regardless of their configured auth type.
const databricksAppsSuffix = ".databricksapps.com"

// ToolDef describes one remote tool exposed by an MCP server.
type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Adapter is a live connection to a remote MCP tool server over
// one of the supported transports.
type Adapter struct {
	server   *models.MCPServer
	baseURL  string
	headers  http.Header
	client   *http.Client
	resolver secret.Resolver
	oboToken string

	tools []ToolDef
}

// ConnectOptions parameterize adapter construction.
type ConnectOptions struct {
	Resolver secret.Resolver
	// OBOToken is the per-request user token forwarded from the
	// inbound HTTP request, used for databricks_obo servers.
	OBOToken string
}

// Connect builds an adapter for the server and fetches its tool
// list once; the list is cached for the adapter's lifetime.
func Connect(ctx context.Context, server *models.MCPServer, opts ConnectOptions) (*Adapter, error) {
	if server == nil {
		return nil, fmt.Errorf("mcp: server is required")
	}

	baseURL, err := normalizeURL(server)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	a := &Adapter{
		server:   server,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		resolver: opts.Resolver,
		oboToken: opts.OBOToken,
	}

	if a.headers, err = a.buildHeaders(ctx); err != nil {
		return nil, err
	}

	if a.tools, err = a.fetchTools(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

// Server returns the backing server model.
func (a *Adapter) Server() *models.MCPServer {
	return a.server
}

// Tools returns the cached tool list.
func (a *Adapter) Tools() []ToolDef {
	return a.tools
}

// CallTool invokes a remote tool by name with retries up to the
// server's configured maximum.
func (a *Adapter) CallTool(ctx context.Context, name, input string) (string, error) {
	attempts := a.server.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		result, err := a.callOnce(ctx, name, input)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Warn("mcp tool call failed",
			"server", a.server.Name, "tool", name, "attempt", i+1, "error", err)

		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("mcp tool %s on %s: %w", name, a.server.Name, lastErr)
}

func (a *Adapter) callOnce(ctx context.Context, name, input string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"name":  name,
		"input": input,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("tools/call"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	a.applyHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("server responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode tool result: %w", err)
	}

	return out.Result, nil
}

func (a *Adapter) fetchTools(ctx context.Context) ([]ToolDef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint("tools/list"), nil)
	if err != nil {
		return nil, err
	}
	a.applyHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list tools on %s: %w", a.server.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Tools []ToolDef `json:"tools"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tool list: %w", err)
	}

	return out.Tools, nil
}

func (a *Adapter) endpoint(path string) string {
	return strings.TrimSuffix(a.baseURL, "/") + "/" + path
}

func (a *Adapter) applyHeaders(req *http.Request) {
	for k, vs := range a.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}

// buildHeaders constructs auth headers per transport and auth
// type. Databricks Apps hosts force OBO regardless of the
// configured auth type.
func (a *Adapter) buildHeaders(ctx context.Context) (http.Header, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")

	if a.server.Transport == models.MCPTransportSSE {
		headers.Set("Accept", "text/event-stream")
	} else {
		headers.Set("Accept", "application/json")
	}

	authType := a.server.AuthType
	if isDatabricksAppsHost(a.baseURL) {
		authType = models.MCPAuthDatabricksOBO
	}

	switch authType {
	case models.MCPAuthDatabricksOBO:
		if a.oboToken == "" {
			return nil, fmt.Errorf("mcp server %s requires an on-behalf-of token", a.server.Name)
		}
		headers.Set("Authorization", "Bearer "+a.oboToken)
	case models.MCPAuthAPIKey:
		fallthrough
	default:
		if a.server.APIKeyRef != "" {
			key, err := secret.ResolveValue(ctx, a.resolver, a.server.APIKeyRef)
			if err != nil {
				return nil, fmt.Errorf("resolve api key for %s: %w", a.server.Name, err)
			}
			headers.Set("Authorization", "Bearer "+key)
		}
	}

	return headers, nil
}

// normalizeURL validates the server URL and applies
// transport-specific normalization: SSE endpoints hosted on
// Databricks Apps get "/sse" appended when missing.
func normalizeURL(server *models.MCPServer) (string, error) {
	raw := strings.TrimSpace(server.ServerURL)
	if raw == "" {
		return "", fmt.Errorf("mcp server %s has no url", server.Name)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url for %s: %w", server.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("mcp server %s has unsupported scheme %q", server.Name, u.Scheme)
	}

	if server.Transport == models.MCPTransportSSE &&
		isDatabricksAppsHost(raw) &&
		!strings.HasSuffix(strings.TrimSuffix(u.Path, "/"), "/sse") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/sse"
	}

	return u.String(), nil
}

func isDatabricksAppsHost(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), databricksAppsSuffix)
}
