package mcpserver

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no server matches the given id.
var ErrNotFound = errors.New("mcp server not found")

type MCPServer interface {
	WithDatabase(*gorm.DB) MCPServer
	List(*ListRequest) (models.MCPServers, error)
	ListEnabled() (models.MCPServers, error)
	Get(uuid.UUID) (*models.MCPServer, error)
	Create(*CreateRequest) (*models.MCPServer, error)
	Update(uuid.UUID, *UpdateRequest) (*models.MCPServer, error)
	Toggle(uuid.UUID) (*models.MCPServer, error)
	Delete(uuid.UUID) error
}

type serverService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) MCPServer {
	return &serverService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (s *serverService) WithDatabase(conn *gorm.DB) MCPServer {
	s.db = conn
	return s
}

type ListRequest struct {
	GroupID string
	Enabled *bool
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (s *serverService) List(req *ListRequest) (models.MCPServers, error) {
	var (
		servers = make(models.MCPServers, 0)
		q       = s.db.WithContext(s.ctx)
	)

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
	}

	if req.Enabled != nil {
		q = q.Where("enabled = ?", *req.Enabled)
	}

	for _, orderBy := range req.OrderBy {
		q = q.Order(orderBy)
	}

	if req.Limit > 0 {
		q = q.Limit(int(req.Limit))
	}

	if req.Offset > 0 {
		q = q.Offset(int(req.Offset))
	}

	return servers, q.Find(&servers).Error
}

// ListEnabled returns the servers agent construction should
// consult for remote tools.
func (s *serverService) ListEnabled() (models.MCPServers, error) {
	enabled := true
	return s.List(&ListRequest{Enabled: &enabled})
}

func (s *serverService) Get(id uuid.UUID) (*models.MCPServer, error) {
	server := &models.MCPServer{}

	err := s.db.WithContext(s.ctx).First(server, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load mcp server")
	}
	return server, nil
}

type CreateRequest struct {
	GroupID        string `json:"group_id,omitempty"`
	Name           string `json:"name"`
	ServerURL      string `json:"server_url"`
	Transport      string `json:"transport,omitempty"`
	AuthType       string `json:"auth_type,omitempty"`
	APIKeyRef      string `json:"api_key_ref,omitempty"`
	Enabled        bool   `json:"enabled,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	MaxRetries     int    `json:"max_retries,omitempty"`
	RateLimit      int    `json:"rate_limit,omitempty"`
}

func (s *serverService) Create(req *CreateRequest) (*models.MCPServer, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if err := validateServerURL(req.ServerURL); err != nil {
		return nil, err
	}

	transport, err := parseTransport(req.Transport)
	if err != nil {
		return nil, err
	}
	authType, err := parseAuthType(req.AuthType)
	if err != nil {
		return nil, err
	}
	if authType == models.MCPAuthAPIKey && req.Enabled && req.APIKeyRef == "" {
		return nil, errors.New("api_key_ref is required for api_key authentication")
	}

	now := time.Now().UTC()
	server := &models.MCPServer{
		ID:             uuid.New(),
		GroupID:        req.GroupID,
		Name:           req.Name,
		ServerURL:      req.ServerURL,
		Transport:      transport,
		AuthType:       authType,
		APIKeyRef:      req.APIKeyRef,
		Enabled:        req.Enabled,
		TimeoutSeconds: defaulted(req.TimeoutSeconds, 30),
		MaxRetries:     defaulted(req.MaxRetries, 3),
		RateLimit:      defaulted(req.RateLimit, 60),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.WithContext(s.ctx).Create(server).Error; err != nil {
		return nil, errors.Wrap(err, "create mcp server")
	}
	return server, nil
}

type UpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	ServerURL      *string `json:"server_url,omitempty"`
	Transport      *string `json:"transport,omitempty"`
	AuthType       *string `json:"auth_type,omitempty"`
	APIKeyRef      *string `json:"api_key_ref,omitempty"`
	TimeoutSeconds *int    `json:"timeout_seconds,omitempty"`
	MaxRetries     *int    `json:"max_retries,omitempty"`
	RateLimit      *int    `json:"rate_limit,omitempty"`
}

func (s *serverService) Update(id uuid.UUID, req *UpdateRequest) (*models.MCPServer, error) {
	server, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.ServerURL != nil {
		if err := validateServerURL(*req.ServerURL); err != nil {
			return nil, err
		}
		server.ServerURL = *req.ServerURL
	}
	if req.Transport != nil {
		if server.Transport, err = parseTransport(*req.Transport); err != nil {
			return nil, err
		}
	}
	if req.AuthType != nil {
		if server.AuthType, err = parseAuthType(*req.AuthType); err != nil {
			return nil, err
		}
	}
	if req.APIKeyRef != nil {
		server.APIKeyRef = *req.APIKeyRef
	}
	if req.TimeoutSeconds != nil {
		server.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.MaxRetries != nil {
		server.MaxRetries = *req.MaxRetries
	}
	if req.RateLimit != nil {
		server.RateLimit = *req.RateLimit
	}
	server.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(server).Error; err != nil {
		return nil, errors.Wrap(err, "update mcp server")
	}
	return server, nil
}

// Toggle flips the enabled flag. Enabling an api_key server
// without a key reference is rejected, matching Create.
func (s *serverService) Toggle(id uuid.UUID) (*models.MCPServer, error) {
	server, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	enabled := !server.Enabled
	if enabled && server.AuthType == models.MCPAuthAPIKey && server.APIKeyRef == "" {
		return nil, errors.New("api_key_ref is required for api_key authentication")
	}

	server.Enabled = enabled
	server.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).
		Model(server).
		Updates(map[string]any{"enabled": enabled, "updated_at": server.UpdatedAt}).Error; err != nil {
		return nil, errors.Wrap(err, "toggle mcp server")
	}
	return server, nil
}

func (s *serverService) Delete(id uuid.UUID) error {
	result := s.db.WithContext(s.ctx).Delete(&models.MCPServer{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete mcp server")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func validateServerURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.New("server_url must be a valid http(s) URL")
	}
	return nil
}

func parseTransport(raw string) (models.MCPTransport, error) {
	switch models.MCPTransport(raw) {
	case "":
		return models.MCPTransportSSE, nil
	case models.MCPTransportSSE, models.MCPTransportStreamable:
		return models.MCPTransport(raw), nil
	default:
		return "", errors.Errorf("invalid transport %q: must be sse or streamable", raw)
	}
}

func parseAuthType(raw string) (models.MCPAuthType, error) {
	switch models.MCPAuthType(raw) {
	case "":
		return models.MCPAuthAPIKey, nil
	case models.MCPAuthAPIKey, models.MCPAuthDatabricksOBO:
		return models.MCPAuthType(raw), nil
	default:
		return "", errors.Errorf("invalid auth_type %q: must be api_key or databricks_obo", raw)
	}
}

func defaulted(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
