package models

import (
	"time"

	"github.com/google/uuid"
)

// MCPTransport enumerates supported MCP transports.
type MCPTransport string

const (
	MCPTransportSSE        MCPTransport = "sse"
	MCPTransportStreamable MCPTransport = "streamable"
)

// MCPAuthType enumerates supported MCP authentication modes.
type MCPAuthType string

const (
	MCPAuthAPIKey        MCPAuthType = "api_key"
	MCPAuthDatabricksOBO MCPAuthType = "databricks_obo"
)

// MCPServer is a registered remote Model-Context-Protocol tool
// server. Every enabled server contributes its exposed tools to
// agent construction when MCP integration is on.
type MCPServer struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID        string       `gorm:"index" json:"group_id,omitempty"`
	Name           string       `gorm:"not null" json:"name"`
	ServerURL      string       `gorm:"not null" json:"server_url"`
	Transport      MCPTransport `gorm:"type:text;not null;default:'sse'" json:"transport"`
	AuthType       MCPAuthType  `gorm:"type:text;not null;default:'api_key'" json:"auth_type"`
	APIKeyRef      string       `json:"api_key_ref,omitempty"`
	Enabled        bool         `gorm:"not null;default:false" json:"enabled"`
	TimeoutSeconds int          `gorm:"not null;default:30" json:"timeout_seconds"`
	MaxRetries     int          `gorm:"not null;default:3" json:"max_retries"`
	RateLimit      int          `gorm:"not null;default:60" json:"rate_limit"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

type MCPServers []*MCPServer
