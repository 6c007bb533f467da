package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MemoryBackendType enumerates supported memory backends.
type MemoryBackendType string

const (
	// MemoryBackendTypeDefault disables external memory.
	MemoryBackendTypeDefault    MemoryBackendType = "default"
	MemoryBackendTypeDatabricks MemoryBackendType = "databricks"
)

// MemoryBackend is a per-group configuration selecting and
// parameterizing an external memory/vector-search backend. At
// most one row per group carries IsDefault=true.
type MemoryBackend struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID     string            `gorm:"index;not null" json:"group_id"`
	Name        string            `json:"name"`
	BackendType MemoryBackendType `gorm:"type:text;index;not null" json:"backend_type"`
	IsDefault   bool              `gorm:"not null;default:false" json:"is_default"`
	Databricks  datatypes.JSON    `gorm:"type:json" json:"databricks_config,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

type MemoryBackends []*MemoryBackend

// DatabricksMemoryConfig parameterizes Databricks Vector Search
// as a memory backend.
type DatabricksMemoryConfig struct {
	WorkspaceURL       string `json:"workspace_url,omitempty"`
	EndpointName       string `json:"endpoint_name"`
	ShortTermIndex     string `json:"short_term_index"`
	LongTermIndex      string `json:"long_term_index,omitempty"`
	EntityIndex        string `json:"entity_index,omitempty"`
	DocumentIndex      string `json:"document_index,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension"`
	Catalog            string `json:"catalog,omitempty"`
	Schema             string `json:"schema,omitempty"`
}

// DatabricksConfig decodes the stored Databricks configuration,
// returning nil when none is present.
func (m *MemoryBackend) DatabricksConfig() (*DatabricksMemoryConfig, error) {
	if len(m.Databricks) == 0 {
		return nil, nil
	}

	cfg := &DatabricksMemoryConfig{}
	if err := json.Unmarshal(m.Databricks, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SetDatabricksConfig encodes and stores the Databricks
// configuration.
func (m *MemoryBackend) SetDatabricksConfig(cfg *DatabricksMemoryConfig) error {
	if cfg == nil {
		m.Databricks = nil
		return nil
	}

	buf, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	m.Databricks = buf
	return nil
}
