package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Tool is a stored tool registration mapping an id to a named
// implementation in the tool factory, plus its configuration.
type Tool struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID     string            `gorm:"index" json:"group_id,omitempty"`
	Name        string            `gorm:"uniqueIndex;not null" json:"name"`
	Description string            `json:"description"`
	Enabled     bool              `gorm:"not null;default:true" json:"enabled"`
	Config      datatypes.JSONMap `gorm:"type:json" json:"config,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updated_at"`
}

type Tools []*Tool
