package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Task is a stored task definition. AgentID is optional: when
// absent the engine infers the owning agent from flow edges.
type Task struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID        string            `gorm:"index" json:"group_id,omitempty"`
	Name           string            `gorm:"not null" json:"name"`
	Description    string            `json:"description"`
	ExpectedOutput string            `json:"expected_output"`
	AgentID        *uuid.UUID        `gorm:"type:uuid;index" json:"agent_id,omitempty"`
	// Tools may be a JSON array of tool ids, or a JSON-encoded
	// string containing such an array; the engine accepts both.
	Tools          datatypes.JSON    `gorm:"type:json" json:"tools,omitempty"`
	Markdown       bool              `gorm:"not null;default:false" json:"markdown"`
	AsyncExecution bool              `gorm:"not null;default:false" json:"async_execution"`
	HumanInput     bool              `gorm:"not null;default:false" json:"human_input"`
	Config         datatypes.JSONMap `gorm:"type:json" json:"config,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

type Tasks []*Task
