package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Agent is a stored agent definition. Role, goal and backstory
// are required by the engine at build time; everything else is
// optional configuration passed through to the runtime.
type Agent struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID   string            `gorm:"index" json:"group_id,omitempty"`
	Name      string            `gorm:"not null" json:"name"`
	Role      string            `gorm:"not null" json:"role"`
	Goal      string            `json:"goal"`
	Backstory string            `json:"backstory"`
	// LLM holds either a bare model name (JSON string) or a
	// parameterized model config (JSON object with a "model" key).
	LLM       datatypes.JSON    `gorm:"type:json" json:"llm,omitempty"`
	ToolIDs   datatypes.JSON    `gorm:"type:json" json:"tool_ids,omitempty"`
	Config    datatypes.JSONMap `gorm:"type:json" json:"config,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

type Agents []*Agent
