package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Flow is a stored graph orchestration: nodes keyed
// "agent-{id}" / "task-{id}", directed edges between them, and
// a flow config block describing the topology
// (sequential | parallel | conditional).
type Flow struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID    string         `gorm:"index" json:"group_id,omitempty"`
	Name       string         `gorm:"not null" json:"name"`
	Nodes      datatypes.JSON `gorm:"type:json" json:"nodes,omitempty"`
	Edges      datatypes.JSON `gorm:"type:json" json:"edges,omitempty"`
	FlowConfig datatypes.JSON `gorm:"type:json" json:"flow_config,omitempty"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

type Flows []*Flow
