package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Crew is a stored crew definition: YAML agent and task
// mappings plus default inputs, runnable through the execution
// service or a schedule.
type Crew struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID    string            `gorm:"index" json:"group_id,omitempty"`
	Name       string            `gorm:"not null" json:"name"`
	AgentsYAML string            `gorm:"type:text" json:"agents_yaml"`
	TasksYAML  string            `gorm:"type:text" json:"tasks_yaml"`
	Planning   bool              `gorm:"not null;default:false" json:"planning"`
	Model      string            `json:"model,omitempty"`
	Inputs     datatypes.JSONMap `gorm:"type:json" json:"inputs,omitempty"`
	CreatedAt  time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null" json:"updated_at"`
}

type Crews []*Crew
