package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExecutionStatus enumerates the lifecycle states of a crew or
// flow execution. Transitions are monotonic: once a terminal
// status is recorded the execution never re-enters a live state.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusPreparing ExecutionStatus = "preparing"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// Execution is the persisted history record for one run of a
// crew or flow. JobID is the opaque execution id callers poll
// with; it may be caller-supplied or generated.
type Execution struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       string          `gorm:"uniqueIndex;not null" json:"job_id"`
	GroupID     string          `gorm:"index" json:"group_id,omitempty"`
	Kind        string          `gorm:"type:text;not null;default:'crew'" json:"kind"`
	Status      string          `gorm:"type:text;index;not null" json:"status"`
	RunName     string          `json:"run_name,omitempty"`
	Inputs      datatypes.JSONMap `gorm:"type:json" json:"inputs,omitempty"`
	Result      datatypes.JSON  `gorm:"type:json" json:"result,omitempty"`
	Message     string          `json:"message,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Tasks       []*TaskStatus   `gorm:"foreignKey:JobID;references:JobID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

type Executions []*Execution
