package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionTrace is one agent-trace entry recorded by the
// agent-trace listener during an execution.
type ExecutionTrace struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID     string    `gorm:"index;not null" json:"job_id"`
	TaskKey   string    `gorm:"index" json:"task_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	EventType string    `gorm:"not null" json:"event_type"`
	Output    string    `gorm:"type:text" json:"output,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

type ExecutionTraces []*ExecutionTrace

// ErrorTrace records a task failure against an execution
// history row, written best-effort by the tracking callbacks.
type ErrorTrace struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID        string    `gorm:"index;not null" json:"job_id"`
	TaskKey      string    `gorm:"index" json:"task_id,omitempty"`
	ErrorType    string    `json:"error_type,omitempty"`
	ErrorMessage string    `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
}

type ErrorTraces []*ErrorTrace
