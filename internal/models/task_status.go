package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatusState enumerates per-task states within a job.
type TaskStatusState string

const (
	TaskStateRunning   TaskStatusState = "running"
	TaskStateCompleted TaskStatusState = "completed"
	TaskStateFailed    TaskStatusState = "failed"
)

// TaskStatus records one task's progress within one job. Many
// rows map to a single Execution via JobID. Last write wins per
// (JobID, TaskKey); the tracking service records whatever the
// engine reports without enforcing ordering.
type TaskStatus struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID       string     `gorm:"index:idx_job_task;not null" json:"job_id"`
	TaskKey     string     `gorm:"index:idx_job_task;not null" json:"task_id"`
	Status      string     `gorm:"type:text;index;not null" json:"status"`
	AgentName   string     `json:"agent_name,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `gorm:"not null" json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

type TaskStatuses []*TaskStatus
