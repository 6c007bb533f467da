package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Schedule launches a stored crew on a cron expression.
type Schedule struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID        string            `gorm:"index" json:"group_id,omitempty"`
	Name           string            `gorm:"not null" json:"name"`
	CrewID         uuid.UUID         `gorm:"type:uuid;index;not null" json:"crew_id"`
	CronExpression string            `gorm:"not null" json:"cron_expression"`
	Enabled        bool              `gorm:"not null;default:true" json:"enabled"`
	Inputs         datatypes.JSONMap `gorm:"type:json" json:"inputs,omitempty"`
	LastRunAt      *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time        `gorm:"index" json:"next_run_at,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

type Schedules []*Schedule
