package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no task matches the given id.
var ErrNotFound = errors.New("task not found")

type Task interface {
	WithDatabase(*gorm.DB) Task
	List(*ListRequest) (models.Tasks, error)
	Get(uuid.UUID) (*models.Task, error)
	Create(*CreateRequest) (*models.Task, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Task, error)
	Delete(uuid.UUID) error
}

type taskService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Task {
	return &taskService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (t *taskService) WithDatabase(conn *gorm.DB) Task {
	t.db = conn
	return t
}

type ListRequest struct {
	GroupID string
	AgentID *uuid.UUID
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (t *taskService) List(req *ListRequest) (models.Tasks, error) {
	var (
		tasks = make(models.Tasks, 0)
		q     = t.db.WithContext(t.ctx)
	)

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
	}

	if req.AgentID != nil {
		q = q.Where("agent_id = ?", *req.AgentID)
	}

	for _, orderBy := range req.OrderBy {
		q = q.Order(orderBy)
	}

	if req.Limit > 0 {
		q = q.Limit(int(req.Limit))
	}

	if req.Offset > 0 {
		q = q.Offset(int(req.Offset))
	}

	return tasks, q.Find(&tasks).Error
}

func (t *taskService) Get(id uuid.UUID) (*models.Task, error) {
	task := &models.Task{}

	err := t.db.WithContext(t.ctx).First(task, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load task")
	}
	return task, nil
}

type CreateRequest struct {
	GroupID        string          `json:"group_id,omitempty"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	ExpectedOutput string          `json:"expected_output,omitempty"`
	AgentID        *uuid.UUID      `json:"agent_id,omitempty"`
	Tools          json.RawMessage `json:"tools,omitempty"`
	Markdown       bool            `json:"markdown,omitempty"`
	AsyncExecution bool            `json:"async_execution,omitempty"`
	HumanInput     bool            `json:"human_input,omitempty"`
	Config         map[string]any  `json:"config,omitempty"`
}

func (t *taskService) Create(req *CreateRequest) (*models.Task, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.Description == "" {
		return nil, errors.New("description is required")
	}

	if req.AgentID != nil {
		if err := t.db.WithContext(t.ctx).First(&models.Agent{}, "id = ?", *req.AgentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errors.Errorf("agent %s does not exist", *req.AgentID)
			}
			return nil, errors.Wrap(err, "verify agent")
		}
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:             uuid.New(),
		GroupID:        req.GroupID,
		Name:           req.Name,
		Description:    req.Description,
		ExpectedOutput: req.ExpectedOutput,
		AgentID:        req.AgentID,
		Tools:          datatypes.JSON(req.Tools),
		Markdown:       req.Markdown,
		AsyncExecution: req.AsyncExecution,
		HumanInput:     req.HumanInput,
		Config:         req.Config,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := t.db.WithContext(t.ctx).Create(task).Error; err != nil {
		return nil, errors.Wrap(err, "create task")
	}
	return task, nil
}

type UpdateRequest struct {
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	ExpectedOutput *string         `json:"expected_output,omitempty"`
	AgentID        *uuid.UUID      `json:"agent_id,omitempty"`
	Tools          json.RawMessage `json:"tools,omitempty"`
	Markdown       *bool           `json:"markdown,omitempty"`
	AsyncExecution *bool           `json:"async_execution,omitempty"`
	HumanInput     *bool           `json:"human_input,omitempty"`
	Config         map[string]any  `json:"config,omitempty"`
}

func (t *taskService) Update(id uuid.UUID, req *UpdateRequest) (*models.Task, error) {
	task, err := t.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.ExpectedOutput != nil {
		task.ExpectedOutput = *req.ExpectedOutput
	}
	if req.AgentID != nil {
		task.AgentID = req.AgentID
	}
	if req.Tools != nil {
		task.Tools = datatypes.JSON(req.Tools)
	}
	if req.Markdown != nil {
		task.Markdown = *req.Markdown
	}
	if req.AsyncExecution != nil {
		task.AsyncExecution = *req.AsyncExecution
	}
	if req.HumanInput != nil {
		task.HumanInput = *req.HumanInput
	}
	if req.Config != nil {
		task.Config = req.Config
	}
	task.UpdatedAt = time.Now().UTC()

	if err := t.db.WithContext(t.ctx).Save(task).Error; err != nil {
		return nil, errors.Wrap(err, "update task")
	}
	return task, nil
}

func (t *taskService) Delete(id uuid.UUID) error {
	result := t.db.WithContext(t.ctx).Delete(&models.Task{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete task")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
