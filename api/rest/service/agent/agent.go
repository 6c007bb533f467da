package agent

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

// ErrNotFound is returned when no agent matches the given id.
var ErrNotFound = errors.New("agent not found")

type Agent interface {
	WithDatabase(*gorm.DB) Agent
	List(*ListRequest) (models.Agents, error)
	Get(uuid.UUID) (*models.Agent, error)
	Create(*CreateRequest) (*models.Agent, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Agent, error)
	Delete(uuid.UUID) error
}

type agentService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Agent {
	return &agentService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (a *agentService) WithDatabase(conn *gorm.DB) Agent {
	a.db = conn
	return a
}

type ListRequest struct {
	GroupID string
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (a *agentService) List(req *ListRequest) (models.Agents, error) {
	var (
		agents = make(models.Agents, 0)
		q      = a.db.WithContext(a.ctx)
	)

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
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

	return agents, q.Find(&agents).Error
}

func (a *agentService) Get(id uuid.UUID) (*models.Agent, error) {
	agent := &models.Agent{}

	err := a.db.WithContext(a.ctx).First(agent, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load agent")
	}
	return agent, nil
}

type CreateRequest struct {
	GroupID   string          `json:"group_id,omitempty"`
	Name      string          `json:"name"`
	Role      string          `json:"role"`
	Goal      string          `json:"goal,omitempty"`
	Backstory string          `json:"backstory,omitempty"`
	LLM       json.RawMessage `json:"llm,omitempty"`
	ToolIDs   []string        `json:"tool_ids,omitempty"`
	Config    map[string]any  `json:"config,omitempty"`
}

func (a *agentService) Create(req *CreateRequest) (*models.Agent, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if req.Role == "" {
		return nil, errors.New("role is required")
	}

	toolIDs, err := marshalToolIDs(req.ToolIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agent := &models.Agent{
		ID:        uuid.New(),
		GroupID:   req.GroupID,
		Name:      req.Name,
		Role:      req.Role,
		Goal:      req.Goal,
		Backstory: req.Backstory,
		LLM:       datatypes.JSON(req.LLM),
		ToolIDs:   toolIDs,
		Config:    req.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := a.db.WithContext(a.ctx).Create(agent).Error; err != nil {
		return nil, errors.Wrap(err, "create agent")
	}
	return agent, nil
}

type UpdateRequest struct {
	Name      *string         `json:"name,omitempty"`
	Role      *string         `json:"role,omitempty"`
	Goal      *string         `json:"goal,omitempty"`
	Backstory *string         `json:"backstory,omitempty"`
	LLM       json.RawMessage `json:"llm,omitempty"`
	ToolIDs   []string        `json:"tool_ids,omitempty"`
	Config    map[string]any  `json:"config,omitempty"`
}

func (a *agentService) Update(id uuid.UUID, req *UpdateRequest) (*models.Agent, error) {
	agent, err := a.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Role != nil {
		agent.Role = *req.Role
	}
	if req.Goal != nil {
		agent.Goal = *req.Goal
	}
	if req.Backstory != nil {
		agent.Backstory = *req.Backstory
	}
	if req.LLM != nil {
		agent.LLM = datatypes.JSON(req.LLM)
	}
	if req.ToolIDs != nil {
		if agent.ToolIDs, err = marshalToolIDs(req.ToolIDs); err != nil {
			return nil, err
		}
	}
	if req.Config != nil {
		agent.Config = req.Config
	}
	agent.UpdatedAt = time.Now().UTC()

	if err := a.db.WithContext(a.ctx).Save(agent).Error; err != nil {
		return nil, errors.Wrap(err, "update agent")
	}
	return agent, nil
}

func (a *agentService) Delete(id uuid.UUID) error {
	result := a.db.WithContext(a.ctx).Delete(&models.Agent{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete agent")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalToolIDs(ids []string) (datatypes.JSON, error) {
	if ids == nil {
		return nil, nil
	}
	buf, err := json.Marshal(ids)
	if err != nil {
		return nil, errors.Wrap(err, "marshal tool ids")
	}
	return datatypes.JSON(buf), nil
}
