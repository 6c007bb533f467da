package tool

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no tool matches the given id.
var ErrNotFound = errors.New("tool not found")

type Tool interface {
	WithDatabase(*gorm.DB) Tool
	List(*ListRequest) (models.Tools, error)
	Get(uuid.UUID) (*models.Tool, error)
	GetByName(string) (*models.Tool, error)
	Create(*CreateRequest) (*models.Tool, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Tool, error)
	Toggle(uuid.UUID, bool) (*models.Tool, error)
	Delete(uuid.UUID) error
}

type toolService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Tool {
	return &toolService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (t *toolService) WithDatabase(conn *gorm.DB) Tool {
	t.db = conn
	return t
}

type ListRequest struct {
	GroupID string
	Enabled *bool
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (t *toolService) List(req *ListRequest) (models.Tools, error) {
	var (
		tools = make(models.Tools, 0)
		q     = t.db.WithContext(t.ctx)
	)

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
	}

	if req.Enabled != nil {
		q = q.Where("enabled = ?", *req.Enabled)
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

	return tools, q.Find(&tools).Error
}

func (t *toolService) Get(id uuid.UUID) (*models.Tool, error) {
	tool := &models.Tool{}

	err := t.db.WithContext(t.ctx).First(tool, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load tool")
	}
	return tool, nil
}

func (t *toolService) GetByName(name string) (*models.Tool, error) {
	tool := &models.Tool{}

	err := t.db.WithContext(t.ctx).First(tool, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load tool")
	}
	return tool, nil
}

type CreateRequest struct {
	GroupID     string         `json:"group_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

func (t *toolService) Create(req *CreateRequest) (*models.Tool, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	tool := &models.Tool{
		ID:          uuid.New(),
		GroupID:     req.GroupID,
		Name:        req.Name,
		Description: req.Description,
		Enabled:     enabled,
		Config:      req.Config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := t.db.WithContext(t.ctx).Create(tool).Error; err != nil {
		if db.IsConstraintViolation(err) {
			return nil, errors.Errorf("tool %q already exists", req.Name)
		}
		return nil, errors.Wrap(err, "create tool")
	}
	return tool, nil
}

type UpdateRequest struct {
	Description *string        `json:"description,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

func (t *toolService) Update(id uuid.UUID, req *UpdateRequest) (*models.Tool, error) {
	tool, err := t.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Description != nil {
		tool.Description = *req.Description
	}
	if req.Config != nil {
		tool.Config = req.Config
	}
	tool.UpdatedAt = time.Now().UTC()

	if err := t.db.WithContext(t.ctx).Save(tool).Error; err != nil {
		return nil, errors.Wrap(err, "update tool")
	}
	return tool, nil
}

func (t *toolService) Toggle(id uuid.UUID, enabled bool) (*models.Tool, error) {
	tool, err := t.Get(id)
	if err != nil {
		return nil, err
	}

	tool.Enabled = enabled
	tool.UpdatedAt = time.Now().UTC()

	if err := t.db.WithContext(t.ctx).
		Model(tool).
		Updates(map[string]any{"enabled": enabled, "updated_at": tool.UpdatedAt}).Error; err != nil {
		return nil, errors.Wrap(err, "toggle tool")
	}
	return tool, nil
}

func (t *toolService) Delete(id uuid.UUID) error {
	result := t.db.WithContext(t.ctx).Delete(&models.Tool{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete tool")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
