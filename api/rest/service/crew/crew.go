package crew

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/jsonmap"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no crew matches the given id.
var ErrNotFound = errors.New("crew not found")

type Crew interface {
	WithDatabase(*gorm.DB) Crew
	List(*ListRequest) (models.Crews, error)
	Get(uuid.UUID) (*models.Crew, error)
	Create(*CreateRequest) (*models.Crew, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Crew, error)
	Delete(uuid.UUID) error
}

type crewService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Crew {
	return &crewService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (s *crewService) WithDatabase(conn *gorm.DB) Crew {
	s.db = conn
	return s
}

type ListRequest struct {
	GroupID string
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (s *crewService) List(req *ListRequest) (models.Crews, error) {
	var (
		crews = make(models.Crews, 0)
		q     = s.db.WithContext(s.ctx)
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

	return crews, q.Find(&crews).Error
}

func (s *crewService) Get(id uuid.UUID) (*models.Crew, error) {
	crew := &models.Crew{}

	err := s.db.WithContext(s.ctx).First(crew, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load crew")
	}
	return crew, nil
}

type CreateRequest struct {
	GroupID    string         `json:"group_id,omitempty"`
	Name       string         `json:"name"`
	AgentsYAML string         `json:"agents_yaml"`
	TasksYAML  string         `json:"tasks_yaml"`
	Planning   bool           `json:"planning,omitempty"`
	Model      string         `json:"model,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

func (s *crewService) Create(req *CreateRequest) (*models.Crew, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if err := validateYAML(req.AgentsYAML, req.TasksYAML); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	crew := &models.Crew{
		ID:         uuid.New(),
		GroupID:    req.GroupID,
		Name:       req.Name,
		AgentsYAML: req.AgentsYAML,
		TasksYAML:  req.TasksYAML,
		Planning:   req.Planning,
		Model:      req.Model,
		Inputs:     jsonmap.FromAnyMap(req.Inputs),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.WithContext(s.ctx).Create(crew).Error; err != nil {
		return nil, errors.Wrap(err, "create crew")
	}
	return crew, nil
}

type UpdateRequest struct {
	Name       *string        `json:"name,omitempty"`
	AgentsYAML *string        `json:"agents_yaml,omitempty"`
	TasksYAML  *string        `json:"tasks_yaml,omitempty"`
	Planning   *bool          `json:"planning,omitempty"`
	Model      *string        `json:"model,omitempty"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

func (s *crewService) Update(id uuid.UUID, req *UpdateRequest) (*models.Crew, error) {
	crew, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		crew.Name = *req.Name
	}
	if req.AgentsYAML != nil {
		crew.AgentsYAML = *req.AgentsYAML
	}
	if req.TasksYAML != nil {
		crew.TasksYAML = *req.TasksYAML
	}
	if err := validateYAML(crew.AgentsYAML, crew.TasksYAML); err != nil {
		return nil, err
	}
	if req.Planning != nil {
		crew.Planning = *req.Planning
	}
	if req.Model != nil {
		crew.Model = *req.Model
	}
	if req.Inputs != nil {
		crew.Inputs = jsonmap.FromAnyMap(req.Inputs)
	}
	crew.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(crew).Error; err != nil {
		return nil, errors.Wrap(err, "update crew")
	}
	return crew, nil
}

func (s *crewService) Delete(id uuid.UUID) error {
	result := s.db.WithContext(s.ctx).Delete(&models.Crew{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete crew")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// validateYAML rejects definitions the engine could never build:
// both documents must parse as non-empty mappings.
func validateYAML(agentsYAML, tasksYAML string) error {
	agents := map[string]any{}
	if err := yaml.Unmarshal([]byte(agentsYAML), &agents); err != nil {
		return errors.Wrap(err, "parse agents_yaml")
	}
	if len(agents) == 0 {
		return errors.New("agents_yaml must define at least one agent")
	}

	tasks := map[string]any{}
	if err := yaml.Unmarshal([]byte(tasksYAML), &tasks); err != nil {
		return errors.Wrap(err, "parse tasks_yaml")
	}
	if len(tasks) == 0 {
		return errors.New("tasks_yaml must define at least one task")
	}
	return nil
}
