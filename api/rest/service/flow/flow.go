package flow

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

// ErrNotFound is returned when no flow matches the given id.
var ErrNotFound = errors.New("flow not found")

type Flow interface {
	WithDatabase(*gorm.DB) Flow
	List(*ListRequest) (models.Flows, error)
	Get(uuid.UUID) (*models.Flow, error)
	Create(*CreateRequest) (*models.Flow, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Flow, error)
	Delete(uuid.UUID) error
}

type flowService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Flow {
	return &flowService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (s *flowService) WithDatabase(conn *gorm.DB) Flow {
	s.db = conn
	return s
}

type ListRequest struct {
	GroupID string
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (s *flowService) List(req *ListRequest) (models.Flows, error) {
	var (
		flows = make(models.Flows, 0)
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

	return flows, q.Find(&flows).Error
}

func (s *flowService) Get(id uuid.UUID) (*models.Flow, error) {
	flow := &models.Flow{}

	err := s.db.WithContext(s.ctx).First(flow, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load flow")
	}
	return flow, nil
}

type CreateRequest struct {
	GroupID    string          `json:"group_id,omitempty"`
	Name       string          `json:"name"`
	Nodes      json.RawMessage `json:"nodes"`
	Edges      json.RawMessage `json:"edges,omitempty"`
	FlowConfig json.RawMessage `json:"flow_config,omitempty"`
}

func (s *flowService) Create(req *CreateRequest) (*models.Flow, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}
	if err := validateGraph(req.Nodes, req.Edges, req.FlowConfig); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	flow := &models.Flow{
		ID:         uuid.New(),
		GroupID:    req.GroupID,
		Name:       req.Name,
		Nodes:      datatypes.JSON(req.Nodes),
		Edges:      datatypes.JSON(req.Edges),
		FlowConfig: datatypes.JSON(req.FlowConfig),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.db.WithContext(s.ctx).Create(flow).Error; err != nil {
		return nil, errors.Wrap(err, "create flow")
	}
	return flow, nil
}

type UpdateRequest struct {
	Name       *string         `json:"name,omitempty"`
	Nodes      json.RawMessage `json:"nodes,omitempty"`
	Edges      json.RawMessage `json:"edges,omitempty"`
	FlowConfig json.RawMessage `json:"flow_config,omitempty"`
}

func (s *flowService) Update(id uuid.UUID, req *UpdateRequest) (*models.Flow, error) {
	flow, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		flow.Name = *req.Name
	}
	if req.Nodes != nil {
		flow.Nodes = datatypes.JSON(req.Nodes)
	}
	if req.Edges != nil {
		flow.Edges = datatypes.JSON(req.Edges)
	}
	if req.FlowConfig != nil {
		flow.FlowConfig = datatypes.JSON(req.FlowConfig)
	}
	if err := validateGraph(json.RawMessage(flow.Nodes), json.RawMessage(flow.Edges), json.RawMessage(flow.FlowConfig)); err != nil {
		return nil, err
	}
	flow.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(flow).Error; err != nil {
		return nil, errors.Wrap(err, "update flow")
	}
	return flow, nil
}

func (s *flowService) Delete(id uuid.UUID) error {
	result := s.db.WithContext(s.ctx).Delete(&models.Flow{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete flow")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// validateGraph checks the stored shapes without interpreting
// them: nodes and edges must be JSON arrays and the flow config,
// when present, a JSON object. Topology errors surface at run
// time from the engine.
func validateGraph(nodes, edges, config json.RawMessage) error {
	var nodeList []map[string]any
	if err := json.Unmarshal(nodes, &nodeList); err != nil {
		return errors.Wrap(err, "parse nodes")
	}
	if len(nodeList) == 0 {
		return errors.New("nodes must contain at least one node")
	}

	if len(edges) > 0 {
		var edgeList []map[string]any
		if err := json.Unmarshal(edges, &edgeList); err != nil {
			return errors.Wrap(err, "parse edges")
		}
	}

	if len(config) > 0 {
		var cfg map[string]any
		if err := json.Unmarshal(config, &cfg); err != nil {
			return errors.Wrap(err, "parse flow_config")
		}
	}
	return nil
}
