package execution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/internal/engine/crewai"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/tracking"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/jsonmap"
	"github.com/murtihash94/kasal/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound marks a lookup against an unknown execution.
var ErrNotFound = errors.New("execution not found")

// ErrFlowSourceRequired rejects a flow run with neither a stored
// flow id nor an inline payload.
var ErrFlowSourceRequired = errors.New("Either flow_id or nodes must be provided")

// Execution orchestrates crew and flow runs: it persists the
// history row, registers the run, hands it to the engine and
// keeps status flowing back into both stores.
type Execution interface {
	WithDatabase(*gorm.DB) Execution
	WithEngine(engine.Engine) Execution
	RunCrewExecution(req *RunCrewRequest) (*models.Execution, error)
	PrepareAndRunCrew(req *RunCrewRequest) (*models.Execution, error)
	RunFlowExecution(req *RunFlowRequest) (*models.Execution, error)
	GetExecutionStatus(jobID string) (*State, error)
	CancelExecution(jobID string) bool
	List(req *ListRequest) (models.Executions, error)
	Delete(jobID string) error
	DeleteAll() (int64, error)
}

type executionService struct {
	ctx      context.Context
	db       *gorm.DB
	engine   engine.Engine
	registry *Registry
}

// Service returns an execution service bound to the context.
func Service(ctx context.Context) Execution {
	return &executionService{
		ctx:      ctx,
		db:       db.Connection(),
		engine:   selectEngine(),
		registry: DefaultRegistry(),
	}
}

// selectEngine picks the engine implementation from the
// configured name. CrewAI is the only one today; the switch is
// where the next engine plugs in.
func selectEngine() engine.Engine {
	switch env.Variables().ExecutionEngine {
	case "", "crewai":
		return crewai.Default()
	default:
		log.Warn("unknown execution engine, using crewai", "engine", env.Variables().ExecutionEngine)
		return crewai.Default()
	}
}

func (s *executionService) WithDatabase(conn *gorm.DB) Execution {
	s.db = conn
	return s
}

func (s *executionService) WithEngine(e engine.Engine) Execution {
	s.engine = e
	return s
}

// RunCrewRequest launches one crew execution. JobID is optional
// and generated when absent.
type RunCrewRequest struct {
	JobID    string             `json:"job_id,omitempty"`
	GroupID  string             `json:"group_id,omitempty"`
	RunName  string             `json:"run_name,omitempty"`
	OBOToken string             `json:"-"`
	CrewID   string             `json:"crew_id,omitempty"`
	Config   *engine.CrewConfig `json:"config,omitempty"`
}

// RunCrewExecution persists the history row, registers the run
// and launches it on the engine. The call returns as soon as
// the engine acknowledges; progress flows back asynchronously.
func (s *executionService) RunCrewExecution(req *RunCrewRequest) (*models.Execution, error) {
	config := req.Config
	if req.CrewID != "" {
		loaded, err := s.loadCrewConfig(req.CrewID)
		if err != nil {
			return nil, err
		}
		config = mergeCrewConfig(loaded, req.Config)
	}
	if config == nil || config.AgentsYAML == "" || config.TasksYAML == "" {
		return nil, errors.New("crew config with agents_yaml and tasks_yaml is required")
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	record, err := s.createRecord(jobID, req.GroupID, req.RunName, engine.KindCrew, config.Inputs)
	if err != nil {
		return nil, err
	}

	if err := s.launch(&engine.Request{
		ExecutionID: jobID,
		GroupID:     req.GroupID,
		RunName:     req.RunName,
		OBOToken:    req.OBOToken,
		Kind:        engine.KindCrew,
		Crew:        config,
	}); err != nil {
		return nil, err
	}

	return record, nil
}

// PrepareAndRunCrew validates the crew config and seeds the
// task status rows before launching, so pollers see the full
// task breakdown immediately.
func (s *executionService) PrepareAndRunCrew(req *RunCrewRequest) (*models.Execution, error) {
	if req.Config == nil && req.CrewID == "" {
		return nil, errors.New("crew config with agents_yaml and tasks_yaml is required")
	}

	record, err := s.RunCrewExecution(req)
	if err != nil {
		return nil, err
	}

	if req.Config != nil {
		keys := taskKeysFromYAML(req.Config.TasksYAML)
		if len(keys) > 0 {
			svc := tracking.ServiceWithDatabase(s.ctx, s.db)
			if _, err := svc.CreateTaskStatusesForJob(record.JobID, keys, nil); err != nil {
				log.Warn("task status pre-seed failed", "job_id", record.JobID, "error", err)
			}
		}
	}

	return record, nil
}

// RunFlowRequest launches one flow execution, either from a
// stored flow id or from inline nodes.
type RunFlowRequest struct {
	JobID    string              `json:"job_id,omitempty"`
	GroupID  string              `json:"group_id,omitempty"`
	RunName  string              `json:"run_name,omitempty"`
	OBOToken string              `json:"-"`
	FlowID   string              `json:"flow_id,omitempty"`
	Flow     *engine.FlowPayload `json:"flow,omitempty"`
}

func (s *executionService) RunFlowExecution(req *RunFlowRequest) (*models.Execution, error) {
	payload := req.Flow
	if req.FlowID == "" && (payload == nil || (len(payload.Nodes) == 0 && payload.FlowConfig == nil)) {
		return nil, ErrFlowSourceRequired
	}

	if req.FlowID != "" {
		loaded, err := s.loadFlowPayload(req.FlowID)
		if err != nil {
			return nil, err
		}
		payload = loaded
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	record, err := s.createRecord(jobID, req.GroupID, req.RunName, engine.KindFlow, nil)
	if err != nil {
		return nil, err
	}

	if err := s.launch(&engine.Request{
		ExecutionID: jobID,
		GroupID:     req.GroupID,
		RunName:     req.RunName,
		OBOToken:    req.OBOToken,
		Kind:        engine.KindFlow,
		Flow:        payload,
	}); err != nil {
		return nil, errors.Wrap(err, "Unexpected error in flow execution")
	}

	return record, nil
}

// GetExecutionStatus reads the run's current state: the
// registry's terminal cache first, then the live engine view,
// then the database for runs from previous processes. A
// non-terminal run the engine no longer knows degrades to
// unknown (nil state, nil error) rather than serving a stale
// snapshot.
func (s *executionService) GetExecutionStatus(jobID string) (*State, error) {
	if state, ok := s.registry.Get(jobID); ok {
		if state.Status.Terminal() {
			return state, nil
		}
		if report, live := s.engine.Status(s.ctx, jobID); live {
			s.registry.SetStatus(jobID, report.Status, report.Message, report.Result)
			if updated, ok := s.registry.Get(jobID); ok {
				return updated, nil
			}
		}
		return nil, nil
	}

	record := &models.Execution{}
	err := s.db.WithContext(s.ctx).First(record, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load execution")
	}

	return stateFromRecord(record), nil
}

// CancelExecution requests cancellation. Unknown executions
// return false.
func (s *executionService) CancelExecution(jobID string) bool {
	if _, ok := s.registry.Get(jobID); !ok {
		return false
	}

	if !s.engine.Cancel(s.ctx, jobID) {
		return false
	}

	s.syncStatus(jobID, models.ExecutionStatusCancelled, "execution cancelled", nil)
	return true
}

// ListRequest filters persisted execution history.
type ListRequest struct {
	GroupID string
	Status  string
	Limit   int
	Offset  int
}

func (s *executionService) List(req *ListRequest) (models.Executions, error) {
	executions := make(models.Executions, 0)
	q := s.db.WithContext(s.ctx).Order("created_at desc")

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
	}
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	if req.Limit > 0 {
		q = q.Limit(req.Limit)
	}
	if req.Offset > 0 {
		q = q.Offset(req.Offset)
	}

	if err := q.Find(&executions).Error; err != nil {
		return nil, errors.Wrap(err, "list executions")
	}
	return executions, nil
}

// Delete removes one history row and its task statuses, and
// evicts the registry entry.
func (s *executionService) Delete(jobID string) error {
	record := &models.Execution{}
	err := s.db.WithContext(s.ctx).First(record, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "load execution")
	}

	if err := s.db.WithContext(s.ctx).Where("job_id = ?", jobID).Delete(&models.TaskStatus{}).Error; err != nil {
		return errors.Wrap(err, "delete task statuses")
	}
	if err := s.db.WithContext(s.ctx).Delete(record).Error; err != nil {
		return errors.Wrap(err, "delete execution")
	}

	s.registry.Remove(jobID)
	return nil
}

// DeleteAll clears the whole execution history, returning the
// number of removed executions.
func (s *executionService) DeleteAll() (int64, error) {
	if err := s.db.WithContext(s.ctx).Where("1 = 1").Delete(&models.TaskStatus{}).Error; err != nil {
		return 0, errors.Wrap(err, "delete task statuses")
	}

	result := s.db.WithContext(s.ctx).Where("1 = 1").Delete(&models.Execution{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "delete executions")
	}

	for _, state := range s.registry.List() {
		s.registry.Remove(state.JobID)
	}

	return result.RowsAffected, nil
}

func (s *executionService) createRecord(jobID, groupID, runName string, kind engine.Kind, inputs map[string]string) (*models.Execution, error) {
	now := time.Now().UTC()
	record := &models.Execution{
		ID:        uuid.New(),
		JobID:     jobID,
		GroupID:   groupID,
		Kind:      string(kind),
		Status:    string(models.ExecutionStatusPending),
		RunName:   runName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(inputs) > 0 {
		record.Inputs = jsonmap.FromStringMap(inputs)
	}

	if err := s.db.WithContext(s.ctx).Create(record).Error; err != nil {
		if db.IsConstraintViolation(err) {
			return nil, errors.Errorf("execution %s already exists", jobID)
		}
		return nil, errors.Wrap(err, "create execution")
	}

	s.registry.Add(&State{
		JobID:     jobID,
		GroupID:   groupID,
		Kind:      kind,
		RunName:   runName,
		Status:    models.ExecutionStatusPending,
		CreatedAt: now,
	})

	return record, nil
}

func (s *executionService) launch(req *engine.Request) error {
	if err := s.engine.Ready(s.ctx); err != nil {
		s.syncStatus(req.ExecutionID, models.ExecutionStatusFailed, err.Error(), nil)
		return errors.Wrap(err, "engine not ready")
	}
	if _, err := s.engine.Run(s.ctx, req); err != nil {
		s.syncStatus(req.ExecutionID, models.ExecutionStatusFailed, err.Error(), nil)
		return err
	}
	go s.watch(req.ExecutionID)
	return nil
}

// watch follows a run on the engine until it reaches a terminal
// state, mirroring every transition into the registry and the
// history row.
func (s *executionService) watch(jobID string) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		report, ok := s.engine.Status(context.Background(), jobID)
		if !ok {
			return
		}

		s.syncStatus(jobID, report.Status, report.Message, report.Result)
		if report.Status.Terminal() {
			return
		}
	}
}

// syncStatus applies a status transition to the registry and,
// fire-and-forget, to the database row. Persistence failures
// are logged and dropped; the in-memory state is authoritative
// for a live process.
func (s *executionService) syncStatus(jobID string, status models.ExecutionStatus, message string, result any) {
	if !s.registry.SetStatus(jobID, status, message, result) {
		return
	}

	conn := s.db
	go func() {
		updates := map[string]any{
			"status":     string(status),
			"updated_at": time.Now().UTC(),
		}
		if message != "" {
			updates["message"] = message
		}
		if result != nil {
			if buf, err := json.Marshal(result); err == nil {
				updates["result"] = datatypes.JSON(buf)
			}
		}
		if status.Terminal() {
			updates["completed_at"] = time.Now().UTC()
		}

		err := conn.WithContext(context.Background()).
			Model(&models.Execution{}).
			Where("job_id = ?", jobID).
			Updates(updates).Error
		if err != nil {
			log.Error("execution status persist failed", "job_id", jobID, "status", status, "error", err)
		}
	}()
}

func (s *executionService) loadCrewConfig(crewID string) (*engine.CrewConfig, error) {
	id, err := uuid.Parse(crewID)
	if err != nil {
		return nil, errors.Errorf("invalid crew id %q", crewID)
	}

	crew := &models.Crew{}
	if err := s.db.WithContext(s.ctx).First(crew, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "load crew")
	}

	config := &engine.CrewConfig{
		AgentsYAML: crew.AgentsYAML,
		TasksYAML:  crew.TasksYAML,
		Planning:   crew.Planning,
		Model:      crew.Model,
	}
	if len(crew.Inputs) > 0 {
		config.Inputs = jsonmap.ToStringMap(crew.Inputs)
	}
	return config, nil
}

// mergeCrewConfig overlays request-supplied inputs onto a
// stored crew definition.
func mergeCrewConfig(base, override *engine.CrewConfig) *engine.CrewConfig {
	if override == nil {
		return base
	}
	merged := *base
	if len(override.Inputs) > 0 {
		if merged.Inputs == nil {
			merged.Inputs = map[string]string{}
		}
		for k, v := range override.Inputs {
			merged.Inputs[k] = v
		}
	}
	if override.Model != "" {
		merged.Model = override.Model
	}
	if override.Planning {
		merged.Planning = true
	}
	return &merged
}

func (s *executionService) loadFlowPayload(flowID string) (*engine.FlowPayload, error) {
	id, err := uuid.Parse(flowID)
	if err != nil {
		return nil, errors.Errorf("invalid flow id %q", flowID)
	}

	flow := &models.Flow{}
	if err := s.db.WithContext(s.ctx).First(flow, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "load flow")
	}

	payload := &engine.FlowPayload{}
	if len(flow.Nodes) > 0 {
		if err := json.Unmarshal(flow.Nodes, &payload.Nodes); err != nil {
			return nil, errors.Wrap(err, "parse flow nodes")
		}
	}
	if len(flow.Edges) > 0 {
		payload.Edges = string(flow.Edges)
	}
	if len(flow.FlowConfig) > 0 {
		if err := json.Unmarshal(flow.FlowConfig, &payload.FlowConfig); err != nil {
			return nil, errors.Wrap(err, "parse flow config")
		}
	}
	return payload, nil
}

func stateFromRecord(record *models.Execution) *State {
	state := &State{
		JobID:       record.JobID,
		GroupID:     record.GroupID,
		Kind:        engine.Kind(record.Kind),
		RunName:     record.RunName,
		Status:      models.ExecutionStatus(record.Status),
		Message:     record.Message,
		CreatedAt:   record.CreatedAt,
		CompletedAt: record.CompletedAt,
	}
	if len(record.Result) > 0 {
		var result any
		if err := json.Unmarshal(record.Result, &result); err == nil {
			state.Result = result
		}
	}
	return state
}

// taskKeysFromYAML extracts the task names from a tasks mapping
// without fully validating it; pre-seeding is best-effort.
func taskKeysFromYAML(tasksYAML string) []string {
	keys, err := crewai.TaskKeys(tasksYAML)
	if err != nil {
		return nil
	}
	return keys
}
