package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound distinguishes a missing record from an internal
// database failure; callers map it to 404 at the HTTP boundary.
var ErrNotFound = errors.New("record not found")

// Tracking persists execution and task progress. Writes arrive
// from the engine's synchronous callbacks via detached
// goroutines, so every method must be safe for concurrent use.
type Tracking interface {
	WithDatabase(*gorm.DB) Tracking
	GetJobStatus(jobID string) (*models.Execution, error)
	CreateTaskStatus(req *CreateTaskStatusRequest) (*models.TaskStatus, error)
	UpdateTaskStatus(req *UpdateTaskStatusRequest) (*models.TaskStatus, error)
	GetTaskStatus(jobID, taskKey string) (*models.TaskStatus, error)
	ListTaskStatuses(jobID string) (models.TaskStatuses, error)
	CreateTaskStatusesForJob(jobID string, taskKeys []string, agents map[string]string) (models.TaskStatuses, error)
	RecordError(jobID, taskKey, errorType, message string) error
	ListTraces(jobID string) (models.ExecutionTraces, error)
	Callbacks() *TaskCallbacks
}

type trackingService struct {
	ctx context.Context
	db  *gorm.DB
}

// Service returns a tracking service bound to the context, using
// the process database connection.
func Service(ctx context.Context) Tracking {
	return &trackingService{ctx: ctx, db: db.Connection()}
}

// ServiceWithDatabase returns a tracking service adopting a
// caller-held connection, for callers already holding one.
func ServiceWithDatabase(ctx context.Context, conn *gorm.DB) Tracking {
	return &trackingService{ctx: ctx, db: conn}
}

func (t *trackingService) WithDatabase(conn *gorm.DB) Tracking {
	t.db = conn
	return t
}

// GetJobStatus returns the execution row for a job id,
// distinguishing absence from database failure.
func (t *trackingService) GetJobStatus(jobID string) (*models.Execution, error) {
	execution := &models.Execution{}

	err := t.db.WithContext(t.ctx).
		Preload("Tasks").
		First(execution, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load execution")
	}

	return execution, nil
}

type CreateTaskStatusRequest struct {
	JobID     string
	TaskKey   string
	Status    models.TaskStatusState
	AgentName string
}

func (t *trackingService) CreateTaskStatus(req *CreateTaskStatusRequest) (*models.TaskStatus, error) {
	status := req.Status
	if status == "" {
		status = models.TaskStateRunning
	}

	now := time.Now().UTC()
	record := &models.TaskStatus{
		ID:        uuid.New(),
		JobID:     req.JobID,
		TaskKey:   req.TaskKey,
		Status:    string(status),
		AgentName: req.AgentName,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.db.WithContext(t.ctx).Create(record).Error; err != nil {
		return nil, errors.Wrap(err, "create task status")
	}

	return record, nil
}

type UpdateTaskStatusRequest struct {
	JobID   string
	TaskKey string
	Status  models.TaskStatusState
	Output  string
	Error   string
}

// UpdateTaskStatus moves a task to a new state. An unknown
// (job, task) pair is not an error: the update is simply
// dropped and both return values are nil.
func (t *trackingService) UpdateTaskStatus(req *UpdateTaskStatusRequest) (*models.TaskStatus, error) {
	record := &models.TaskStatus{}

	err := t.db.WithContext(t.ctx).
		First(record, "job_id = ? AND task_key = ?", req.JobID, req.TaskKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load task status")
	}

	now := time.Now().UTC()
	record.Status = string(req.Status)
	record.UpdatedAt = now
	if req.Output != "" {
		record.Output = req.Output
	}
	if req.Error != "" {
		record.Error = req.Error
	}
	if req.Status == models.TaskStateCompleted || req.Status == models.TaskStateFailed {
		record.CompletedAt = &now
	}

	if err := t.db.WithContext(t.ctx).Save(record).Error; err != nil {
		return nil, errors.Wrap(err, "update task status")
	}

	return record, nil
}

func (t *trackingService) GetTaskStatus(jobID, taskKey string) (*models.TaskStatus, error) {
	record := &models.TaskStatus{}

	err := t.db.WithContext(t.ctx).
		First(record, "job_id = ? AND task_key = ?", jobID, taskKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load task status")
	}

	return record, nil
}

func (t *trackingService) ListTaskStatuses(jobID string) (models.TaskStatuses, error) {
	statuses := make(models.TaskStatuses, 0)

	err := t.db.WithContext(t.ctx).
		Where("job_id = ?", jobID).
		Order("started_at asc").
		Find(&statuses).Error
	if err != nil {
		return nil, errors.Wrap(err, "list task statuses")
	}

	return statuses, nil
}

// CreateTaskStatusesForJob seeds a running row per task key up
// front so clients polling the job immediately see its task
// breakdown.
func (t *trackingService) CreateTaskStatusesForJob(jobID string, taskKeys []string, agents map[string]string) (models.TaskStatuses, error) {
	created := make(models.TaskStatuses, 0, len(taskKeys))

	for _, key := range taskKeys {
		record, err := t.CreateTaskStatus(&CreateTaskStatusRequest{
			JobID:     jobID,
			TaskKey:   key,
			Status:    models.TaskStateRunning,
			AgentName: agents[key],
		})
		if err != nil {
			return created, err
		}
		created = append(created, record)
	}

	return created, nil
}

// RecordError appends an error trace row for a failed task.
func (t *trackingService) RecordError(jobID, taskKey, errorType, message string) error {
	trace := &models.ErrorTrace{
		ID:           uuid.New(),
		JobID:        jobID,
		TaskKey:      taskKey,
		ErrorType:    errorType,
		ErrorMessage: message,
		CreatedAt:    time.Now().UTC(),
	}

	return errors.Wrap(t.db.WithContext(t.ctx).Create(trace).Error, "record error trace")
}
