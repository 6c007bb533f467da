package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/jsonmap"
	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no schedule matches the given id.
var ErrNotFound = errors.New("schedule not found")

type Schedule interface {
	WithDatabase(*gorm.DB) Schedule
	List(*ListRequest) (models.Schedules, error)
	Get(uuid.UUID) (*models.Schedule, error)
	Create(*CreateRequest) (*models.Schedule, error)
	Update(uuid.UUID, *UpdateRequest) (*models.Schedule, error)
	Toggle(uuid.UUID) (*models.Schedule, error)
	Delete(uuid.UUID) error
	Due(time.Time) (models.Schedules, error)
	MarkRun(uuid.UUID, time.Time) error
}

type scheduleService struct {
	ctx context.Context
	db  *gorm.DB
}

func Service(ctx context.Context) Schedule {
	return &scheduleService{
		ctx: ctx,
		db:  db.Connection(),
	}
}

func (s *scheduleService) WithDatabase(conn *gorm.DB) Schedule {
	s.db = conn
	return s
}

// Parse validates a five-field cron expression and returns its
// schedule.
func Parse(expression string) (cron.Schedule, error) {
	parser := cron.NewParser(
		cron.Minute |
			cron.Hour |
			cron.Dom |
			cron.Month |
			cron.Dow,
	)

	sched, err := parser.Parse(expression)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid cron expression %q", expression)
	}
	return sched, nil
}

type ListRequest struct {
	GroupID string
	CrewID  *uuid.UUID
	Enabled *bool
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

func (s *scheduleService) List(req *ListRequest) (models.Schedules, error) {
	var (
		schedules = make(models.Schedules, 0)
		q         = s.db.WithContext(s.ctx)
	)

	if req.GroupID != "" {
		q = q.Where("group_id = ?", req.GroupID)
	}

	if req.CrewID != nil {
		q = q.Where("crew_id = ?", *req.CrewID)
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

	return schedules, q.Find(&schedules).Error
}

func (s *scheduleService) Get(id uuid.UUID) (*models.Schedule, error) {
	schedule := &models.Schedule{}

	err := s.db.WithContext(s.ctx).First(schedule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "load schedule")
	}
	return schedule, nil
}

type CreateRequest struct {
	GroupID        string         `json:"group_id,omitempty"`
	Name           string         `json:"name"`
	CrewID         uuid.UUID      `json:"crew_id"`
	CronExpression string         `json:"cron_expression"`
	Enabled        *bool          `json:"enabled,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
}

func (s *scheduleService) Create(req *CreateRequest) (*models.Schedule, error) {
	if req.Name == "" {
		return nil, errors.New("name is required")
	}

	sched, err := Parse(req.CronExpression)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(s.ctx).First(&models.Crew{}, "id = ?", req.CrewID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Errorf("crew %s does not exist", req.CrewID)
		}
		return nil, errors.Wrap(err, "verify crew")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	schedule := &models.Schedule{
		ID:             uuid.New(),
		GroupID:        req.GroupID,
		Name:           req.Name,
		CrewID:         req.CrewID,
		CronExpression: req.CronExpression,
		Enabled:        enabled,
		Inputs:         jsonmap.FromAnyMap(req.Inputs),
		NextRunAt:      &next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.db.WithContext(s.ctx).Create(schedule).Error; err != nil {
		return nil, errors.Wrap(err, "create schedule")
	}
	return schedule, nil
}

type UpdateRequest struct {
	Name           *string        `json:"name,omitempty"`
	CronExpression *string        `json:"cron_expression,omitempty"`
	Inputs         map[string]any `json:"inputs,omitempty"`
}

func (s *scheduleService) Update(id uuid.UUID, req *UpdateRequest) (*models.Schedule, error) {
	schedule, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		schedule.Name = *req.Name
	}
	if req.CronExpression != nil {
		sched, err := Parse(*req.CronExpression)
		if err != nil {
			return nil, err
		}
		schedule.CronExpression = *req.CronExpression
		next := sched.Next(time.Now().UTC())
		schedule.NextRunAt = &next
	}
	if req.Inputs != nil {
		schedule.Inputs = jsonmap.FromAnyMap(req.Inputs)
	}
	schedule.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(schedule).Error; err != nil {
		return nil, errors.Wrap(err, "update schedule")
	}
	return schedule, nil
}

// Toggle flips the enabled flag, recomputing the next run when
// re-enabling so a long-disabled schedule does not fire
// immediately for every missed tick.
func (s *scheduleService) Toggle(id uuid.UUID) (*models.Schedule, error) {
	schedule, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	schedule.Enabled = !schedule.Enabled
	if schedule.Enabled {
		sched, err := Parse(schedule.CronExpression)
		if err != nil {
			return nil, err
		}
		next := sched.Next(time.Now().UTC())
		schedule.NextRunAt = &next
	}
	schedule.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(s.ctx).Save(schedule).Error; err != nil {
		return nil, errors.Wrap(err, "toggle schedule")
	}
	return schedule, nil
}

func (s *scheduleService) Delete(id uuid.UUID) error {
	result := s.db.WithContext(s.ctx).Delete(&models.Schedule{}, "id = ?", id)
	if result.Error != nil {
		return errors.Wrap(result.Error, "delete schedule")
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Due returns the enabled schedules whose next run is at or
// before now.
func (s *scheduleService) Due(now time.Time) (models.Schedules, error) {
	schedules := make(models.Schedules, 0)

	err := s.db.WithContext(s.ctx).
		Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Find(&schedules).Error
	return schedules, err
}

// MarkRun records that the schedule fired at ranAt and advances
// its next run.
func (s *scheduleService) MarkRun(id uuid.UUID, ranAt time.Time) error {
	schedule, err := s.Get(id)
	if err != nil {
		return err
	}

	sched, err := Parse(schedule.CronExpression)
	if err != nil {
		return err
	}

	next := sched.Next(ranAt)
	return errors.Wrap(
		s.db.WithContext(s.ctx).
			Model(schedule).
			Updates(map[string]any{
				"last_run_at": ranAt,
				"next_run_at": next,
				"updated_at":  time.Now().UTC(),
			}).Error,
		"mark schedule run",
	)
}
