package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/api/rest/service/schedule"
	"github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/internal/execution"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/jsonmap"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/datatypes"
)

// launcher is the slice of the execution service the scheduler
// needs to queue a crew run.
type launcher interface {
	PrepareAndRunCrew(req *execution.RunCrewRequest) (*models.Execution, error)
}

// store is the slice of the schedule service the scheduler
// sweeps against.
type store interface {
	Due(time.Time) (models.Schedules, error)
	MarkRun(uuid.UUID, time.Time) error
}

// Scheduler sweeps due cron schedules and queues an execution
// for each through the orchestrator.
type Scheduler struct {
	interval time.Duration
	store    store
	launcher launcher
	now      func() time.Time
}

type Options struct {
	Interval time.Duration
	Store    store
	Launcher launcher
	Now      func() time.Time
}

func New(ctx context.Context, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = env.Variables().SchedulerInterval
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Store == nil {
		opts.Store = schedule.Service(ctx)
	}
	if opts.Launcher == nil {
		opts.Launcher = execution.Service(ctx)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Scheduler{
		interval: opts.Interval,
		store:    opts.Store,
		launcher: opts.Launcher,
		now:      opts.Now,
	}
}

// Start sweeps until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	log.Info("scheduler started", "interval", s.interval)

	for {
		select {
		case <-t.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		}
	}
}

// Sweep queues every due schedule once. A failure to launch one
// schedule does not block the rest, and the schedule is
// advanced either way so a broken crew cannot wedge the loop.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now()

	due, err := s.store.Due(now)
	if err != nil {
		log.Error("schedule sweep failure", "error", err)
		return
	}

	if len(due) == 0 {
		return
	}
	log.Info("queueing due schedules", "count", len(due))

	for _, sched := range due {
		if err := ctx.Err(); err != nil {
			return
		}
		s.fire(sched, now)
	}
}

func (s *Scheduler) fire(sched *models.Schedule, now time.Time) {
	record, err := s.launcher.PrepareAndRunCrew(&execution.RunCrewRequest{
		GroupID: sched.GroupID,
		RunName: fmt.Sprintf("%s @ %s", sched.Name, now.Format(time.RFC3339)),
		CrewID:  sched.CrewID.String(),
		Config:  overrides(sched.Inputs),
	})
	if err != nil {
		log.Error(
			"scheduled execution failure",
			"schedule_id", sched.ID,
			"crew_id", sched.CrewID,
			"error", err,
		)
	} else {
		log.Info(
			"scheduled execution queued",
			"schedule_id", sched.ID,
			"job_id", record.JobID,
		)
	}

	if err := s.store.MarkRun(sched.ID, now); err != nil {
		log.Error("schedule advance failure", "schedule_id", sched.ID, "error", err)
	}
}

// overrides turns the schedule's stored inputs into a crew
// config overlay for the crew's defaults.
func overrides(inputs datatypes.JSONMap) *engine.CrewConfig {
	if len(inputs) == 0 {
		return nil
	}

	return &engine.CrewConfig{Inputs: jsonmap.ToStringMap(inputs)}
}
