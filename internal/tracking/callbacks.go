package tracking

import (
	"context"
	"sync"

	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/log"
)

// TaskCallbacks are the engine-facing lifecycle hooks. Each hook
// returns immediately and performs its database write in a
// detached goroutine: a slow or failing database never blocks or
// fails the execution itself.
type TaskCallbacks struct {
	OnStart func(jobID, taskKey, agentName string)
	OnEnd   func(jobID, taskKey, output string)
	OnError func(jobID, taskKey string, taskErr error)

	// wg lets tests wait for the detached writes to land.
	wg sync.WaitGroup
}

// Wait blocks until all spawned writes have finished.
func (c *TaskCallbacks) Wait() {
	c.wg.Wait()
}

// Callbacks builds the engine hook set. Each hook receives the
// job id per invocation, so one set serves every execution. The
// returned hooks swallow persistence errors after logging them.
func (t *trackingService) Callbacks() *TaskCallbacks {
	callbacks := &TaskCallbacks{}

	// Detached writes run on a background context so they
	// survive the request that launched the execution.
	background := &trackingService{ctx: context.Background(), db: t.db}

	callbacks.OnStart = func(jobID, taskKey, agentName string) {
		callbacks.wg.Add(1)
		go func() {
			defer callbacks.wg.Done()
			_, err := background.UpdateTaskStatus(&UpdateTaskStatusRequest{
				JobID:   jobID,
				TaskKey: taskKey,
				Status:  models.TaskStateRunning,
			})
			if err != nil {
				log.Error("task start tracking failed", "job_id", jobID, "task", taskKey, "error", err)
				return
			}
			// Seed the row when the run was not pre-seeded.
			if existing, _ := background.GetTaskStatus(jobID, taskKey); existing == nil {
				if _, err := background.CreateTaskStatus(&CreateTaskStatusRequest{
					JobID:     jobID,
					TaskKey:   taskKey,
					AgentName: agentName,
				}); err != nil {
					log.Error("task status creation failed", "job_id", jobID, "task", taskKey, "error", err)
				}
			}
		}()
	}

	callbacks.OnEnd = func(jobID, taskKey, output string) {
		callbacks.wg.Add(1)
		go func() {
			defer callbacks.wg.Done()
			_, err := background.UpdateTaskStatus(&UpdateTaskStatusRequest{
				JobID:   jobID,
				TaskKey: taskKey,
				Status:  models.TaskStateCompleted,
				Output:  output,
			})
			if err != nil {
				log.Error("task completion tracking failed", "job_id", jobID, "task", taskKey, "error", err)
			}
		}()
	}

	callbacks.OnError = func(jobID, taskKey string, taskErr error) {
		callbacks.wg.Add(1)
		go func() {
			defer callbacks.wg.Done()
			message := ""
			if taskErr != nil {
				message = taskErr.Error()
			}

			if _, err := background.UpdateTaskStatus(&UpdateTaskStatusRequest{
				JobID:   jobID,
				TaskKey: taskKey,
				Status:  models.TaskStateFailed,
				Error:   message,
			}); err != nil {
				log.Error("task failure tracking failed", "job_id", jobID, "task", taskKey, "error", err)
			}

			if err := background.RecordError(jobID, taskKey, "task_error", message); err != nil {
				log.Error("error trace write failed", "job_id", jobID, "task", taskKey, "error", err)
			}
		}()
	}

	return callbacks
}
