package tracking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *trackingService {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return &trackingService{ctx: context.Background(), db: conn}
}

func seedExecution(t *testing.T, svc *trackingService, jobID string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, svc.db.Create(&models.Execution{
		ID:        uuid.New(),
		JobID:     jobID,
		Kind:      "crew",
		Status:    string(models.ExecutionStatusRunning),
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)
}

func TestGetJobStatusNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetJobStatus("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceWithDatabaseAdoptsConnection(t *testing.T) {
	seeded := newTestService(t)
	seedExecution(t, seeded, "job-1")

	svc := ServiceWithDatabase(context.Background(), seeded.db)
	execution, err := svc.GetJobStatus("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", execution.JobID)
}

func TestGetJobStatusWithTasks(t *testing.T) {
	svc := newTestService(t)
	seedExecution(t, svc, "job-1")

	_, err := svc.CreateTaskStatus(&CreateTaskStatusRequest{
		JobID:     "job-1",
		TaskKey:   "t1",
		AgentName: "researcher",
	})
	require.NoError(t, err)

	execution, err := svc.GetJobStatus("job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", execution.JobID)
	require.Len(t, execution.Tasks, 1)
	assert.Equal(t, "t1", execution.Tasks[0].TaskKey)
	assert.Equal(t, string(models.TaskStateRunning), execution.Tasks[0].Status)
}

func TestUpdateTaskStatusUnknownPair(t *testing.T) {
	svc := newTestService(t)

	record, err := svc.UpdateTaskStatus(&UpdateTaskStatusRequest{
		JobID:   "job-1",
		TaskKey: "ghost",
		Status:  models.TaskStateCompleted,
	})

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestUpdateTaskStatusCompletes(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateTaskStatus(&CreateTaskStatusRequest{JobID: "job-1", TaskKey: "t1"})
	require.NoError(t, err)

	record, err := svc.UpdateTaskStatus(&UpdateTaskStatusRequest{
		JobID:   "job-1",
		TaskKey: "t1",
		Status:  models.TaskStateCompleted,
		Output:  "done",
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, string(models.TaskStateCompleted), record.Status)
	assert.Equal(t, "done", record.Output)
	require.NotNil(t, record.CompletedAt)
}

func TestCreateTaskStatusesForJob(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.CreateTaskStatusesForJob("job-1",
		[]string{"t1", "t2"},
		map[string]string{"t1": "researcher"})
	require.NoError(t, err)
	require.Len(t, created, 2)

	statuses, err := svc.ListTaskStatuses("job-1")
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "researcher", statuses[0].AgentName)
	assert.Equal(t, "", statuses[1].AgentName)
}

func TestCallbacksPersistLifecycle(t *testing.T) {
	svc := newTestService(t)
	callbacks := svc.Callbacks()

	callbacks.OnStart("job-1", "t1", "researcher")
	callbacks.Wait()

	record, err := svc.GetTaskStatus("job-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskStateRunning), record.Status)

	callbacks.OnEnd("job-1", "t1", "all done")
	callbacks.Wait()

	record, err = svc.GetTaskStatus("job-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskStateCompleted), record.Status)
	assert.Equal(t, "all done", record.Output)
}

func TestCallbacksRecordErrorTrace(t *testing.T) {
	svc := newTestService(t)
	callbacks := svc.Callbacks()

	_, err := svc.CreateTaskStatus(&CreateTaskStatusRequest{JobID: "job-1", TaskKey: "t1"})
	require.NoError(t, err)

	callbacks.OnError("job-1", "t1", fmt.Errorf("tool exploded"))
	callbacks.Wait()

	record, err := svc.GetTaskStatus("job-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, string(models.TaskStateFailed), record.Status)
	assert.Equal(t, "tool exploded", record.Error)

	traces := models.ErrorTraces{}
	require.NoError(t, svc.db.Find(&traces, "job_id = ?", "job-1").Error)
	require.Len(t, traces, 1)
	assert.Equal(t, "tool exploded", traces[0].ErrorMessage)
}

func TestCallbacksSwallowFailures(t *testing.T) {
	svc := newTestService(t)
	callbacks := svc.Callbacks()

	// Unknown pair: the update is dropped without error and the
	// start hook seeds the row instead.
	callbacks.OnEnd("job-1", "ghost", "output")
	callbacks.Wait()

	_, err := svc.GetTaskStatus("job-1", "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}
