package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	enginepkg "github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mockEngine acknowledges runs and reports a scripted terminal
// status.
type mockEngine struct {
	mu          sync.Mutex
	runCalls    int
	statusCalls int
	runErr      error
	readyErr    error
	finalStatus models.ExecutionStatus
	result      any
	reports     map[string]*enginepkg.StatusReport
}

func newMockEngine() *mockEngine {
	return &mockEngine{
		finalStatus: models.ExecutionStatusCompleted,
		result:      "done",
		reports:     map[string]*enginepkg.StatusReport{},
	}
}

func (m *mockEngine) Ready(ctx context.Context) error { return m.readyErr }

func (m *mockEngine) Run(ctx context.Context, req *enginepkg.Request) (*enginepkg.Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCalls++
	if m.runErr != nil {
		return nil, m.runErr
	}
	m.reports[req.ExecutionID] = &enginepkg.StatusReport{
		ExecutionID: req.ExecutionID,
		Status:      m.finalStatus,
		Result:      m.result,
		CreatedAt:   time.Now().UTC(),
	}
	return &enginepkg.Ack{ExecutionID: req.ExecutionID, Status: "pending"}, nil
}

func (m *mockEngine) Status(ctx context.Context, id string) (*enginepkg.StatusReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls++
	report, ok := m.reports[id]
	if !ok {
		return nil, false
	}
	copied := *report
	return &copied, true
}

func (m *mockEngine) Cancel(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[id]
	if !ok || report.Status.Terminal() {
		return false
	}
	report.Status = models.ExecutionStatusCancelled
	return true
}

func newTestService(t *testing.T) (*executionService, *mockEngine) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	mock := newMockEngine()
	return &executionService{
		ctx:      context.Background(),
		db:       conn,
		engine:   mock,
		registry: NewRegistry(),
	}, mock
}

func crewConfig() *enginepkg.CrewConfig {
	return &enginepkg.CrewConfig{
		AgentsYAML: "a1:\n  role: r\n  goal: g\n  backstory: b\n",
		TasksYAML:  "t1:\n  description: d\n  agent: a1\nt2:\n  description: d2\n  agent: a1\n",
	}
}

func TestRunCrewExecution(t *testing.T) {
	svc, mock := newTestService(t)

	record, err := svc.RunCrewExecution(&RunCrewRequest{Config: crewConfig()})
	require.NoError(t, err)
	assert.NotEmpty(t, record.JobID)
	assert.Equal(t, string(models.ExecutionStatusPending), record.Status)
	assert.Equal(t, 1, mock.runCalls)

	require.Eventually(t, func() bool {
		state, err := svc.GetExecutionStatus(record.JobID)
		return err == nil && state.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	// The history row converges too.
	require.Eventually(t, func() bool {
		stored := &models.Execution{}
		if err := svc.db.First(stored, "job_id = ?", record.JobID).Error; err != nil {
			return false
		}
		return stored.Status == string(models.ExecutionStatusCompleted) && stored.CompletedAt != nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunCrewExecutionRequiresConfig(t *testing.T) {
	svc, mock := newTestService(t)

	_, err := svc.RunCrewExecution(&RunCrewRequest{})
	require.ErrorContains(t, err, "agents_yaml")
	assert.Equal(t, 0, mock.runCalls)
}

func TestRunCrewExecutionDuplicateJobID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RunCrewExecution(&RunCrewRequest{JobID: "dup", Config: crewConfig()})
	require.NoError(t, err)

	_, err = svc.RunCrewExecution(&RunCrewRequest{JobID: "dup", Config: crewConfig()})
	require.ErrorContains(t, err, "already exists")
}

func TestRunCrewExecutionEngineFailure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.runErr = errors.New("engine offline")

	_, err := svc.RunCrewExecution(&RunCrewRequest{JobID: "j1", Config: crewConfig()})
	require.ErrorContains(t, err, "engine offline")

	state, err := svc.GetExecutionStatus("j1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, state.Status)
}

func TestRunCrewExecutionWaitsForEngineReady(t *testing.T) {
	svc, mock := newTestService(t)
	mock.readyErr = errors.New("initialization pending")

	_, err := svc.RunCrewExecution(&RunCrewRequest{JobID: "j1", Config: crewConfig()})
	require.ErrorContains(t, err, "engine not ready")

	// The engine is never asked to run an execution it could not
	// initialize for.
	assert.Zero(t, mock.runCalls)

	state, err := svc.GetExecutionStatus("j1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, state.Status)
}

func TestRunCrewExecutionFromStoredCrew(t *testing.T) {
	svc, mock := newTestService(t)

	crew := &models.Crew{
		ID:         uuid.New(),
		Name:       "research",
		AgentsYAML: crewConfig().AgentsYAML,
		TasksYAML:  crewConfig().TasksYAML,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, svc.db.Create(crew).Error)

	_, err := svc.RunCrewExecution(&RunCrewRequest{CrewID: crew.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.runCalls)

	_, err = svc.RunCrewExecution(&RunCrewRequest{CrewID: uuid.New().String()})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPrepareAndRunCrewSeedsTasks(t *testing.T) {
	svc, _ := newTestService(t)

	record, err := svc.PrepareAndRunCrew(&RunCrewRequest{Config: crewConfig()})
	require.NoError(t, err)

	statuses := models.TaskStatuses{}
	require.NoError(t, svc.db.Find(&statuses, "job_id = ?", record.JobID).Error)
	require.Len(t, statuses, 2)
	assert.Equal(t, "t1", statuses[0].TaskKey)
	assert.Equal(t, "t2", statuses[1].TaskKey)
}

func TestRunFlowExecutionRequiresInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RunFlowExecution(&RunFlowRequest{})
	require.EqualError(t, err, "Either flow_id or nodes must be provided")
}

func TestRunFlowExecutionEngineFailure(t *testing.T) {
	svc, mock := newTestService(t)
	mock.runErr = errors.New("engine offline")

	_, err := svc.RunFlowExecution(&RunFlowRequest{
		Flow: &enginepkg.FlowPayload{Nodes: []map[string]any{{"id": "task-t1"}}},
	})
	require.ErrorContains(t, err, "Unexpected error in flow execution")
}

func TestRunFlowExecutionFromStoredFlow(t *testing.T) {
	svc, mock := newTestService(t)

	flow := &models.Flow{
		ID:         uuid.New(),
		Name:       "pipeline",
		Nodes:      datatypes.JSON(`[{"id":"task-t1"}]`),
		Edges:      datatypes.JSON(`[{"source":"agent-a","target":"task-t1"}]`),
		FlowConfig: datatypes.JSON(`{"type":"sequential"}`),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, svc.db.Create(flow).Error)

	record, err := svc.RunFlowExecution(&RunFlowRequest{FlowID: flow.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, string(models.ExecutionStatusPending), record.Status)
	assert.Equal(t, 1, mock.runCalls)
}

func TestGetExecutionStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.GetExecutionStatus("ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetExecutionStatusTerminalSkipsEngine(t *testing.T) {
	svc, mock := newTestService(t)

	svc.registry.Add(&State{JobID: "j1", Status: models.ExecutionStatusRunning})
	svc.registry.SetStatus("j1", models.ExecutionStatusCompleted, "", "result")

	state, err := svc.GetExecutionStatus("j1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, state.Status)
	// Terminal results come from the cache; the engine is not
	// consulted.
	assert.Equal(t, 0, mock.statusCalls)
}

func TestGetExecutionStatusUnknownWhenEngineSilent(t *testing.T) {
	svc, mock := newTestService(t)

	svc.registry.Add(&State{JobID: "j1", Status: models.ExecutionStatusRunning})

	// A non-terminal run the engine no longer reports degrades
	// to unknown instead of serving the stale registry snapshot.
	state, err := svc.GetExecutionStatus("j1")
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Equal(t, 1, mock.statusCalls)
}

func TestGetExecutionStatusDatabaseFallback(t *testing.T) {
	svc, _ := newTestService(t)

	now := time.Now().UTC()
	require.NoError(t, svc.db.Create(&models.Execution{
		ID:        uuid.New(),
		JobID:     "old-run",
		Kind:      "crew",
		Status:    string(models.ExecutionStatusCompleted),
		Result:    datatypes.JSON(`{"answer":42}`),
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)

	state, err := svc.GetExecutionStatus("old-run")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, state.Status)
	assert.Equal(t, map[string]any{"answer": float64(42)}, state.Result)
}

func TestCancelExecution(t *testing.T) {
	svc, _ := newTestService(t)

	assert.False(t, svc.CancelExecution("ghost"))

	record, err := svc.RunCrewExecution(&RunCrewRequest{Config: crewConfig()})
	require.NoError(t, err)

	// The mock reports completed immediately, so cancellation
	// depends on whether the watcher already synced.
	if svc.CancelExecution(record.JobID) {
		state, err := svc.GetExecutionStatus(record.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusCancelled, state.Status)
	}
}

func TestCancelRunningExecution(t *testing.T) {
	svc, mock := newTestService(t)
	mock.finalStatus = models.ExecutionStatusRunning

	record, err := svc.RunCrewExecution(&RunCrewRequest{JobID: "j1", Config: crewConfig()})
	require.NoError(t, err)

	require.True(t, svc.CancelExecution(record.JobID))

	state, err := svc.GetExecutionStatus("j1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, state.Status)
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RunCrewExecution(&RunCrewRequest{JobID: "j1", GroupID: "g1", Config: crewConfig()})
	require.NoError(t, err)
	_, err = svc.RunCrewExecution(&RunCrewRequest{JobID: "j2", GroupID: "g2", Config: crewConfig()})
	require.NoError(t, err)

	all, err := svc.List(&ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	grouped, err := svc.List(&ListRequest{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, "j1", grouped[0].JobID)

	require.NoError(t, svc.Delete("j1"))
	require.ErrorIs(t, svc.Delete("j1"), ErrNotFound)
	_, ok := svc.registry.Get("j1")
	assert.False(t, ok)

	count, err := svc.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	remaining, err := svc.List(&ListRequest{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
