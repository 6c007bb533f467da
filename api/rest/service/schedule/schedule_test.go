package schedule

import (
	"context"
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

func newTestService(t *testing.T) *scheduleService {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return &scheduleService{ctx: context.Background(), db: conn}
}

func seedCrew(t *testing.T, svc *scheduleService) *models.Crew {
	t.Helper()

	crew := &models.Crew{
		ID:         uuid.New(),
		Name:       "nightly",
		AgentsYAML: "a: {role: r}",
		TasksYAML:  "t: {description: d, agent: a}",
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	require.NoError(t, svc.db.Create(crew).Error)
	return crew
}

func TestParse(t *testing.T) {
	sched, err := Parse("*/5 * * * *")
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 2, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC), sched.Next(now))

	_, err = Parse("every five minutes")
	require.ErrorContains(t, err, "invalid cron expression")

	// Six-field (seconds) expressions are not accepted.
	_, err = Parse("* * * * * *")
	require.Error(t, err)
}

func TestCreateComputesNextRun(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	created, err := svc.Create(&CreateRequest{
		Name:           "nightly run",
		CrewID:         crew.ID,
		CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)

	require.NotNil(t, created.NextRunAt)
	assert.True(t, created.NextRunAt.After(time.Now().UTC()))
	assert.True(t, created.Enabled)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	_, err := svc.Create(&CreateRequest{CrewID: crew.ID, CronExpression: "0 3 * * *"})
	require.ErrorContains(t, err, "name is required")

	_, err = svc.Create(&CreateRequest{Name: "s", CrewID: crew.ID, CronExpression: "bogus"})
	require.ErrorContains(t, err, "invalid cron expression")

	_, err = svc.Create(&CreateRequest{Name: "s", CrewID: uuid.New(), CronExpression: "0 3 * * *"})
	require.ErrorContains(t, err, "does not exist")
}

func TestDueAndMarkRun(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	created, err := svc.Create(&CreateRequest{
		Name:           "every minute",
		CrewID:         crew.ID,
		CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	due, err := svc.Due(time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)

	future := time.Now().UTC().Add(2 * time.Minute)
	due, err = svc.Due(future)
	require.NoError(t, err)
	require.Len(t, due, 1)

	require.NoError(t, svc.MarkRun(created.ID, future))

	loaded, err := svc.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastRunAt)
	require.NotNil(t, loaded.NextRunAt)
	assert.True(t, loaded.NextRunAt.After(future))

	// Advanced past the tick, so no longer due.
	due, err = svc.Due(future)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestToggleRecomputesNextRun(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	created, err := svc.Create(&CreateRequest{
		Name:           "hourly",
		CrewID:         crew.ID,
		CronExpression: "0 * * * *",
	})
	require.NoError(t, err)

	disabled, err := svc.Toggle(created.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	due, err := svc.Due(time.Now().UTC().Add(2 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	enabled, err := svc.Toggle(created.ID)
	require.NoError(t, err)
	assert.True(t, enabled.Enabled)
	require.NotNil(t, enabled.NextRunAt)
	assert.True(t, enabled.NextRunAt.After(time.Now().UTC()))
}

func TestUpdateCronRecomputes(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	created, err := svc.Create(&CreateRequest{
		Name:           "hourly",
		CrewID:         crew.ID,
		CronExpression: "0 * * * *",
	})
	require.NoError(t, err)
	before := *created.NextRunAt

	expr := "0 0 1 1 *"
	updated, err := svc.Update(created.ID, &UpdateRequest{CronExpression: &expr})
	require.NoError(t, err)
	require.NotNil(t, updated.NextRunAt)
	assert.NotEqual(t, before, *updated.NextRunAt)

	bad := "nope"
	_, err = svc.Update(created.ID, &UpdateRequest{CronExpression: &bad})
	require.ErrorContains(t, err, "invalid cron expression")
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	crew := seedCrew(t, svc)

	created, err := svc.Create(&CreateRequest{
		Name:           "hourly",
		CrewID:         crew.ID,
		CronExpression: "0 * * * *",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(created.ID))
	require.ErrorIs(t, svc.Delete(created.ID), ErrNotFound)
}
