package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *agentService {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	return &agentService{ctx: context.Background(), db: conn}
}

func TestCreateRequiresNameAndRole(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Create(&CreateRequest{Role: "researcher"})
	require.ErrorContains(t, err, "name is required")

	_, err = svc.Create(&CreateRequest{Name: "alice"})
	require.ErrorContains(t, err, "role is required")
}

func TestCreateGetRoundTrip(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{
		GroupID:   "g1",
		Name:      "alice",
		Role:      "researcher",
		Goal:      "find things",
		Backstory: "curious",
		LLM:       json.RawMessage(`"gpt-4o-mini"`),
		ToolIDs:   []string{"t1", "t2"},
		Config:    map[string]any{"max_iter": 5},
	})
	require.NoError(t, err)

	loaded, err := svc.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.Name)
	assert.Equal(t, "researcher", loaded.Role)

	var ids []string
	require.NoError(t, json.Unmarshal(loaded.ToolIDs, &ids))
	assert.Equal(t, []string{"t1", "t2"}, ids)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePartial(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{Name: "alice", Role: "researcher", Goal: "dig"})
	require.NoError(t, err)

	goal := "dig deeper"
	updated, err := svc.Update(created.ID, &UpdateRequest{Goal: &goal})
	require.NoError(t, err)

	// Untouched fields survive a partial update.
	assert.Equal(t, "alice", updated.Name)
	assert.Equal(t, "researcher", updated.Role)
	assert.Equal(t, "dig deeper", updated.Goal)
	assert.True(t, updated.UpdatedAt.After(created.CreatedAt) || updated.UpdatedAt.Equal(created.CreatedAt))

	_, err = svc.Update(uuid.New(), &UpdateRequest{Goal: &goal})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	svc := newTestService(t)

	for _, spec := range []struct{ name, group string }{
		{"a", "g1"}, {"b", "g1"}, {"c", "g2"},
	} {
		_, err := svc.Create(&CreateRequest{GroupID: spec.group, Name: spec.name, Role: "r"})
		require.NoError(t, err)
	}

	all, err := svc.List(&ListRequest{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	grouped, err := svc.List(&ListRequest{GroupID: "g1"})
	require.NoError(t, err)
	assert.Len(t, grouped, 2)

	paged, err := svc.List(&ListRequest{Limit: 1, Offset: 1, OrderBy: []string{"name asc"}})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].Name)
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Create(&CreateRequest{Name: "alice", Role: "r"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(created.ID))
	require.ErrorIs(t, svc.Delete(created.ID), ErrNotFound)
}
