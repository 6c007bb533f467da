package crewai

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAgent(t *testing.T, b *Builder) *models.Agent {
	t.Helper()
	record := &models.Agent{
		ID:        uuid.New(),
		Name:      "researcher",
		Role:      "Research Analyst",
		Goal:      "Find facts",
		Backstory: "Veteran analyst",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, b.db.Create(record).Error)
	return record
}

func TestBuildTaskDirectAgentID(t *testing.T) {
	builder := newTestBuilder(t)
	record := seedAgent(t, builder)

	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:          "t1",
		Name:        "research",
		Description: "research the topic",
		AgentID:     record.ID.String(),
	}, nil, nil)

	require.NotNil(t, task)
	assert.Equal(t, "t1", task.Key)
	assert.Equal(t, "research the topic", task.Description)
	require.NotNil(t, task.Agent)
	assert.Equal(t, "researcher", task.Agent.Name)
}

func TestBuildTaskAgentFromFlowEdge(t *testing.T) {
	builder := newTestBuilder(t)
	record := seedAgent(t, builder)

	flow := &FlowContext{
		Edges: []Edge{
			{Source: "agent-" + record.ID.String(), Target: "task-t1"},
		},
	}

	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:          "t1",
		Name:        "research",
		Description: "research the topic",
	}, flow, nil)

	require.NotNil(t, task)
	assert.Equal(t, "researcher", task.Agent.Name)
}

func TestBuildTaskNilWithoutAgent(t *testing.T) {
	builder := newTestBuilder(t)

	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:          "t1",
		Name:        "orphan",
		Description: "no agent anywhere",
	}, &FlowContext{}, nil)

	assert.Nil(t, task)
}

func TestBuildTaskNilOnUnknownAgent(t *testing.T) {
	builder := newTestBuilder(t)

	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:          "t1",
		Name:        "research",
		Description: "x",
		AgentID:     uuid.New().String(),
	}, nil, nil)

	assert.Nil(t, task)
}

func TestBuildTaskMarkdownSuffix(t *testing.T) {
	builder := newTestBuilder(t)
	record := seedAgent(t, builder)

	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:             "t1",
		Name:           "research",
		Description:    "research the topic",
		ExpectedOutput: "a report",
		AgentID:        record.ID.String(),
		Markdown:       true,
	}, nil, nil)

	require.NotNil(t, task)
	assert.Contains(t, task.Description, "research the topic")
	assert.Contains(t, task.Description, markdownSuffix)
	assert.Contains(t, task.ExpectedOutput, markdownSuffix)
}

func TestBuildTaskCoercions(t *testing.T) {
	builder := newTestBuilder(t)
	record := seedAgent(t, builder)

	// Absent description becomes the literal "None"; a present
	// empty string is preserved.
	task := builder.BuildTask(context.Background(), &TaskSpec{
		ID:      "t1",
		Name:    "bare",
		AgentID: record.ID.String(),
	}, nil, nil)
	require.NotNil(t, task)
	assert.Equal(t, "None", task.Description)
	assert.Equal(t, "", task.ExpectedOutput)

	task = builder.BuildTask(context.Background(), &TaskSpec{
		ID:          "t2",
		Name:        "empty",
		Description: "",
		AgentID:     record.ID.String(),
	}, nil, nil)
	require.NotNil(t, task)
	assert.Equal(t, "", task.Description)
}

func TestParseEdgesShapes(t *testing.T) {
	edges, err := ParseEdges(`[{"source":"agent-a","target":"task-t"}]`)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "agent-a", edges[0].Source)

	edges, err = ParseEdges([]any{
		map[string]any{"source": "agent-a", "target": "task-t"},
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edges, err = ParseEdges(nil)
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = ParseEdges("{broken")
	require.Error(t, err)
}

func TestParseToolIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseToolIDs([]string{"a", "b"}))
	assert.Equal(t, []string{"a"}, parseToolIDs(`["a"]`))
	assert.Equal(t, []string{"a"}, parseToolIDs([]any{"a", 7}))
	assert.Nil(t, parseToolIDs(""))
	assert.Nil(t, parseToolIDs("not json"))
	assert.Nil(t, parseToolIDs(nil))
}
