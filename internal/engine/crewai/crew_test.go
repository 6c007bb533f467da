package crewai

import (
	"context"
	"testing"

	"github.com/murtihash94/kasal/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAgentsYAML = `
researcher:
  role: Research Analyst
  goal: Find facts about {topic}
  backstory: Veteran analyst
writer:
  role: Technical Writer
  goal: Write the report
  backstory: Former journalist
`

const testTasksYAML = `
research:
  description: Research {topic} thoroughly
  expected_output: Bullet points
  agent: researcher
draft:
  description: Draft the report
  agent: writer
review:
  description: Review the draft
  agent: writer
`

func TestBuildCrewOrderingAndInterpolation(t *testing.T) {
	builder := newTestBuilder(t)

	crew, err := builder.BuildCrew(context.Background(), &engine.CrewConfig{
		AgentsYAML: testAgentsYAML,
		TasksYAML:  testTasksYAML,
		Inputs:     map[string]string{"topic": "quantum computing"},
	})

	require.NoError(t, err)
	require.Len(t, crew.Agents, 2)
	require.Len(t, crew.Tasks, 3)

	// Tasks run in declaration order.
	assert.Equal(t, "research", crew.Tasks[0].Key)
	assert.Equal(t, "draft", crew.Tasks[1].Key)
	assert.Equal(t, "review", crew.Tasks[2].Key)

	assert.Equal(t, "Research quantum computing thoroughly", crew.Tasks[0].Description)
	assert.Equal(t, "Find facts about quantum computing", crew.Agents["researcher"].Goal)
}

func TestBuildCrewUndefinedAgent(t *testing.T) {
	builder := newTestBuilder(t)

	_, err := builder.BuildCrew(context.Background(), &engine.CrewConfig{
		AgentsYAML: testAgentsYAML,
		TasksYAML: `
research:
  description: x
  agent: ghost
`,
	})

	require.EqualError(t, err, "Task research is assigned to undefined agent: ghost")
}

func TestBuildCrewModelOverride(t *testing.T) {
	builder := newTestBuilder(t)

	crew, err := builder.BuildCrew(context.Background(), &engine.CrewConfig{
		AgentsYAML: testAgentsYAML,
		TasksYAML:  testTasksYAML,
		Model:      "gpt-4o",
	})

	require.NoError(t, err)
	llm, ok := crew.Agents["researcher"].LLM.(*LLM)
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", llm.Model)
}

func TestBuildCrewRequiresSections(t *testing.T) {
	builder := newTestBuilder(t)
	ctx := context.Background()

	_, err := builder.BuildCrew(ctx, nil)
	require.Error(t, err)

	_, err = builder.BuildCrew(ctx, &engine.CrewConfig{TasksYAML: testTasksYAML})
	require.ErrorContains(t, err, "no agents")

	_, err = builder.BuildCrew(ctx, &engine.CrewConfig{AgentsYAML: testAgentsYAML})
	require.ErrorContains(t, err, "no tasks")
}

func TestBuildCrewInvalidAgentFails(t *testing.T) {
	builder := newTestBuilder(t)

	_, err := builder.BuildCrew(context.Background(), &engine.CrewConfig{
		AgentsYAML: `
broken:
  role: Analyst
`,
		TasksYAML: `
t1:
  description: x
  agent: broken
`,
	})

	require.ErrorContains(t, err, "build agent broken")
}
