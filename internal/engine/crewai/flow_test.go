package crewai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFlowSpec() *FlowSpec {
	return &FlowSpec{
		Agents: []map[string]any{
			{"name": "researcher", "role": "Research Analyst"},
			{"name": "writer", "role": "Technical Writer"},
		},
		Tasks: []map[string]any{
			{"name": "t1", "description": "research the topic", "agent": "researcher"},
			{"name": "t2", "description": "write the report", "agent": "writer"},
		},
		Flow: map[string]any{
			"type":  "sequential",
			"tasks": []any{"t1", "t2"},
		},
	}
}

func TestPrepareFlowValid(t *testing.T) {
	prepared, err := PrepareFlow(validFlowSpec())

	require.NoError(t, err)
	assert.Len(t, prepared.Agents, 2)
	assert.Len(t, prepared.Tasks, 2)
	assert.Equal(t, "sequential", prepared.Flow["type"])
}

func TestPrepareFlowMissingSections(t *testing.T) {
	spec := validFlowSpec()
	spec.Agents = nil
	_, err := PrepareFlow(spec)
	require.EqualError(t, err, "flow specification must include a non-empty agents section")

	spec = validFlowSpec()
	spec.Tasks = nil
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "flow specification must include a non-empty tasks section")

	spec = validFlowSpec()
	spec.Flow = nil
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "flow specification must include a non-empty flow section")
}

func TestPrepareFlowAgentValidation(t *testing.T) {
	spec := validFlowSpec()
	spec.Agents[1] = map[string]any{"role": "Technical Writer"}
	_, err := PrepareFlow(spec)
	require.EqualError(t, err, "Agent at index 1 must have a name")

	spec = validFlowSpec()
	spec.Agents[0] = map[string]any{"name": "researcher"}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Agent researcher must have a role")
}

func TestPrepareFlowTaskValidation(t *testing.T) {
	spec := validFlowSpec()
	spec.Tasks[0] = map[string]any{"description": "x", "agent": "researcher"}
	_, err := PrepareFlow(spec)
	require.EqualError(t, err, "Task at index 0 must have a name")

	spec = validFlowSpec()
	spec.Tasks[0] = map[string]any{"name": "t1", "agent": "researcher"}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Task t1 must have a description")

	spec = validFlowSpec()
	spec.Tasks[0] = map[string]any{"name": "t1", "description": "x"}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Task t1 must have an agent")

	spec = validFlowSpec()
	spec.Tasks[0] = map[string]any{"name": "t1", "description": "x", "agent": "ghost"}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Task t1 is assigned to undefined agent: ghost")
}

func TestPrepareFlowInvalidType(t *testing.T) {
	spec := validFlowSpec()
	spec.Flow = map[string]any{"type": "circular"}

	_, err := PrepareFlow(spec)
	require.EqualError(t, err, "Invalid flow type: circular")
}

func TestPrepareFlowSequentialTopology(t *testing.T) {
	spec := validFlowSpec()
	spec.Flow = map[string]any{"type": "sequential"}
	_, err := PrepareFlow(spec)
	require.EqualError(t, err, "Sequential flow must define a non-empty tasks list")

	spec = validFlowSpec()
	spec.Flow = map[string]any{"type": "sequential", "tasks": []any{"t1", "missing"}}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Sequential flow references unknown task: missing")
}

func TestPrepareFlowParallelTopology(t *testing.T) {
	spec := validFlowSpec()
	spec.Flow = map[string]any{
		"type":           "parallel",
		"parallel_tasks": []any{[]any{"t1", "t2"}},
	}
	_, err := PrepareFlow(spec)
	require.NoError(t, err)

	spec = validFlowSpec()
	spec.Flow = map[string]any{
		"type":           "parallel",
		"parallel_tasks": []any{"t1"},
	}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Parallel flow group at index 0 must be a list")
}

func TestPrepareFlowConditionalTopology(t *testing.T) {
	spec := validFlowSpec()
	spec.Flow = map[string]any{
		"type": "conditional",
		"conditional_tasks": map[string]any{
			"default": []any{"t1"},
			"deep":    []any{"t2"},
		},
	}
	_, err := PrepareFlow(spec)
	require.NoError(t, err)

	spec = validFlowSpec()
	spec.Flow = map[string]any{
		"type":              "conditional",
		"conditional_tasks": map[string]any{"default": "t1"},
	}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Conditional flow branch default must map to a task list")

	spec = validFlowSpec()
	spec.Flow = map[string]any{
		"type":              "conditional",
		"conditional_tasks": map[string]any{"default": []any{"ghost"}},
	}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Conditional flow references unknown task: ghost")

	// Two branches, no route and no default: nothing would run.
	spec = validFlowSpec()
	spec.Flow = map[string]any{
		"type": "conditional",
		"conditional_tasks": map[string]any{
			"shallow": []any{"t1"},
			"deep":    []any{"t2"},
		},
	}
	_, err = PrepareFlow(spec)
	require.EqualError(t, err, "Conditional flow cannot resolve a branch: define a route or a default condition")
}

func TestPrepareFlowExtraTaskKeysPreserved(t *testing.T) {
	spec := validFlowSpec()
	spec.Tasks[0]["markdown"] = true
	spec.Tasks[0]["custom_key"] = "custom"

	prepared, err := PrepareFlow(spec)

	require.NoError(t, err)
	assert.Equal(t, true, prepared.Tasks["t1"]["markdown"])
	assert.Equal(t, "custom", prepared.Tasks["t1"]["custom_key"])
}
