package crewai

import (
	"context"
	"fmt"
	"strings"

	"github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/pkg/log"
	"gopkg.in/yaml.v3"
)

// Crew is a validated, fully materialized crew: agents keyed by
// their YAML key and tasks in declaration order.
type Crew struct {
	Agents   map[string]*Agent
	Tasks    []*Task
	Planning bool
	Model    string
}

// BuildCrew assembles a crew from its declarative config. Agent
// construction failures are fatal here (the crew cannot run
// without its agents); individual task construction failures
// skip the task.
func (b *Builder) BuildCrew(ctx context.Context, cfg *engine.CrewConfig) (*Crew, error) {
	if cfg == nil {
		return nil, fmt.Errorf("crew config is required")
	}

	agentSpecs := map[string]*AgentSpec{}
	if err := yaml.Unmarshal([]byte(cfg.AgentsYAML), &agentSpecs); err != nil {
		return nil, fmt.Errorf("parse agents yaml: %w", err)
	}
	if len(agentSpecs) == 0 {
		return nil, fmt.Errorf("crew config defines no agents")
	}

	taskKeys, taskSpecs, err := parseOrderedTasks(cfg.TasksYAML)
	if err != nil {
		return nil, err
	}
	if len(taskKeys) == 0 {
		return nil, fmt.Errorf("crew config defines no tasks")
	}

	crew := &Crew{
		Agents:   make(map[string]*Agent, len(agentSpecs)),
		Planning: cfg.Planning,
		Model:    cfg.Model,
	}

	for key, spec := range agentSpecs {
		interpolateAgent(spec, cfg.Inputs)

		if spec.LLM == nil && cfg.Model != "" {
			spec.LLM = cfg.Model
		}
		if spec.Name == "" {
			spec.Name = key
		}

		agent, err := b.BuildAgent(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", key, err)
		}
		crew.Agents[key] = agent
	}

	for _, key := range taskKeys {
		spec := taskSpecs[key]
		interpolateTask(spec, cfg.Inputs)

		agentKey := spec.Agent
		agent, ok := crew.Agents[agentKey]
		if !ok {
			return nil, fmt.Errorf("Task %s is assigned to undefined agent: %s", key, agentKey)
		}

		task := b.assembleCrewTask(key, spec, agent)
		if task == nil {
			log.Warn("skipping unbuildable crew task", "task", key)
			continue
		}

		crew.Tasks = append(crew.Tasks, task)
	}

	if len(crew.Tasks) == 0 {
		return nil, fmt.Errorf("no runnable tasks in crew config")
	}

	return crew, nil
}

// assembleCrewTask applies the shared task post-processing
// (coercions, markdown suffix, advanced flags) for the crew
// path, where the agent is already resolved by YAML key.
func (b *Builder) assembleCrewTask(key string, spec *TaskSpec, agent *Agent) *Task {
	if spec == nil || agent == nil {
		return nil
	}

	description := coerceString(spec.Description, "None")
	expectedOutput := coerceString(spec.ExpectedOutput, "")

	if spec.Markdown {
		description += markdownSuffix
		expectedOutput += markdownSuffix
	}

	name := spec.Name
	if name == "" {
		name = key
	}

	return &Task{
		Key:            key,
		Name:           name,
		Description:    description,
		ExpectedOutput: expectedOutput,
		Agent:          agent,
		AsyncExecution: spec.AsyncExecution,
		HumanInput:     spec.HumanInput,
	}
}

// TaskKeys returns the task names of a tasks mapping in
// declaration order, without building the tasks.
func TaskKeys(tasksYAML string) ([]string, error) {
	keys, _, err := parseOrderedTasks(tasksYAML)
	return keys, err
}

// parseOrderedTasks decodes the tasks mapping preserving
// declaration order, which defines sequential run order.
func parseOrderedTasks(tasksYAML string) ([]string, map[string]*TaskSpec, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(tasksYAML), &doc); err != nil {
		return nil, nil, fmt.Errorf("parse tasks yaml: %w", err)
	}

	if len(doc.Content) == 0 {
		return nil, map[string]*TaskSpec{}, nil
	}

	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("tasks yaml must be a mapping of task name to config")
	}

	keys := make([]string, 0, len(mapping.Content)/2)
	specs := make(map[string]*TaskSpec, len(mapping.Content)/2)

	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		spec := &TaskSpec{}
		if err := mapping.Content[i+1].Decode(spec); err != nil {
			return nil, nil, fmt.Errorf("parse task %s: %w", key, err)
		}
		keys = append(keys, key)
		specs[key] = spec
	}

	return keys, specs, nil
}

// interpolateAgent substitutes {variable} placeholders from the
// execution inputs into an agent's prose fields.
func interpolateAgent(spec *AgentSpec, inputs map[string]string) {
	spec.Role = interpolate(spec.Role, inputs)
	spec.Goal = interpolate(spec.Goal, inputs)
	spec.Backstory = interpolate(spec.Backstory, inputs)
}

func interpolateTask(spec *TaskSpec, inputs map[string]string) {
	if s, ok := spec.Description.(string); ok {
		spec.Description = interpolate(s, inputs)
	}
	if s, ok := spec.ExpectedOutput.(string); ok {
		spec.ExpectedOutput = interpolate(s, inputs)
	}
}

func interpolate(text string, inputs map[string]string) string {
	for key, value := range inputs {
		text = strings.ReplaceAll(text, "{"+key+"}", value)
	}
	return text
}
