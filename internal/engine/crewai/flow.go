package crewai

import (
	"fmt"
	"strings"
)

// FlowSpec is the declarative input to a flow execution:
// agents, tasks and a topology descriptor.
type FlowSpec struct {
	Agents    []map[string]any `json:"agents"`
	Tasks     []map[string]any `json:"tasks"`
	Flow      map[string]any   `json:"flow"`
	OutputDir string           `json:"output_dir,omitempty"`
}

// PreparedFlow is the validated assembly plan: name-keyed agent
// and task configs (task extras preserved verbatim), the
// original flow block and the output directory.
type PreparedFlow struct {
	Agents    map[string]map[string]any `json:"agents"`
	Tasks     map[string]map[string]any `json:"tasks"`
	Flow      map[string]any            `json:"flow"`
	OutputDir string                    `json:"output_dir,omitempty"`
}

// flowTypes enumerates the supported topologies.
var flowTypes = map[string]struct{}{
	"sequential":  {},
	"parallel":    {},
	"conditional": {},
}

// PrepareFlow validates a flow specification and builds the
// dependency-checked assembly plan. The first violated
// invariant fails immediately with an error naming the
// offending entity; there are no retries.
func PrepareFlow(spec *FlowSpec) (*PreparedFlow, error) {
	if spec == nil {
		return nil, fmt.Errorf("flow specification is required")
	}

	if len(spec.Agents) == 0 {
		return nil, fmt.Errorf("flow specification must include a non-empty agents section")
	}
	if len(spec.Tasks) == 0 {
		return nil, fmt.Errorf("flow specification must include a non-empty tasks section")
	}
	if len(spec.Flow) == 0 {
		return nil, fmt.Errorf("flow specification must include a non-empty flow section")
	}

	agents := make(map[string]map[string]any, len(spec.Agents))
	for i, agent := range spec.Agents {
		name := stringField(agent, "name")
		if name == "" {
			return nil, fmt.Errorf("Agent at index %d must have a name", i)
		}
		if stringField(agent, "role") == "" {
			return nil, fmt.Errorf("Agent %s must have a role", name)
		}
		agents[name] = agent
	}

	tasks := make(map[string]map[string]any, len(spec.Tasks))
	for i, task := range spec.Tasks {
		name := stringField(task, "name")
		if name == "" {
			return nil, fmt.Errorf("Task at index %d must have a name", i)
		}
		if stringField(task, "description") == "" {
			return nil, fmt.Errorf("Task %s must have a description", name)
		}

		agentName := stringField(task, "agent")
		if agentName == "" {
			return nil, fmt.Errorf("Task %s must have an agent", name)
		}
		if _, ok := agents[agentName]; !ok {
			return nil, fmt.Errorf("Task %s is assigned to undefined agent: %s", name, agentName)
		}

		// Extra keys beyond the required ones ride along
		// untouched.
		tasks[name] = task
	}

	if err := validateTopology(spec.Flow, tasks); err != nil {
		return nil, err
	}

	return &PreparedFlow{
		Agents:    agents,
		Tasks:     tasks,
		Flow:      spec.Flow,
		OutputDir: spec.OutputDir,
	}, nil
}

func validateTopology(flow map[string]any, tasks map[string]map[string]any) error {
	flowType, _ := flow["type"].(string)
	if _, ok := flowTypes[flowType]; !ok {
		return fmt.Errorf("Invalid flow type: %v", flow["type"])
	}

	switch flowType {
	case "sequential":
		ordered := anySlice(flow["tasks"])
		if len(ordered) == 0 {
			return fmt.Errorf("Sequential flow must define a non-empty tasks list")
		}
		for _, item := range ordered {
			name, _ := item.(string)
			if _, ok := tasks[name]; !ok {
				return fmt.Errorf("Sequential flow references unknown task: %v", item)
			}
		}

	case "parallel":
		groups := anySlice(flow["parallel_tasks"])
		if len(groups) == 0 {
			return fmt.Errorf("Parallel flow must define a non-empty parallel_tasks list")
		}
		for i, group := range groups {
			inner := anySlice(group)
			if inner == nil {
				return fmt.Errorf("Parallel flow group at index %d must be a list", i)
			}
			for _, item := range inner {
				name, _ := item.(string)
				if _, ok := tasks[name]; !ok {
					return fmt.Errorf("Parallel flow references unknown task: %v", item)
				}
			}
		}

	case "conditional":
		conditions, _ := flow["conditional_tasks"].(map[string]any)
		if len(conditions) == 0 {
			return fmt.Errorf("Conditional flow must define a non-empty conditional_tasks mapping")
		}
		for condition, value := range conditions {
			inner := anySlice(value)
			if inner == nil {
				return fmt.Errorf("Conditional flow branch %s must map to a task list", condition)
			}
			for _, item := range inner {
				name, _ := item.(string)
				if _, ok := tasks[name]; !ok {
					return fmt.Errorf("Conditional flow references unknown task: %v", item)
				}
			}
		}
		if conditionalRoute(flow, conditions) == "" {
			return fmt.Errorf("Conditional flow cannot resolve a branch: define a route or a default condition")
		}
	}

	return nil
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return strings.TrimSpace(value)
}

// anySlice normalizes []any / []string shapes, returning nil
// when the value is not a list at all.
func anySlice(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}
