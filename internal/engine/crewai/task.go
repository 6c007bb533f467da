package crewai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/log"
)

// markdownSuffix is appended to a task's description and
// expected output when its markdown flag is set.
const markdownSuffix = "\n\nFormat your final answer in well-structured markdown."

// TaskSpec is a stored task definition as consumed by the
// builder.
type TaskSpec struct {
	ID             string `yaml:"id,omitempty" json:"id,omitempty"`
	Name           string `yaml:"name" json:"name"`
	Description    any    `yaml:"description,omitempty" json:"description,omitempty"`
	ExpectedOutput any    `yaml:"expected_output,omitempty" json:"expected_output,omitempty"`
	AgentID        string `yaml:"agent_id,omitempty" json:"agent_id,omitempty"`
	Agent          string `yaml:"agent,omitempty" json:"agent,omitempty"`

	// Tools is a list of tool ids, or a JSON-encoded string
	// containing such a list.
	Tools any `yaml:"tools,omitempty" json:"tools,omitempty"`

	Markdown       bool `yaml:"markdown,omitempty" json:"markdown,omitempty"`
	AsyncExecution bool `yaml:"async_execution,omitempty" json:"async_execution,omitempty"`
	HumanInput     bool `yaml:"human_input,omitempty" json:"human_input,omitempty"`
}

// Task is a constructed task bound to its agent.
type Task struct {
	Key            string
	Name           string
	Description    string
	ExpectedOutput string
	Agent          *Agent
	AsyncExecution bool
	HumanInput     bool

	outputCallback func(output string)
}

// Edge is one flow-graph edge. Node ids follow the
// "agent-{id}" / "task-{id}" convention.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// FlowContext carries the flow graph data available during task
// resolution.
type FlowContext struct {
	Nodes []map[string]any
	Edges []Edge
}

// ParseEdges accepts edges as a JSON-encoded string or a native
// structure and normalizes them.
func ParseEdges(raw any) ([]Edge, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		edges := []Edge{}
		if err := json.Unmarshal([]byte(v), &edges); err != nil {
			return nil, fmt.Errorf("parse edges: %w", err)
		}
		return edges, nil
	case []Edge:
		return v, nil
	case []byte:
		edges := []Edge{}
		if err := json.Unmarshal(v, &edges); err != nil {
			return nil, fmt.Errorf("parse edges: %w", err)
		}
		return edges, nil
	default:
		// Round-trip through JSON for []any / []map shapes.
		buf, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("parse edges: %w", err)
		}
		edges := []Edge{}
		if err := json.Unmarshal(buf, &edges); err != nil {
			return nil, fmt.Errorf("parse edges: %w", err)
		}
		return edges, nil
	}
}

// node returns the flow node with the given id, if any.
func (f *FlowContext) node(id string) map[string]any {
	if f == nil {
		return nil
	}
	for _, n := range f.Nodes {
		if nodeID, _ := n["id"].(string); nodeID == id {
			return n
		}
	}
	return nil
}

// agentForTask infers the owning agent id from an edge whose
// target is "task-{taskID}" and whose source is an agent node.
func (f *FlowContext) agentForTask(taskID string) string {
	if f == nil {
		return ""
	}
	target := "task-" + taskID
	for _, e := range f.Edges {
		if e.Target == target && strings.HasPrefix(e.Source, "agent-") {
			return strings.TrimPrefix(e.Source, "agent-")
		}
	}
	return ""
}

// BuildTask constructs a task bound to its agent and tools. Any
// failure returns nil: the task could not be built and callers
// skip it; sibling tasks still attempt to build.
func (b *Builder) BuildTask(ctx context.Context, spec *TaskSpec, flow *FlowContext, outputCallback func(string)) *Task {
	if spec == nil {
		return nil
	}

	agent := b.resolveTaskAgent(ctx, spec, flow)
	if agent == nil {
		log.Warn("task has no resolvable agent, skipping", "task", spec.Name)
		return nil
	}

	b.configureTaskTools(ctx, spec, flow, agent)

	description := coerceString(spec.Description, "None")
	expectedOutput := coerceString(spec.ExpectedOutput, "")

	if spec.Markdown {
		description += markdownSuffix
		expectedOutput += markdownSuffix
	}

	key := spec.ID
	if key == "" {
		key = spec.Name
	}

	return &Task{
		Key:            key,
		Name:           spec.Name,
		Description:    description,
		ExpectedOutput: expectedOutput,
		Agent:          agent,
		AsyncExecution: spec.AsyncExecution,
		HumanInput:     spec.HumanInput,
		outputCallback: outputCallback,
	}
}

// resolveTaskAgent resolves the owning agent: direct agent_id
// first, then flow-edge inference, else nil.
func (b *Builder) resolveTaskAgent(ctx context.Context, spec *TaskSpec, flow *FlowContext) *Agent {
	agentID := spec.AgentID
	if agentID == "" && flow != nil {
		agentID = flow.agentForTask(spec.ID)
	}

	if agentID == "" {
		return nil
	}

	agent, err := b.buildAgentByID(ctx, agentID)
	if err != nil {
		log.Warn("failed to resolve task agent", "task", spec.Name, "agent_id", agentID, "error", err)
		return nil
	}

	return agent
}

func (b *Builder) buildAgentByID(ctx context.Context, id string) (*Agent, error) {
	agentID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid agent id %q: %w", id, err)
	}

	record := &models.Agent{}
	if err := b.db.WithContext(ctx).First(record, "id = ?", agentID).Error; err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}

	spec := &AgentSpec{
		Name:      record.Name,
		Role:      record.Role,
		Goal:      record.Goal,
		Backstory: record.Backstory,
	}

	if len(record.LLM) > 0 {
		var llmSpec any
		if err := json.Unmarshal(record.LLM, &llmSpec); err == nil {
			spec.LLM = llmSpec
		}
	}

	if len(record.ToolIDs) > 0 {
		refs := []ToolRef{}
		if err := json.Unmarshal(record.ToolIDs, &refs); err == nil {
			spec.Tools = refs
		}
	}

	return b.BuildAgent(ctx, spec)
}

// configureTaskTools applies the task's tool overrides in
// priority order: explicit tools field, then flow-node data,
// else the agent's own tools stand.
func (b *Builder) configureTaskTools(ctx context.Context, spec *TaskSpec, flow *FlowContext, agent *Agent) {
	ids := parseToolIDs(spec.Tools)

	if len(ids) == 0 && flow != nil {
		if node := flow.node("task-" + spec.ID); node != nil {
			if data, ok := node["data"].(map[string]any); ok {
				ids = parseToolIDs(data["tools"])
			}
		}
	}

	if len(ids) == 0 {
		return
	}

	tools := make([]Tool, 0, len(ids))
	for _, id := range ids {
		tool, err := b.factory.CreateByID(ctx, id, false)
		if err != nil {
			log.Warn("skipping task tool", "task", spec.Name, "tool_id", id, "error", err)
			continue
		}
		tools = append(tools, tool)
	}

	agent.Tools = tools
}

// parseToolIDs accepts a list of ids or a JSON-encoded string
// containing one.
func parseToolIDs(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return v
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		ids := []string{}
		if err := json.Unmarshal([]byte(v), &ids); err != nil {
			log.Warn("unparseable task tools field", "value", v, "error", err)
			return nil
		}
		return ids
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	default:
		return nil
	}
}

// coerceString renders a value as a string, substituting
// fallback only when the value is absent entirely. An absent
// description deliberately becomes the literal "None".
func coerceString(value any, fallback string) string {
	switch v := value.(type) {
	case nil:
		return fallback
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
