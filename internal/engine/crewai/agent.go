package crewai

import (
	"context"
	"fmt"
	"strings"

	"github.com/murtihash94/kasal/internal/mcp"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/gorm"
)

// ValidationError reports a missing or empty required field on
// an agent, task or flow specification. Surfaced as 400 at the
// HTTP boundary.
type ValidationError struct {
	Entity string
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent %q missing required field %q", e.Entity, e.Field)
}

// AgentSpec is a stored agent definition as consumed by the
// builder: required identity fields plus optional tool list,
// LLM spec and pass-through advanced parameters.
type AgentSpec struct {
	Name      string `yaml:"name" json:"name"`
	Role      string `yaml:"role" json:"role"`
	Goal      string `yaml:"goal" json:"goal"`
	Backstory string `yaml:"backstory" json:"backstory"`

	// LLM is either a bare model name or a parameterized config
	// map carrying a "model" key.
	LLM any `yaml:"llm,omitempty" json:"llm,omitempty"`

	Tools            []ToolRef `yaml:"tools,omitempty" json:"tools,omitempty"`
	KnowledgeSources []string  `yaml:"knowledge_sources,omitempty" json:"knowledge_sources,omitempty"`

	Memory            *bool `yaml:"memory,omitempty" json:"memory,omitempty"`
	MaxIter           int   `yaml:"max_iter,omitempty" json:"max_iter,omitempty"`
	MaxRPM            int   `yaml:"max_rpm,omitempty" json:"max_rpm,omitempty"`
	MaxContextWindow  int   `yaml:"max_context_window_size,omitempty" json:"max_context_window_size,omitempty"`
	ReasoningAttempts int   `yaml:"reasoning_attempts,omitempty" json:"reasoning_attempts,omitempty"`

	SystemTemplate   string `yaml:"system_template,omitempty" json:"system_template,omitempty"`
	PromptTemplate   string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
	ResponseTemplate string `yaml:"response_template,omitempty" json:"response_template,omitempty"`
}

// Agent is a fully constructed agent: resolved LLM handle, live
// tool list (local and MCP-sourced) and advanced parameters.
type Agent struct {
	Name      string
	Role      string
	Goal      string
	Backstory string

	// LLM is a *LLM handle, or the raw model-name string when
	// resolution fell back.
	LLM   any
	Tools []Tool

	Memory            bool
	MaxIter           int
	MaxRPM            int
	MaxContextWindow  int
	ReasoningAttempts int

	SystemTemplate   string
	PromptTemplate   string
	ResponseTemplate string
}

// Builder materializes agents and tasks from stored
// specifications.
type Builder struct {
	db       *gorm.DB
	pool     *mcp.Pool
	resolver secret.Resolver
	factory  *ToolFactory

	// oboToken is forwarded to OBO-authenticated MCP servers.
	oboToken string
}

// NewBuilder constructs a Builder over the given collaborators.
func NewBuilder(db *gorm.DB, pool *mcp.Pool, resolver secret.Resolver, oboToken string) *Builder {
	return &Builder{
		db:       db,
		pool:     pool,
		resolver: resolver,
		factory:  NewToolFactory(db, resolver),
		oboToken: oboToken,
	}
}

// BuildAgent constructs a usable agent from a specification.
// Role, goal and backstory are required; LLM misconfiguration
// degrades gracefully; tool failures are isolated per tool and
// per MCP server.
func (b *Builder) BuildAgent(ctx context.Context, spec *AgentSpec) (*Agent, error) {
	if spec == nil {
		return nil, fmt.Errorf("agent spec is required")
	}

	name := spec.Name
	if name == "" {
		name = spec.Role
	}

	for field, value := range map[string]string{
		"role":      spec.Role,
		"goal":      spec.Goal,
		"backstory": spec.Backstory,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, &ValidationError{Entity: name, Field: field}
		}
	}

	log.Info("building agent", "name", name, "role", spec.Role)

	agent := &Agent{
		Name:              name,
		Role:              spec.Role,
		Goal:              spec.Goal,
		Backstory:         spec.Backstory,
		LLM:               resolveLLM(spec.LLM),
		MaxIter:           spec.MaxIter,
		MaxRPM:            spec.MaxRPM,
		MaxContextWindow:  spec.MaxContextWindow,
		ReasoningAttempts: spec.ReasoningAttempts,
		SystemTemplate:    spec.SystemTemplate,
		PromptTemplate:    spec.PromptTemplate,
		ResponseTemplate:  spec.ResponseTemplate,
	}

	if spec.Memory != nil {
		agent.Memory = *spec.Memory
	}

	// Phase one: explicit tool ids on the agent, resolved via
	// the tool factory. Individual failures are skipped.
	for _, ref := range spec.Tools {
		tool, err := b.factory.CreateByID(ctx, ref.ID, ref.ResultAsAnswer)
		if err != nil {
			log.Warn("skipping agent tool", "agent", name, "tool_id", ref.ID, "error", err)
			continue
		}
		agent.Tools = append(agent.Tools, tool)
		log.Debug("agent tool attached", "agent", name, "tool", tool.Name())
	}

	// Phase two: regardless of explicit tools, every enabled
	// MCP server contributes its remote tools when MCP
	// integration is globally on.
	if env.Variables().MCPEnabled {
		mcpTools := resolveMCPTools(ctx, b.db, b.pool, b.resolver, name, b.oboToken)
		agent.Tools = append(agent.Tools, mcpTools...)
		log.Info("mcp tools merged", "agent", name, "count", len(mcpTools))
	}

	return agent, nil
}
