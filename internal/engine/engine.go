package engine

import (
	"context"
	"time"

	"github.com/murtihash94/kasal/internal/models"
)

// Kind distinguishes the two execution paths.
type Kind string

const (
	KindCrew Kind = "crew"
	KindFlow Kind = "flow"
)

// CrewConfig is the declarative input to a crew execution.
type CrewConfig struct {
	AgentsYAML string            `json:"agents_yaml"`
	TasksYAML  string            `json:"tasks_yaml"`
	Inputs     map[string]string `json:"inputs,omitempty"`
	Planning   bool              `json:"planning,omitempty"`
	Model      string            `json:"model,omitempty"`
}

// FlowPayload is the declarative input to a flow execution.
// Edges may be a JSON-encoded string or a native slice; the
// engine accepts both.
type FlowPayload struct {
	Nodes      []map[string]any `json:"nodes,omitempty"`
	Edges      any              `json:"edges,omitempty"`
	FlowConfig map[string]any   `json:"flow_config,omitempty"`
}

// Request bundles everything an engine needs to run one
// execution.
type Request struct {
	ExecutionID string
	GroupID     string
	RunName     string
	// OBOToken is the user token forwarded from the inbound
	// request, consumed by OBO-authenticated MCP servers.
	OBOToken string
	Kind     Kind
	Crew     *CrewConfig
	Flow     *FlowPayload
}

// Ack is the engine's immediate acknowledgment of a launched
// execution; the run itself continues in the background.
type Ack struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
}

// StatusReport is the engine's view of one execution.
type StatusReport struct {
	ExecutionID string                 `json:"execution_id"`
	Status      models.ExecutionStatus `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Result      any                    `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// Engine runs crew and flow executions. CrewAI is the concrete
// implementation; the orchestrator only sees this contract.
type Engine interface {
	// Ready blocks until the engine's internal initialization
	// finishes, or the context expires.
	Ready(ctx context.Context) error
	Run(ctx context.Context, req *Request) (*Ack, error)
	Status(ctx context.Context, executionID string) (*StatusReport, bool)
	Cancel(ctx context.Context, executionID string) bool
}
