package crewai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/databricks"
	"github.com/murtihash94/kasal/internal/mcp"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/gorm"
)

// Tool is a live tool instance attached to an agent.
type Tool interface {
	Name() string
	Description() string
	// ResultAsAnswer marks the tool's output as the task's final
	// answer, short-circuiting further iterations.
	ResultAsAnswer() bool
	Run(ctx context.Context, input string) (string, error)
}

// ToolRef is one entry of an agent's explicit tool list: an id
// plus the per-tool result_as_answer flag.
type ToolRef struct {
	ID             string `json:"id"`
	ResultAsAnswer bool   `json:"result_as_answer,omitempty"`
}

// ToolFactory materializes live tool instances from stored tool
// registrations and the builtin registry.
type ToolFactory struct {
	db       *gorm.DB
	resolver secret.Resolver
}

// NewToolFactory builds a factory over the given database.
func NewToolFactory(db *gorm.DB, resolver secret.Resolver) *ToolFactory {
	return &ToolFactory{db: db, resolver: resolver}
}

// CreateByID resolves a stored tool id to its name and then to
// a live instance.
func (f *ToolFactory) CreateByID(ctx context.Context, id string, resultAsAnswer bool) (Tool, error) {
	toolID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid tool id %q: %w", id, err)
	}

	record := &models.Tool{}
	if err := f.db.WithContext(ctx).First(record, "id = ?", toolID).Error; err != nil {
		return nil, fmt.Errorf("tool %s: %w", id, err)
	}
	if !record.Enabled {
		return nil, fmt.Errorf("tool %s is disabled", record.Name)
	}

	return f.CreateByName(ctx, record, resultAsAnswer)
}

// CreateByName materializes a tool from its stored record.
func (f *ToolFactory) CreateByName(ctx context.Context, record *models.Tool, resultAsAnswer bool) (Tool, error) {
	switch record.Name {
	case "GenieTool":
		return f.genieTool(ctx, record, resultAsAnswer)
	default:
		return nil, fmt.Errorf("unknown tool implementation %q", record.Name)
	}
}

func (f *ToolFactory) genieTool(ctx context.Context, record *models.Tool, resultAsAnswer bool) (Tool, error) {
	vars := env.Variables()

	host, _ := record.Config["workspace_url"].(string)
	if host == "" {
		host = vars.DatabricksHost
	}

	spaceID, _ := record.Config["space_id"].(string)

	token, err := secret.ResolveValue(ctx, f.resolver, vars.DatabricksTokenRef)
	if err != nil {
		return nil, fmt.Errorf("resolve databricks token: %w", err)
	}

	client, err := databricks.New(host, token)
	if err != nil {
		return nil, err
	}

	genie, err := databricks.NewGenie(client, spaceID)
	if err != nil {
		return nil, err
	}

	return &genieTool{
		genie:          genie,
		description:    record.Description,
		resultAsAnswer: resultAsAnswer,
	}, nil
}

type genieTool struct {
	genie          *databricks.GenieClient
	description    string
	resultAsAnswer bool
}

func (t *genieTool) Name() string        { return "GenieTool" }
func (t *genieTool) Description() string { return t.description }
func (t *genieTool) ResultAsAnswer() bool {
	return t.resultAsAnswer
}

func (t *genieTool) Run(ctx context.Context, input string) (string, error) {
	return t.genie.Ask(ctx, input)
}

// mcpTool wraps one remote MCP tool behind the Tool interface.
// The name carries the "{server}_{tool}" prefix to avoid
// collisions across servers.
type mcpTool struct {
	name        string
	description string
	remote      string
	adapter     *mcp.Adapter
}

func (t *mcpTool) Name() string         { return t.name }
func (t *mcpTool) Description() string  { return t.description }
func (t *mcpTool) ResultAsAnswer() bool { return false }

func (t *mcpTool) Run(ctx context.Context, input string) (string, error) {
	return t.adapter.CallTool(ctx, t.remote, input)
}

// prefixToolName applies the "{server}_{tool}" rename, skipping
// tools already so prefixed.
func prefixToolName(serverName, toolName string) string {
	prefix := serverName + "_"
	if strings.HasPrefix(toolName, prefix) {
		return toolName
	}
	return prefix + toolName
}

// resolveMCPTools enumerates every enabled MCP server and
// collects its exposed tools. A failure against one server is
// logged and skipped; it never aborts agent construction or
// affects other servers.
func resolveMCPTools(ctx context.Context, db *gorm.DB, pool *mcp.Pool, resolver secret.Resolver, agentKey, oboToken string) []Tool {
	servers := models.MCPServers{}
	if err := db.WithContext(ctx).Where("enabled = ?", true).Find(&servers).Error; err != nil {
		log.Error("failed to list mcp servers", "error", err)
		return nil
	}

	tools := make([]Tool, 0)

	for _, server := range servers {
		adapter, err := pool.Get(ctx, mcp.Key(agentKey, server), server, mcp.ConnectOptions{
			Resolver: resolver,
			OBOToken: oboToken,
		})
		if err != nil {
			log.Warn("skipping mcp server", "server", server.Name, "error", err)
			continue
		}

		for _, def := range adapter.Tools() {
			tools = append(tools, &mcpTool{
				name:        prefixToolName(server.Name, def.Name),
				description: def.Description,
				remote:      def.Name,
				adapter:     adapter,
			})
		}

		log.Debug("mcp tools resolved", "server", server.Name, "count", len(adapter.Tools()))
	}

	return tools
}
