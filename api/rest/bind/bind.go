package bind

import (
	"github.com/labstack/echo/v4"
	agentctl "github.com/murtihash94/kasal/api/rest/controller/agent"
	crewctl "github.com/murtihash94/kasal/api/rest/controller/crew"
	eventctl "github.com/murtihash94/kasal/api/rest/controller/event"
	executionctl "github.com/murtihash94/kasal/api/rest/controller/execution"
	flowctl "github.com/murtihash94/kasal/api/rest/controller/flow"
	backendctl "github.com/murtihash94/kasal/api/rest/controller/memorybackend"
	mcpctl "github.com/murtihash94/kasal/api/rest/controller/mcpserver"
	schedulectl "github.com/murtihash94/kasal/api/rest/controller/schedule"
	taskctl "github.com/murtihash94/kasal/api/rest/controller/task"
	toolctl "github.com/murtihash94/kasal/api/rest/controller/tool"
	"github.com/murtihash94/kasal/internal/event"
)

func All(g *echo.Group) {
	// executions
	{
		g.POST("/executions", executionctl.Post)
		g.POST("/executions/flow", executionctl.PostFlow)
		g.GET("/executions", executionctl.List)
		g.GET("/executions/:id", executionctl.Get)
		g.POST("/executions/:id/cancel", executionctl.Cancel)
		g.GET("/executions/:id/tasks", executionctl.Tasks)
		g.GET("/executions/:id/traces", executionctl.Traces)
		g.DELETE("/executions/:id", executionctl.Delete)
		g.DELETE("/executions", executionctl.DeleteAll)
	}

	// memory backend
	{
		g.GET("/memory-backend/configs", backendctl.List)
		g.POST("/memory-backend/configs", backendctl.Post)
		g.GET("/memory-backend/configs/default", backendctl.GetDefault)
		g.GET("/memory-backend/configs/:id", backendctl.Get)
		g.PUT("/memory-backend/configs/:id", backendctl.Put)
		g.DELETE("/memory-backend/configs/:id", backendctl.Delete)
		g.POST("/memory-backend/configs/:id/set-default", backendctl.SetDefault)
		g.POST("/memory-backend/validate", backendctl.Validate)
		g.POST("/memory-backend/databricks/test-connection", backendctl.TestConnection)
		g.GET("/memory-backend/databricks/indexes", backendctl.Indexes)
		g.POST("/memory-backend/databricks/index", backendctl.CreateIndex)
		g.DELETE("/memory-backend/databricks/index", backendctl.DeleteIndex)
		g.POST("/memory-backend/databricks/one-click", backendctl.OneClick)
		g.GET("/memory-backend/databricks/verify", backendctl.Verify)
		g.GET("/memory-backend/databricks/endpoint-status", backendctl.EndpointStatus)
		g.DELETE("/memory-backend/databricks/configs", backendctl.DeleteConfigs)
		g.POST("/memory-backend/disable", backendctl.Disable)
		g.POST("/memory-backend/cleanup-disabled", backendctl.CleanupDisabled)
	}

	// agents
	{
		g.GET("/agents", agentctl.List)
		g.GET("/agents/:id", agentctl.Get)
		g.POST("/agents", agentctl.Post)
		g.PUT("/agents/:id", agentctl.Put)
		g.DELETE("/agents/:id", agentctl.Delete)
	}

	// tasks
	{
		g.GET("/tasks", taskctl.List)
		g.GET("/tasks/:id", taskctl.Get)
		g.POST("/tasks", taskctl.Post)
		g.PUT("/tasks/:id", taskctl.Put)
		g.DELETE("/tasks/:id", taskctl.Delete)
	}

	// tools
	{
		g.GET("/tools", toolctl.List)
		g.GET("/tools/:id", toolctl.Get)
		g.POST("/tools", toolctl.Post)
		g.PUT("/tools/:id", toolctl.Put)
		g.POST("/tools/:id/toggle", toolctl.Toggle)
		g.DELETE("/tools/:id", toolctl.Delete)
	}

	// crews
	{
		g.GET("/crews", crewctl.List)
		g.GET("/crews/:id", crewctl.Get)
		g.POST("/crews", crewctl.Post)
		g.PUT("/crews/:id", crewctl.Put)
		g.DELETE("/crews/:id", crewctl.Delete)
	}

	// flows
	{
		g.GET("/flows", flowctl.List)
		g.GET("/flows/:id", flowctl.Get)
		g.POST("/flows", flowctl.Post)
		g.PUT("/flows/:id", flowctl.Put)
		g.DELETE("/flows/:id", flowctl.Delete)
	}

	// mcp servers
	{
		g.GET("/mcp", mcpctl.List)
		g.GET("/mcp/:id", mcpctl.Get)
		g.POST("/mcp", mcpctl.Post)
		g.PUT("/mcp/:id", mcpctl.Put)
		g.POST("/mcp/:id/toggle", mcpctl.Toggle)
		g.DELETE("/mcp/:id", mcpctl.Delete)
	}

	// schedules
	{
		g.GET("/schedules", schedulectl.List)
		g.GET("/schedules/:id", schedulectl.Get)
		g.POST("/schedules", schedulectl.Post)
		g.PUT("/schedules/:id", schedulectl.Put)
		g.POST("/schedules/:id/toggle", schedulectl.Toggle)
		g.DELETE("/schedules/:id", schedulectl.Delete)
	}

	// events
	g.GET("/events/stream", eventctl.New(event.Default()).Stream)
}
