package env

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/murtihash94/kasal/pkg/log"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for kasal.
func Process() error {
	if err := envconfig.Process("kasal", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevelFromString(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by kasal.
type Environment struct {
	LogLevel string `default:"info"`
	Port     int    `default:"8080"`

	DatabaseType string `default:"sqlite"`
	DatabaseDSN  string `default:"host=postgres user=postgres password=postgres dbname=kasal port=5432 sslmode=disable"`
	DatabasePath string `default:"kasal.db"`

	// Engine selection for crew/flow executions.
	ExecutionEngine string `default:"crewai"`

	// LLM provider endpoint (OpenAI-compatible chat completions).
	LLMBaseURL   string        `default:"https://api.openai.com/v1"`
	LLMAPIKeyRef string        `default:"secret://env/OPENAI_API_KEY"`
	LLMModel     string        `default:"gpt-4o-mini"`
	LLMTimeout   time.Duration `default:"120s"`

	// Remote MCP tool servers are merged into every agent's
	// tool list when enabled.
	MCPEnabled bool `default:"false"`

	// Databricks workspace used for Vector Search provisioning
	// and the Genie tool.
	DatabricksHost     string `default:""`
	DatabricksTokenRef string `default:"secret://env/DATABRICKS_TOKEN"`

	// Secret providers.
	VaultAddr          string `default:""`
	VaultToken         string `default:""`
	VaultNamespace     string `default:""`
	VaultCACertPath    string `default:""`
	VaultTLSSkipVerify bool   `default:"false"`

	// Scheduler sweep interval for due cron schedules.
	SchedulerInterval time.Duration `default:"1m"`
}
