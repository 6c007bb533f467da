package crewai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/internal/event"
	"github.com/murtihash94/kasal/internal/mcp"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/internal/secret"
	"github.com/murtihash94/kasal/pkg/db"
	"github.com/murtihash94/kasal/pkg/env"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/gorm"
)

// defaultMaxIter bounds the think/act loop when the agent spec
// does not set its own limit.
const defaultMaxIter = 3

// TaskHooks are the orchestrator's synchronous task lifecycle
// callbacks. All fields are optional.
type TaskHooks struct {
	OnStart func(jobID, taskKey, agentName string)
	OnEnd   func(jobID, taskKey, output string)
	OnError func(jobID, taskKey string, taskErr error)
}

// Options configures an Engine instance.
type Options struct {
	DB          *gorm.DB
	Pool        *mcp.Pool
	Resolver    secret.Resolver
	Bus         event.Bus
	Completions CompletionClient
	Hooks       TaskHooks
}

// Engine is the CrewAI execution engine. Run launches crews and
// flows in background goroutines; Status and Cancel operate on
// the in-process run table.
type Engine struct {
	db          *gorm.DB
	pool        *mcp.Pool
	resolver    secret.Resolver
	bus         event.Bus
	completions CompletionClient
	hooks       TaskHooks

	mu   sync.RWMutex
	runs map[string]*runState

	ready chan struct{}
}

type runState struct {
	report   engine.StatusReport
	cancel   context.CancelFunc
	handlers *Handlers
}

// New constructs an engine, filling unset options from the
// process defaults.
func New(opts Options) *Engine {
	if opts.DB == nil {
		opts.DB = db.Connection()
	}
	if opts.Pool == nil {
		opts.Pool = mcp.DefaultPool()
	}
	if opts.Resolver == nil {
		resolver, err := secret.FromEnvironment(env.Variables())
		if err != nil {
			log.Error("secret resolver init failed, using env-only resolution", "error", err)
			resolver = secret.NewMultiResolver(map[string]secret.Resolver{
				"env": secret.NewEnvResolver(),
			})
		}
		opts.Resolver = resolver
	}
	if opts.Bus == nil {
		opts.Bus = event.Default()
	}
	if opts.Completions == nil {
		opts.Completions = newHTTPCompletionClient(opts.Resolver)
	}

	e := &Engine{
		db:          opts.DB,
		pool:        opts.Pool,
		resolver:    opts.Resolver,
		bus:         opts.Bus,
		completions: opts.Completions,
		hooks:       opts.Hooks,
		runs:        map[string]*runState{},
		ready:       make(chan struct{}),
	}
	close(e.ready)
	return e
}

var (
	defaultEngine     *Engine
	defaultEngineOnce sync.Once
)

// Default returns the process-wide engine.
func Default() *Engine {
	defaultEngineOnce.Do(func() {
		defaultEngine = New(Options{})
	})
	return defaultEngine
}

// SetHooks installs the task lifecycle callbacks. Called once
// at startup before any execution runs.
func (e *Engine) SetHooks(hooks TaskHooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = hooks
}

// Ready reports whether the engine finished initializing.
func (e *Engine) Ready(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run launches an execution in the background and returns
// immediately with an acknowledgment. The run's outcome is
// observable through Status and the event bus.
func (e *Engine) Run(ctx context.Context, req *engine.Request) (*engine.Ack, error) {
	if req == nil || req.ExecutionID == "" {
		return nil, fmt.Errorf("execution id is required")
	}

	switch req.Kind {
	case engine.KindCrew:
		if req.Crew == nil {
			return nil, fmt.Errorf("crew config is required for crew executions")
		}
	case engine.KindFlow:
		if req.Flow == nil {
			return nil, fmt.Errorf("flow payload is required for flow executions")
		}
	default:
		return nil, fmt.Errorf("unknown execution kind: %s", req.Kind)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if _, exists := e.runs[req.ExecutionID]; exists {
		e.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("execution %s is already running", req.ExecutionID)
	}
	e.runs[req.ExecutionID] = &runState{
		report: engine.StatusReport{
			ExecutionID: req.ExecutionID,
			Status:      models.ExecutionStatusPending,
			CreatedAt:   time.Now().UTC(),
		},
		cancel: cancel,
	}
	e.mu.Unlock()

	go e.execute(runCtx, req)

	return &engine.Ack{
		ExecutionID: req.ExecutionID,
		Status:      string(models.ExecutionStatusPending),
	}, nil
}

// Status returns a copy of the run's current report.
func (e *Engine) Status(ctx context.Context, executionID string) (*engine.StatusReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, ok := e.runs[executionID]
	if !ok {
		return nil, false
	}
	report := state.report
	return &report, true
}

// Cancel requests termination of a running execution. Unknown
// or already finished executions return false.
func (e *Engine) Cancel(ctx context.Context, executionID string) bool {
	e.mu.Lock()
	state, ok := e.runs[executionID]
	if !ok || state.report.Status.Terminal() {
		e.mu.Unlock()
		return false
	}
	cancel := state.cancel
	e.mu.Unlock()

	cancel()
	return true
}

func (e *Engine) execute(ctx context.Context, req *engine.Request) {
	e.setStatus(req.ExecutionID, models.ExecutionStatusPreparing, "", nil)

	handlers := InitCallbacks(req.ExecutionID, CallbackConfig{
		GroupID: req.GroupID,
		Bus:     e.bus,
	})
	e.mu.Lock()
	if state, ok := e.runs[req.ExecutionID]; ok {
		state.handlers = handlers
	}
	e.mu.Unlock()
	defer handlers.Cleanup(e.bus)

	e.publish(event.TypeExecutionStarted, req.ExecutionID, "", "", nil)

	var (
		result any
		err    error
	)
	switch req.Kind {
	case engine.KindCrew:
		result, err = e.runCrew(ctx, req)
	case engine.KindFlow:
		result, err = e.runFlow(ctx, req)
	}

	switch {
	case ctx.Err() != nil:
		e.setStatus(req.ExecutionID, models.ExecutionStatusCancelled, "execution cancelled", nil)
		e.publish(event.TypeExecutionCancelled, req.ExecutionID, "", "", nil)
	case err != nil:
		e.setStatus(req.ExecutionID, models.ExecutionStatusFailed, err.Error(), nil)
		e.publish(event.TypeExecutionFailed, req.ExecutionID, "", "", map[string]any{"error": err.Error()})
	default:
		e.setStatus(req.ExecutionID, models.ExecutionStatusCompleted, "", result)
		e.publish(event.TypeExecutionCompleted, req.ExecutionID, "", "", map[string]any{"result": result})
	}
}

func (e *Engine) runCrew(ctx context.Context, req *engine.Request) (any, error) {
	builder := NewBuilder(e.db, e.pool, e.resolver, req.OBOToken)

	crew, err := builder.BuildCrew(ctx, req.Crew)
	if err != nil {
		return nil, err
	}

	e.setStatus(req.ExecutionID, models.ExecutionStatusRunning, "", nil)

	var plan string
	if crew.Planning {
		plan = e.planCrew(ctx, crew)
	}

	outputs := map[string]string{}
	var lastOutput string

	var asyncWG sync.WaitGroup
	asyncErrs := make(chan error, len(crew.Tasks))

	flushAsync := func() error {
		asyncWG.Wait()
		select {
		case err := <-asyncErrs:
			return err
		default:
			return nil
		}
	}

	for _, task := range crew.Tasks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if task.AsyncExecution {
			task := task
			taskContext := buildTaskContext(plan, outputs)
			asyncWG.Add(1)
			go func() {
				defer asyncWG.Done()
				if _, err := e.runTask(ctx, req.ExecutionID, task, taskContext); err != nil {
					asyncErrs <- err
				}
			}()
			continue
		}

		if err := flushAsync(); err != nil {
			return nil, err
		}

		output, err := e.runTask(ctx, req.ExecutionID, task, buildTaskContext(plan, outputs))
		if err != nil {
			return nil, err
		}
		outputs[task.Key] = output
		lastOutput = output
	}

	if err := flushAsync(); err != nil {
		return nil, err
	}

	return lastOutput, nil
}

// planCrew produces an upfront plan over the crew's tasks.
// Planning failures are non-fatal; the crew just runs unplanned.
func (e *Engine) planCrew(ctx context.Context, crew *Crew) string {
	var sb strings.Builder
	for _, task := range crew.Tasks {
		fmt.Fprintf(&sb, "- %s: %s\n", task.Key, task.Description)
	}

	model := crew.Model
	if model == "" {
		model = env.Variables().LLMModel
	}

	plan, err := e.completions.Complete(ctx, &CompletionRequest{
		Model:  model,
		System: "You are a planner. Produce a short step-by-step plan for the tasks below.",
		Prompt: sb.String(),
	})
	if err != nil {
		log.Warn("crew planning failed, continuing without a plan", "error", err)
		return ""
	}
	return plan
}

func (e *Engine) runFlow(ctx context.Context, req *engine.Request) (any, error) {
	builder := NewBuilder(e.db, e.pool, e.resolver, req.OBOToken)

	if spec := flowSpecFromConfig(req.Flow.FlowConfig); spec != nil {
		prepared, err := PrepareFlow(spec)
		if err != nil {
			return nil, err
		}
		e.setStatus(req.ExecutionID, models.ExecutionStatusRunning, "", nil)
		return e.runPreparedFlow(ctx, req.ExecutionID, builder, prepared)
	}

	tasks, err := e.buildGraphTasks(ctx, builder, req.Flow)
	if err != nil {
		return nil, err
	}
	e.setStatus(req.ExecutionID, models.ExecutionStatusRunning, "", nil)

	outputs := map[string]string{}
	var lastOutput string
	for _, task := range tasks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		output, err := e.runTask(ctx, req.ExecutionID, task, buildTaskContext("", outputs))
		if err != nil {
			return nil, err
		}
		outputs[task.Key] = output
		lastOutput = output
	}
	return lastOutput, nil
}

// buildGraphTasks materializes runnable tasks from a node/edge
// flow graph. Unbuildable tasks are skipped; a flow with no
// runnable task at all is an error.
func (e *Engine) buildGraphTasks(ctx context.Context, builder *Builder, payload *engine.FlowPayload) ([]*Task, error) {
	edges, err := ParseEdges(payload.Edges)
	if err != nil {
		return nil, err
	}
	flow := &FlowContext{Nodes: payload.Nodes, Edges: edges}

	var tasks []*Task
	for _, node := range payload.Nodes {
		id := stringField(node, "id")
		if !strings.HasPrefix(id, "task-") {
			continue
		}

		spec, err := taskSpecFromNode(node)
		if err != nil {
			log.Warn("skipping malformed flow task node", "node", id, "error", err)
			continue
		}

		task := builder.BuildTask(ctx, spec, flow, nil)
		if task == nil {
			log.Warn("skipping unbuildable flow task", "node", id)
			continue
		}
		tasks = append(tasks, task)
	}

	if len(tasks) == 0 {
		return nil, fmt.Errorf("flow has no runnable tasks")
	}
	return tasks, nil
}

func (e *Engine) runPreparedFlow(ctx context.Context, jobID string, builder *Builder, prepared *PreparedFlow) (any, error) {
	agents := make(map[string]*Agent, len(prepared.Agents))
	for name, config := range prepared.Agents {
		spec := &AgentSpec{}
		if err := remarshal(config, spec); err != nil {
			return nil, fmt.Errorf("parse agent %s: %w", name, err)
		}
		agent, err := builder.BuildAgent(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", name, err)
		}
		agents[name] = agent
	}

	tasks := make(map[string]*Task, len(prepared.Tasks))
	for name, config := range prepared.Tasks {
		spec := &TaskSpec{}
		if err := remarshal(config, spec); err != nil {
			return nil, fmt.Errorf("parse task %s: %w", name, err)
		}
		agent := agents[stringField(config, "agent")]
		task := builder.assembleCrewTask(name, spec, agent)
		if task == nil {
			return nil, fmt.Errorf("task %s could not be assembled", name)
		}
		tasks[name] = task
	}

	outputs := map[string]string{}

	runOne := func(name string) (string, error) {
		task, ok := tasks[name]
		if !ok {
			return "", fmt.Errorf("flow references unknown task: %s", name)
		}
		output, err := e.runTask(ctx, jobID, task, buildTaskContext("", outputs))
		if err != nil {
			return "", err
		}
		outputs[name] = output
		return output, nil
	}

	flowType, _ := prepared.Flow["type"].(string)
	switch flowType {
	case "sequential":
		var last string
		for _, item := range anySlice(prepared.Flow["tasks"]) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			name, _ := item.(string)
			output, err := runOne(name)
			if err != nil {
				return nil, err
			}
			last = output
		}
		return last, nil

	case "parallel":
		var last string
		for _, group := range anySlice(prepared.Flow["parallel_tasks"]) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			names := anySlice(group)
			results := make([]string, len(names))
			errs := make([]error, len(names))

			var wg sync.WaitGroup
			var mu sync.Mutex
			for i, item := range names {
				name, _ := item.(string)
				wg.Add(1)
				go func(i int, name string) {
					defer wg.Done()
					task, ok := tasks[name]
					if !ok {
						errs[i] = fmt.Errorf("flow references unknown task: %s", name)
						return
					}
					mu.Lock()
					taskContext := buildTaskContext("", outputs)
					mu.Unlock()
					output, err := e.runTask(ctx, jobID, task, taskContext)
					if err != nil {
						errs[i] = err
						return
					}
					results[i] = output
					mu.Lock()
					outputs[name] = output
					mu.Unlock()
				}(i, name)
			}
			wg.Wait()

			for _, err := range errs {
				if err != nil {
					return nil, err
				}
			}
			if len(results) > 0 {
				last = results[len(results)-1]
			}
		}
		return last, nil

	case "conditional":
		conditions, _ := prepared.Flow["conditional_tasks"].(map[string]any)
		route := conditionalRoute(prepared.Flow, conditions)
		if route == "" {
			return nil, fmt.Errorf("Conditional flow cannot resolve a branch: define a route or a default condition")
		}
		branch := anySlice(conditions[route])
		var last string
		for _, item := range branch {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			name, _ := item.(string)
			output, err := runOne(name)
			if err != nil {
				return nil, err
			}
			last = output
		}
		return last, nil
	}

	return nil, fmt.Errorf("Invalid flow type: %v", prepared.Flow["type"])
}

// conditionalRoute picks the branch to run: an explicit route
// key wins, then the "default" branch, then the only branch if
// there is exactly one.
func conditionalRoute(flow map[string]any, conditions map[string]any) string {
	if route := stringField(flow, "route"); route != "" {
		if _, ok := conditions[route]; ok {
			return route
		}
	}
	if _, ok := conditions["default"]; ok {
		return "default"
	}
	if len(conditions) == 1 {
		for name := range conditions {
			return name
		}
	}
	return ""
}

// runTask drives one task through the think/act loop: the agent
// may answer directly or request a tool by emitting a JSON
// action object.
func (e *Engine) runTask(ctx context.Context, jobID string, task *Task, taskContext string) (string, error) {
	agentName := ""
	if task.Agent != nil {
		agentName = task.Agent.Name
	}

	e.publish(event.TypeTaskStarted, jobID, task.Key, agentName, nil)
	if e.hooks.OnStart != nil {
		e.hooks.OnStart(jobID, task.Key, agentName)
	}

	output, err := e.iterateTask(ctx, jobID, task, taskContext)
	if err != nil {
		e.publish(event.TypeTaskFailed, jobID, task.Key, agentName, map[string]any{"error": err.Error()})
		if e.hooks.OnError != nil {
			e.hooks.OnError(jobID, task.Key, err)
		}
		return "", fmt.Errorf("task %s: %w", task.Key, err)
	}

	e.publish(event.TypeOutputChunk, jobID, task.Key, agentName, map[string]any{"chunk": output})
	e.publish(event.TypeTaskCompleted, jobID, task.Key, agentName, map[string]any{"output": output})
	if e.hooks.OnEnd != nil {
		e.hooks.OnEnd(jobID, task.Key, output)
	}
	if task.outputCallback != nil {
		task.outputCallback(output)
	}
	return output, nil
}

// action is the agent's structured tool request.
type action struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

func (e *Engine) iterateTask(ctx context.Context, jobID string, task *Task, taskContext string) (string, error) {
	agent := task.Agent
	if agent == nil {
		return "", fmt.Errorf("task has no agent")
	}

	// Answer-bearing tools short-circuit the loop entirely.
	for _, tool := range agent.Tools {
		if tool.ResultAsAnswer() {
			e.publish(event.TypeToolUse, jobID, task.Key, agent.Name, map[string]any{"tool": tool.Name()})
			return tool.Run(ctx, task.Description)
		}
	}

	system := agentSystemPrompt(agent)
	prompt := taskPrompt(task, taskContext)

	maxIter := agent.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMaxIter
	}

	var response string
	for i := 0; i < maxIter; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		e.publish(event.TypeLLMCall, jobID, task.Key, agent.Name, map[string]any{"model": llmModelName(agent.LLM)})
		var err error
		response, err = e.completions.Complete(ctx, &CompletionRequest{
			Model:  llmModelName(agent.LLM),
			System: system,
			Prompt: prompt,
		})
		if err != nil {
			return "", err
		}

		act, ok := parseAction(response)
		if !ok {
			return response, nil
		}

		tool := findTool(agent.Tools, act.Tool)
		if tool == nil {
			prompt += fmt.Sprintf("\n\nObservation: tool %q is not available.", act.Tool)
			continue
		}

		e.publish(event.TypeToolUse, jobID, task.Key, agent.Name, map[string]any{"tool": tool.Name(), "input": act.Input})
		observation, err := tool.Run(ctx, act.Input)
		if err != nil {
			observation = fmt.Sprintf("tool error: %v", err)
		}
		prompt += fmt.Sprintf("\n\nObservation from %s: %s", tool.Name(), observation)
	}

	// Iteration budget exhausted; the last response stands.
	return response, nil
}

func agentSystemPrompt(agent *Agent) string {
	if agent.SystemTemplate != "" {
		return agent.SystemTemplate
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. %s\nYour goal: %s", agent.Role, agent.Backstory, agent.Goal)

	if len(agent.Tools) > 0 {
		sb.WriteString("\n\nAvailable tools:\n")
		for _, tool := range agent.Tools {
			fmt.Fprintf(&sb, "- %s: %s\n", tool.Name(), tool.Description())
		}
		sb.WriteString(`To use a tool, reply with only a JSON object: {"tool": "<name>", "input": "<input>"}. Otherwise reply with your final answer.`)
	}
	return sb.String()
}

func taskPrompt(task *Task, taskContext string) string {
	var sb strings.Builder
	sb.WriteString(task.Description)
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&sb, "\n\nExpected output: %s", task.ExpectedOutput)
	}
	if taskContext != "" {
		fmt.Fprintf(&sb, "\n\nContext:\n%s", taskContext)
	}
	return sb.String()
}

func buildTaskContext(plan string, outputs map[string]string) string {
	var sb strings.Builder
	if plan != "" {
		fmt.Fprintf(&sb, "Plan:\n%s\n", plan)
	}
	for key, output := range outputs {
		fmt.Fprintf(&sb, "Output of %s:\n%s\n", key, output)
	}
	return sb.String()
}

// parseAction extracts a tool action from a model response. Any
// response that is not a bare JSON action object is treated as a
// final answer.
func parseAction(response string) (*action, bool) {
	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}

	act := &action{}
	if err := json.Unmarshal([]byte(trimmed), act); err != nil || act.Tool == "" {
		return nil, false
	}
	return act, true
}

func findTool(tools []Tool, name string) Tool {
	for _, tool := range tools {
		if tool.Name() == name {
			return tool
		}
	}
	return nil
}

// flowSpecFromConfig recognizes the agents/tasks/flow form of a
// flow config, returning nil when the payload is a plain node
// graph instead.
func flowSpecFromConfig(config map[string]any) *FlowSpec {
	if config == nil {
		return nil
	}
	_, hasAgents := config["agents"]
	_, hasTasks := config["tasks"]
	_, hasFlow := config["flow"]
	if !hasAgents && !hasTasks && !hasFlow {
		return nil
	}

	spec := &FlowSpec{}
	if err := remarshal(config, spec); err != nil {
		log.Warn("malformed flow config", "error", err)
		return &FlowSpec{}
	}
	return spec
}

// taskSpecFromNode extracts the task spec embedded in a flow
// graph node's data block.
func taskSpecFromNode(node map[string]any) (*TaskSpec, error) {
	data, _ := node["data"].(map[string]any)
	if data == nil {
		return nil, fmt.Errorf("node has no data block")
	}

	spec := &TaskSpec{}
	if err := remarshal(data, spec); err != nil {
		return nil, err
	}
	if spec.ID == "" {
		spec.ID = strings.TrimPrefix(stringField(node, "id"), "task-")
	}
	return spec, nil
}

func remarshal(from any, to any) error {
	buf, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, to)
}

func (e *Engine) setStatus(executionID string, status models.ExecutionStatus, message string, result any) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.runs[executionID]
	if !ok {
		return
	}
	// Terminal states are sticky.
	if state.report.Status.Terminal() {
		return
	}
	state.report.Status = status
	if message != "" {
		state.report.Message = message
	}
	if result != nil {
		state.report.Result = result
	}
}

func (e *Engine) publish(eventType event.Type, jobID, taskKey, agentName string, payload map[string]any) {
	var raw json.RawMessage
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			log.Error("failed to encode event payload", "type", eventType, "error", err)
			return
		}
		raw = buf
	}
	e.bus.Publish(event.Event{
		Type:      eventType,
		JobID:     jobID,
		TaskKey:   taskKey,
		AgentName: agentName,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
}
