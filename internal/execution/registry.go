package execution

import (
	"sync"
	"time"

	"github.com/murtihash94/kasal/internal/engine"
	"github.com/murtihash94/kasal/internal/models"
)

// State is one execution's in-memory record. The registry hands
// out copies; callers never share the stored instance.
type State struct {
	JobID       string                 `json:"job_id"`
	GroupID     string                 `json:"group_id,omitempty"`
	Kind        engine.Kind            `json:"kind"`
	RunName     string                 `json:"run_name,omitempty"`
	Status      models.ExecutionStatus `json:"status"`
	Message     string                 `json:"message,omitempty"`
	Result      any                    `json:"result,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Registry is the process-wide execution table plus the set of
// currently active jobs. All access goes through one mutex;
// callers never touch the maps directly.
type Registry struct {
	mu         sync.RWMutex
	executions map[string]*State
	active     map[string]struct{}
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		executions: map[string]*State{},
		active:     map[string]struct{}{},
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Add records a new execution and marks it active. An existing
// entry for the same job id is overwritten.
func (r *Registry) Add(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *state
	r.executions[state.JobID] = &stored
	r.active[state.JobID] = struct{}{}
}

// Get returns a copy of the execution state.
func (r *Registry) Get(jobID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.executions[jobID]
	if !ok {
		return nil, false
	}
	copied := *state
	return &copied, true
}

// SetStatus applies a status update. Terminal states are
// monotonic: once an execution finishes, later non-terminal
// updates are dropped. Reaching a terminal state clears the job
// from the active set.
func (r *Registry) SetStatus(jobID string, status models.ExecutionStatus, message string, result any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.executions[jobID]
	if !ok {
		return false
	}
	if state.Status.Terminal() {
		return false
	}

	state.Status = status
	if message != "" {
		state.Message = message
	}
	if result != nil {
		state.Result = result
	}
	if status.Terminal() {
		now := time.Now().UTC()
		state.CompletedAt = &now
		delete(r.active, jobID)
	}

	return true
}

// Active returns the job ids currently running.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// IsActive reports whether the job is in the active set.
func (r *Registry) IsActive(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[jobID]
	return ok
}

// Remove evicts an execution entirely, active or not.
func (r *Registry) Remove(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executions, jobID)
	delete(r.active, jobID)
}

// List returns copies of all registered executions.
func (r *Registry) List() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make([]*State, 0, len(r.executions))
	for _, state := range r.executions {
		copied := *state
		states = append(states, &copied)
	}
	return states
}
