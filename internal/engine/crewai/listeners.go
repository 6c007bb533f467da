package crewai

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/murtihash94/kasal/internal/event"
	"github.com/murtihash94/kasal/pkg/log"
)

// Handlers bundles the per-execution listeners wired before a
// run starts. A zero Handlers is valid and means the run
// proceeds without observers.
type Handlers struct {
	Listeners []ExecutionListener
}

// ExecutionListener receives lifecycle events for one execution.
// Implementations must not block the publishing goroutine.
type ExecutionListener interface {
	event.Listener
	Cleanup()
}

// CallbackConfig carries the knobs for listener construction.
type CallbackConfig struct {
	GroupID string
	Bus     event.Bus
	// OnOutput receives streamed task output chunks. Optional.
	OnOutput func(taskKey, chunk string)
}

// InitCallbacks constructs and registers the execution listeners
// for a run. Each listener is built and attached independently so
// one broken observer never takes the others down, and a failure
// in the overall wiring degrades to an empty handler set rather
// than failing the execution.
func InitCallbacks(jobID string, config CallbackConfig) *Handlers {
	handlers := &Handlers{}
	if jobID == "" {
		return handlers
	}

	bus := config.Bus
	if bus == nil {
		bus = event.Default()
	}

	constructors := []struct {
		name  string
		build func() ExecutionListener
	}{
		{"streaming-output", func() ExecutionListener {
			return newStreamingOutputListener(jobID, config.OnOutput)
		}},
		{"event-streaming", func() ExecutionListener {
			return newEventStreamingListener(jobID, config.GroupID)
		}},
		{"agent-trace", func() ExecutionListener {
			return newAgentTraceListener(jobID, bus)
		}},
	}

	for _, c := range constructors {
		listener := safeBuild(c.name, c.build)
		if listener == nil {
			continue
		}
		if err := safeRegister(bus, listener); err != nil {
			log.Warn("listener registration failed", "listener", c.name, "job_id", jobID, "error", err)
			continue
		}
		handlers.Listeners = append(handlers.Listeners, listener)
	}

	return handlers
}

// Cleanup detaches every listener, tolerating individual
// failures so teardown always completes.
func (h *Handlers) Cleanup(bus event.Bus) {
	if h == nil {
		return
	}
	if bus == nil {
		bus = event.Default()
	}
	for _, listener := range h.Listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Warn("listener cleanup panicked", "panic", r)
				}
			}()
			bus.Unregister(listener)
			listener.Cleanup()
		}()
	}
	h.Listeners = nil
}

func safeBuild(name string, build func() ExecutionListener) (listener ExecutionListener) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("listener construction panicked", "listener", name, "panic", r)
			listener = nil
		}
	}()
	return build()
}

func safeRegister(bus event.Bus, listener ExecutionListener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &registrationError{cause: r}
		}
	}()
	bus.Register(listener)
	return nil
}

type registrationError struct{ cause any }

func (e *registrationError) Error() string { return "listener registration panicked" }

// streamingOutputListener forwards output chunks to the caller's
// sink as they arrive.
type streamingOutputListener struct {
	jobID    string
	onOutput func(taskKey, chunk string)
}

func newStreamingOutputListener(jobID string, onOutput func(taskKey, chunk string)) ExecutionListener {
	return &streamingOutputListener{jobID: jobID, onOutput: onOutput}
}

func (l *streamingOutputListener) HandleEvent(ev event.Event) {
	if ev.Type != event.TypeOutputChunk || ev.JobID != l.jobID || l.onOutput == nil {
		return
	}
	var payload struct {
		Chunk string `json:"chunk"`
	}
	if len(ev.Payload) > 0 {
		_ = json.Unmarshal(ev.Payload, &payload)
	}
	l.onOutput(ev.TaskKey, payload.Chunk)
}

func (l *streamingOutputListener) Cleanup() {}

// eventStreamingListener buffers lifecycle events for clients
// tailing an execution over the event stream endpoint.
type eventStreamingListener struct {
	jobID   string
	groupID string

	mu     sync.Mutex
	events []event.Event
	closed bool
}

func newEventStreamingListener(jobID, groupID string) *eventStreamingListener {
	return &eventStreamingListener{jobID: jobID, groupID: groupID}
}

func (l *eventStreamingListener) HandleEvent(ev event.Event) {
	if ev.JobID != l.jobID {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.events = append(l.events, ev)
}

// Events returns a snapshot of buffered events starting at index
// from.
func (l *eventStreamingListener) Events(from int) []event.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from < 0 || from >= len(l.events) {
		return nil
	}
	out := make([]event.Event, len(l.events)-from)
	copy(out, l.events[from:])
	return out
}

func (l *eventStreamingListener) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.events = nil
}

// agentTraceListener republishes agent activity as trace events
// that the trace writer persists.
type agentTraceListener struct {
	jobID string
	bus   event.Bus
}

func newAgentTraceListener(jobID string, bus event.Bus) *agentTraceListener {
	return &agentTraceListener{jobID: jobID, bus: bus}
}

func (l *agentTraceListener) HandleEvent(ev event.Event) {
	if ev.JobID != l.jobID {
		return
	}
	switch ev.Type {
	case event.TypeLLMCall, event.TypeToolUse, event.TypeTaskStarted, event.TypeTaskCompleted:
	default:
		return
	}
	payload, err := json.Marshal(map[string]any{
		"source_type": string(ev.Type),
		"payload":     json.RawMessage(normalizeRaw(ev.Payload)),
	})
	if err != nil {
		return
	}
	l.bus.Publish(event.Event{
		Type:      event.TypeAgentTrace,
		JobID:     l.jobID,
		TaskKey:   ev.TaskKey,
		AgentName: ev.AgentName,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (l *agentTraceListener) Cleanup() {}

func normalizeRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
