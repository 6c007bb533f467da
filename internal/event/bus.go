package event

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Type represents the type of event.
type Type string

const (
	TypeExecutionStarted   Type = "execution_started"
	TypeExecutionCompleted Type = "execution_completed"
	TypeExecutionFailed    Type = "execution_failed"
	TypeExecutionCancelled Type = "execution_cancelled"
	TypeTaskStarted        Type = "task_started"
	TypeTaskCompleted      Type = "task_completed"
	TypeTaskFailed         Type = "task_failed"
	TypeAgentTrace         Type = "agent_trace"
	TypeLLMCall            Type = "llm_call"
	TypeToolUse            Type = "tool_use"
	TypeOutputChunk        Type = "output_chunk"
)

// Event represents a system event.
type Event struct {
	Type      Type            `json:"type"`
	JobID     string          `json:"job_id,omitempty"`
	TaskKey   string          `json:"task_id,omitempty"`
	AgentName string          `json:"agent_name,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Filter defines criteria for receiving events.
type Filter struct {
	JobID string
	Types []Type
}

// Listener receives every published event that survives no
// filtering; listeners are registered process-wide and used by
// the engine's callback wiring.
type Listener interface {
	HandleEvent(Event)
}

// Bus defines the event bus interface.
type Bus interface {
	Publish(e Event)
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, error)
	Register(l Listener)
	Unregister(l Listener)
}

type bus struct {
	subscribers map[chan Event]Filter
	listeners   map[Listener]struct{}
	mu          sync.RWMutex
}

// New creates a new event bus.
func New() Bus {
	return &bus{
		subscribers: make(map[chan Event]Filter),
		listeners:   make(map[Listener]struct{}),
	}
}

var (
	defaultBus     Bus
	defaultBusOnce sync.Once
)

// Default returns the process-wide bus.
func Default() Bus {
	defaultBusOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}

func (b *bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch, filter := range b.subscribers {
		if b.matches(filter, e) {
			select {
			case ch <- e:
			default:
				// Drop event if channel is full to prevent blocking
			}
		}
	}

	for l := range b.listeners {
		l.HandleEvent(e)
	}
}

func (b *bus) Subscribe(ctx context.Context, filter Filter) (<-chan Event, error) {
	ch := make(chan Event, 100)

	b.mu.Lock()
	b.subscribers[ch] = filter
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch, nil
}

func (b *bus) Register(l Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
}

func (b *bus) Unregister(l Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
}

func (b *bus) matches(filter Filter, e Event) bool {
	if filter.JobID != "" && filter.JobID != e.JobID {
		return false
	}
	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
