package tracking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/murtihash94/kasal/internal/event"
	"github.com/murtihash94/kasal/internal/models"
	"github.com/murtihash94/kasal/pkg/log"
	"gorm.io/gorm"
)

// TraceWriter persists agent-trace events from the bus as
// ExecutionTrace rows. It is registered once at startup and
// lives for the whole process.
type TraceWriter struct {
	db *gorm.DB
}

// NewTraceWriter builds a writer over the given database.
func NewTraceWriter(conn *gorm.DB) *TraceWriter {
	return &TraceWriter{db: conn}
}

// HandleEvent writes the trace row best-effort; a failed write
// is logged and dropped.
func (w *TraceWriter) HandleEvent(ev event.Event) {
	if ev.Type != event.TypeAgentTrace {
		return
	}

	output := ""
	if len(ev.Payload) > 0 {
		output = string(ev.Payload)
	}

	trace := &models.ExecutionTrace{
		ID:        uuid.New(),
		JobID:     ev.JobID,
		TaskKey:   ev.TaskKey,
		AgentName: ev.AgentName,
		EventType: sourceType(ev.Payload),
		Output:    output,
		CreatedAt: time.Now().UTC(),
	}

	if err := w.db.WithContext(context.Background()).Create(trace).Error; err != nil {
		log.Error("trace write failed", "job_id", ev.JobID, "error", err)
	}
}

// sourceType recovers the originating event type from the
// agent-trace envelope, defaulting to agent_trace itself.
func sourceType(payload json.RawMessage) string {
	var envelope struct {
		SourceType string `json:"source_type"`
	}
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &envelope)
	}
	if envelope.SourceType == "" {
		return string(event.TypeAgentTrace)
	}
	return envelope.SourceType
}

// ListTraces returns all trace rows for a job in insertion
// order.
func (t *trackingService) ListTraces(jobID string) (models.ExecutionTraces, error) {
	traces := make(models.ExecutionTraces, 0)

	err := t.db.WithContext(t.ctx).
		Where("job_id = ?", jobID).
		Order("created_at asc").
		Find(&traces).Error
	if err != nil {
		return nil, err
	}

	return traces, nil
}
