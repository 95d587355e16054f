package dto

import (
	"time"

	"github.com/noah-isme/rendus-api/internal/models"
)

// ProcessingEventType names the messages emitted by the processing coordinator.
type ProcessingEventType string

const (
	EventProcessingStarted   ProcessingEventType = "processing.started"
	EventProcessingCompleted ProcessingEventType = "processing.completed"
	EventProcessingFailed    ProcessingEventType = "processing.failed"
	EventProcessingStale     ProcessingEventType = "processing.stale_statuses"
	EventRefreshStarted      ProcessingEventType = "refresh.started"
	EventRefreshCompleted    ProcessingEventType = "refresh.completed"
	EventRefreshFailed       ProcessingEventType = "refresh.failed"
)

// ProcessingEvent is broadcast to websocket subscribers and other nodes.
type ProcessingEvent struct {
	Type       ProcessingEventType `json:"type"`
	CourseID   uint                `json:"course_id"`
	TPNo       int                 `json:"tp_no"`
	State      string              `json:"state"`
	Message    string              `json:"message"`
	OccurredAt time.Time           `json:"occurred_at"`
	Source     string              `json:"source,omitempty"`
}

// Warning reports whether the event is a soft failure.
func (e ProcessingEvent) Warning() bool {
	return e.Type == EventProcessingStale
}

// ProcessingStatusResponse is the in-flight state of one TP.
type ProcessingStatusResponse struct {
	CourseID   uint      `json:"course_id"`
	TPNo       int       `json:"tp_no"`
	State      string    `json:"state"`
	Refreshing bool      `json:"refreshing"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// ProcessingAcceptedResponse is returned when a workflow is scheduled.
type ProcessingAcceptedResponse struct {
	CourseID uint                  `json:"course_id"`
	TPNo     int                   `json:"tp_no"`
	Kind     models.ProcessingKind `json:"kind"`
	State    string                `json:"state"`
}

// ProcessingRunResponse is one journal entry.
type ProcessingRunResponse struct {
	ID         uint                     `json:"id"`
	TPNo       int                      `json:"tp_no"`
	Kind       models.ProcessingKind    `json:"kind"`
	Outcome    models.ProcessingOutcome `json:"outcome"`
	Error      string                   `json:"error,omitempty"`
	ActorID    uint                     `json:"actor_id,omitempty"`
	Metadata   map[string]interface{}   `json:"metadata,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	DurationMS int64                    `json:"duration_ms"`
}

// NewProcessingRunResponses maps journal entries.
func NewProcessingRunResponses(runs []models.ProcessingRun) []ProcessingRunResponse {
	items := make([]ProcessingRunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, ProcessingRunResponse{
			ID:         run.ID,
			TPNo:       run.TPNo,
			Kind:       run.Kind,
			Outcome:    run.Outcome,
			Error:      run.Error,
			ActorID:    run.ActorID,
			Metadata:   map[string]interface{}(run.Metadata),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			DurationMS: run.Duration().Milliseconds(),
		})
	}
	return items
}

// ProcessingRunListResponse is a page of the processing journal.
type ProcessingRunListResponse struct {
	Items      []ProcessingRunResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}
