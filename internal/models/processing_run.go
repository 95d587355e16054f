package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProcessingKind distinguishes the coordinator workflows.
type ProcessingKind string

const (
	ProcessingKindRestructure ProcessingKind = "restructure"
	ProcessingKindRefresh     ProcessingKind = "refresh"
)

// ProcessingOutcome records how a coordinator run ended.
type ProcessingOutcome string

const (
	ProcessingSucceeded     ProcessingOutcome = "succeeded"
	ProcessingTriggerFailed ProcessingOutcome = "trigger_failed"
	ProcessingStaleStatuses ProcessingOutcome = "stale_statuses"
	ProcessingRefreshFailed ProcessingOutcome = "refresh_failed"
)

// ProcessingRun is the audit entry written for every restructure or refresh run.
type ProcessingRun struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	CourseID   uint              `gorm:"not null;index:idx_processing_runs_course_tp" json:"course_id"`
	TPNo       int               `gorm:"not null;index:idx_processing_runs_course_tp" json:"tp_no"`
	Kind       ProcessingKind    `gorm:"size:32;not null" json:"kind"`
	Outcome    ProcessingOutcome `gorm:"size:32;not null" json:"outcome"`
	Error      string            `gorm:"type:text" json:"error,omitempty"`
	ActorID    uint              `json:"actor_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	StartedAt  time.Time         `gorm:"not null" json:"started_at"`
	FinishedAt time.Time         `gorm:"not null" json:"finished_at"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Duration returns how long the run took.
func (r ProcessingRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
