package dto

import (
	"github.com/noah-isme/rendus-api/internal/models"
)

// StatusUpdateRequest changes the submission state of one status record. The value is
// kept raw so legacy booleans can be classified like any other value. CourseID names the
// cached report to drop.
type StatusUpdateRequest struct {
	SubmissionType models.RawSubmissionValue `json:"submissionType"`
	CourseID       uint                      `json:"course_id" validate:"required"`
}

// BatchStatusItem is one entry of a batch update.
type BatchStatusItem struct {
	StatusID       uint                      `json:"status_id" validate:"required"`
	SubmissionType models.RawSubmissionValue `json:"submissionType"`
}

// BatchStatusRequest updates several status records at once.
type BatchStatusRequest struct {
	CourseID uint              `json:"course_id" validate:"required"`
	Updates  []BatchStatusItem `json:"updates" validate:"required,min=1,max=500,dive"`
}

// BatchStatusFailure reports one rejected batch entry.
type BatchStatusFailure struct {
	StatusID uint   `json:"status_id"`
	Error    string `json:"error"`
}

// BatchStatusResponse reports the outcome of a batch update.
type BatchStatusResponse struct {
	Updated []StatusResponse     `json:"updated"`
	Failed  []BatchStatusFailure `json:"failed"`
}

// StatusResponse is a status record with its classified state.
type StatusResponse struct {
	ID        uint                   `json:"id"`
	StudentID uint                   `json:"student_id"`
	TPID      uint                   `json:"tp_id"`
	State     models.SubmissionState `json:"state,omitempty"`
	Group     models.SubmissionGroup `json:"group"`
	Label     string                 `json:"label"`
	Icon      string                 `json:"icon"`
	Color     string                 `json:"color,omitempty"`
}

// NewStatusResponse maps a status record with an already classified state.
func NewStatusResponse(status models.TPStatus, state models.SubmissionState) StatusResponse {
	return StatusResponse{
		ID:        status.ID,
		StudentID: status.StudentID,
		TPID:      status.TPID,
		State:     state,
		Group:     state.Group(),
		Label:     state.Label(),
		Icon:      state.Icon(),
		Color:     state.Color(),
	}
}

// SubmissionStateResponse describes one selectable state for edit dialogs.
type SubmissionStateResponse struct {
	Value     models.SubmissionState `json:"value"`
	Label     string                 `json:"label"`
	Group     models.SubmissionGroup `json:"group"`
	Icon      string                 `json:"icon"`
	Color     string                 `json:"color"`
	Submitted bool                   `json:"counts_as_submitted"`
}

// NewSubmissionStateResponses lists every canonical state.
func NewSubmissionStateResponses() []SubmissionStateResponse {
	items := make([]SubmissionStateResponse, 0, len(models.SubmissionStates))
	for _, state := range models.SubmissionStates {
		items = append(items, SubmissionStateResponse{
			Value:     state,
			Label:     state.Label(),
			Group:     state.Group(),
			Icon:      state.Icon(),
			Color:     state.Color(),
			Submitted: state.CountsAsSubmitted(),
		})
	}
	return items
}
