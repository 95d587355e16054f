package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/report"
)

// ErrInvalidStatusType indicates a submission type value that does not classify.
var ErrInvalidStatusType = errors.New("invalid status type")

// StatusService edits individual submission status records.
type StatusService interface {
	States() []dto.SubmissionStateResponse
	Update(ctx context.Context, statusID uint, req dto.StatusUpdateRequest) (dto.StatusResponse, error)
	UpdateBatch(ctx context.Context, req dto.BatchStatusRequest) (dto.BatchStatusResponse, error)
	Delete(ctx context.Context, statusID uint, courseID uint) error
}

type statusService struct {
	backend   StatusBackend
	engine    *report.Engine
	cache     *SnapshotCache
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewStatusService constructs the status service.
func NewStatusService(backend StatusBackend, engine *report.Engine, cache *SnapshotCache, validate *validator.Validate, logger zerolog.Logger) StatusService {
	return &statusService{
		backend:   backend,
		engine:    engine,
		cache:     cache,
		validator: validate,
		logger:    logger.With().Str("component", "status_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/rendus-api/internal/service/status"),
	}
}

func (s *statusService) States() []dto.SubmissionStateResponse {
	return dto.NewSubmissionStateResponses()
}

// classify only accepts values that resolve to a state. Null is rejected on writes.
func (s *statusService) classify(raw models.RawSubmissionValue) (models.SubmissionState, error) {
	state, ok := s.engine.Classify(raw)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidStatusType, raw.String())
	}
	return state, nil
}

func (s *statusService) Update(ctx context.Context, statusID uint, req dto.StatusUpdateRequest) (dto.StatusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.StatusResponse{}, err
	}

	state, err := s.classify(req.SubmissionType)
	if err != nil {
		return dto.StatusResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "statuses.update", trace.WithAttributes(
		attribute.Int64("status.id", int64(statusID)),
		attribute.String("status.state", string(state)),
	))
	defer span.End()

	updated, err := s.backend.UpdateStatus(spanCtx, statusID, state)
	if err != nil {
		span.RecordError(err)
		return dto.StatusResponse{}, backendError(err)
	}

	s.cache.Invalidate(spanCtx, req.CourseID)
	s.logger.Info().Uint("status_id", statusID).Str("state", string(state)).Msg("submission status updated")

	return s.response(updated, state), nil
}

// UpdateBatch validates every value before applying any of them. Backend failures on
// individual records are reported per item.
func (s *statusService) UpdateBatch(ctx context.Context, req dto.BatchStatusRequest) (dto.BatchStatusResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BatchStatusResponse{}, err
	}

	states := make([]models.SubmissionState, len(req.Updates))
	for i, item := range req.Updates {
		state, err := s.classify(item.SubmissionType)
		if err != nil {
			return dto.BatchStatusResponse{}, fmt.Errorf("status %d: %w", item.StatusID, err)
		}
		states[i] = state
	}

	spanCtx, span := s.tracer.Start(ctx, "statuses.update_batch", trace.WithAttributes(
		attribute.Int("batch.size", len(req.Updates)),
	))
	defer span.End()

	result := dto.BatchStatusResponse{
		Updated: make([]dto.StatusResponse, 0, len(req.Updates)),
		Failed:  []dto.BatchStatusFailure{},
	}
	for i, item := range req.Updates {
		updated, err := s.backend.UpdateStatus(spanCtx, item.StatusID, states[i])
		if err != nil {
			span.RecordError(err)
			s.logger.Warn().Err(err).Uint("status_id", item.StatusID).Msg("batch status update failed")
			result.Failed = append(result.Failed, dto.BatchStatusFailure{StatusID: item.StatusID, Error: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, s.response(updated, states[i]))
	}

	if len(result.Updated) > 0 {
		s.cache.Invalidate(spanCtx, req.CourseID)
	}
	return result, nil
}

func (s *statusService) Delete(ctx context.Context, statusID uint, courseID uint) error {
	if err := s.backend.DeleteStatus(ctx, statusID); err != nil {
		return backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	s.logger.Info().Uint("status_id", statusID).Msg("submission status deleted")
	return nil
}

// response prefers the state echoed by the backend and falls back to the requested one.
func (s *statusService) response(status models.TPStatus, requested models.SubmissionState) dto.StatusResponse {
	state, ok := s.engine.Classify(status.StudentSubmission)
	if !ok {
		state = requested
	}
	return dto.NewStatusResponse(status, state)
}
