package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/dto"
)

// TPService manages the TPs of a course and their submission archives.
type TPService interface {
	List(ctx context.Context, courseID uint) ([]dto.TPResponse, error)
	Create(ctx context.Context, courseID uint, tpNo int) (dto.TPResponse, error)
	Delete(ctx context.Context, courseID uint, tpNo int) error
	UploadSubmission(ctx context.Context, courseID uint, tpNo int, file *multipart.FileHeader) (dto.TPResponse, error)
	Download(ctx context.Context, courseID uint, tpNo int) (dto.ArchiveDownload, error)
}

type tpService struct {
	backend TPBackend
	uploads UploadInspector
	cache   *SnapshotCache
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewTPService constructs the TP service.
func NewTPService(backend TPBackend, uploads UploadInspector, cache *SnapshotCache, logger zerolog.Logger) TPService {
	return &tpService{
		backend: backend,
		uploads: uploads,
		cache:   cache,
		logger:  logger.With().Str("component", "tp_service").Logger(),
		tracer:  otel.Tracer("github.com/noah-isme/rendus-api/internal/service/tp"),
	}
}

// ArchiveFileName is the download name of a restructured archive.
func ArchiveFileName(tpNo int) string {
	return fmt.Sprintf("TP%d_RenduRestructuration.zip", tpNo)
}

func (s *tpService) List(ctx context.Context, courseID uint) ([]dto.TPResponse, error) {
	tps, err := s.backend.ListTPs(ctx, courseID)
	if err != nil {
		return nil, backendError(err)
	}
	sort.SliceStable(tps, func(i, j int) bool { return tps[i].No < tps[j].No })
	return dto.NewTPResponses(tps), nil
}

func (s *tpService) Create(ctx context.Context, courseID uint, tpNo int) (dto.TPResponse, error) {
	tp, err := s.backend.CreateTP(ctx, courseID, tpNo)
	if err != nil {
		return dto.TPResponse{}, backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	s.logger.Info().Uint("course_id", courseID).Int("tp_no", tpNo).Msg("tp created")
	return dto.NewTPResponse(tp), nil
}

func (s *tpService) Delete(ctx context.Context, courseID uint, tpNo int) error {
	if err := s.backend.DeleteTP(ctx, courseID, tpNo); err != nil {
		return backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	s.logger.Info().Uint("course_id", courseID).Int("tp_no", tpNo).Msg("tp deleted")
	return nil
}

func (s *tpService) UploadSubmission(ctx context.Context, courseID uint, tpNo int, file *multipart.FileHeader) (dto.TPResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "tps.upload_submission", trace.WithAttributes(
		attribute.Int64("course.id", int64(courseID)),
		attribute.Int("tp.no", tpNo),
	))
	defer span.End()

	upload, err := s.uploads.Inspect(spanCtx, UploadArchive, file)
	if err != nil {
		return dto.TPResponse{}, err
	}
	span.SetAttributes(
		attribute.Int64("upload.size_bytes", upload.Size),
		attribute.String("upload.checksum", upload.Checksum),
	)

	tp, err := s.backend.UploadSubmission(spanCtx, courseID, tpNo, upload.FileName, upload.Content)
	if err != nil {
		span.RecordError(err)
		return dto.TPResponse{}, backendError(err)
	}

	s.cache.Invalidate(spanCtx, courseID)
	s.logger.Info().
		Uint("course_id", courseID).
		Int("tp_no", tpNo).
		Int64("size_bytes", upload.Size).
		Str("checksum", upload.Checksum).
		Msg("submission archive uploaded")
	return dto.NewTPResponse(tp), nil
}

// Download opens the restructured archive. The caller closes the body.
func (s *tpService) Download(ctx context.Context, courseID uint, tpNo int) (dto.ArchiveDownload, error) {
	archive, err := s.backend.DownloadArchive(ctx, courseID, tpNo)
	if err != nil {
		return dto.ArchiveDownload{}, backendError(err)
	}
	contentType := archive.ContentType
	if contentType == "" {
		contentType = "application/zip"
	}
	return dto.ArchiveDownload{
		FileName:      ArchiveFileName(tpNo),
		ContentType:   contentType,
		ContentLength: archive.ContentLength,
		Body:          archive.Body,
	}, nil
}
