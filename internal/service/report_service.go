package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/observability"
	"github.com/noah-isme/rendus-api/internal/report"
	"github.com/noah-isme/rendus-api/internal/repository"
)

const (
	contentTypePDF = "application/pdf"
	contentTypeCSV = "text/csv; charset=utf-8"
)

// ProcessingViewer exposes the live coordinator state to the screen grid.
type ProcessingViewer interface {
	View(courseID uint) report.ProcessingView
}

// ReportService builds the screen report and the exported documents of a course.
type ReportService interface {
	Grid(ctx context.Context, courseID uint, search string) (dto.ReportGridResponse, error)
	ExportPDF(ctx context.Context, req dto.ExportRequest) (dto.ExportFile, error)
	ExportCSV(ctx context.Context, req dto.ExportRequest) (dto.ExportFile, error)
	ListExports(ctx context.Context, courseID uint, limit int) ([]dto.ReportExportResponse, error)
}

// ReportServiceConfig wires the optional collaborators of the report service.
type ReportServiceConfig struct {
	Exports    repository.ReportExportRepository
	Archive    FileStorage
	Processing ProcessingViewer
}

type reportService struct {
	backend    ReportBackend
	engine     *report.Engine
	cache      *SnapshotCache
	exports    repository.ReportExportRepository
	archive    FileStorage
	processing ProcessingViewer
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(backend ReportBackend, engine *report.Engine, cache *SnapshotCache, cfg ReportServiceConfig, validate *validator.Validate, logger zerolog.Logger) ReportService {
	return &reportService{
		backend:    backend,
		engine:     engine,
		cache:      cache,
		exports:    cfg.Exports,
		archive:    cfg.Archive,
		processing: cfg.Processing,
		validator:  validate,
		logger:     logger.With().Str("component", "report_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/rendus-api/internal/service/report"),
		now:        time.Now,
	}
}

// loadCourse reads the course snapshot from the cache, then from the backend.
func (s *reportService) loadCourse(ctx context.Context, courseID uint) (models.Course, bool, error) {
	if course, ok := s.cache.Get(ctx, courseID); ok {
		return course, true, nil
	}

	course, err := s.backend.GetCourse(ctx, courseID)
	if err != nil {
		return models.Course{}, false, backendError(err)
	}
	if course.ID == 0 {
		course.ID = courseID
	}
	s.cache.Set(ctx, course)
	return course, false, nil
}

func (s *reportService) Grid(ctx context.Context, courseID uint, search string) (dto.ReportGridResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "reports.grid", trace.WithAttributes(
		attribute.Int64("course.id", int64(courseID)),
	))
	defer span.End()

	start := time.Now()
	course, hit, err := s.loadCourse(spanCtx, courseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load course failed")
		return dto.ReportGridResponse{}, err
	}

	opts := report.GridOptions{Search: search}
	if s.processing != nil {
		opts.Processing = s.processing.View(courseID)
	}
	grid := s.engine.BuildGrid(course.StudentList, course.TPsList, opts)

	observability.ReportRenders().WithLabelValues("grid").Inc()
	observability.ReportRenderDuration().WithLabelValues("grid").Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Bool("report.cache_hit", hit),
		attribute.Int("report.students", grid.ShownStudents),
	)

	return dto.ReportGridResponse{
		CourseID:    courseID,
		Title:       report.DocumentTitle(&course),
		Grid:        grid,
		GeneratedAt: s.now().UTC(),
		CacheHit:    hit,
	}, nil
}

func (s *reportService) validateExport(req dto.ExportRequest) error {
	if err := report.ValidateThreshold(req.Threshold); err != nil {
		return err
	}
	return s.validator.Struct(req)
}

func (s *reportService) ExportPDF(ctx context.Context, req dto.ExportRequest) (dto.ExportFile, error) {
	if err := s.validateExport(req); err != nil {
		return dto.ExportFile{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "reports.export_pdf", trace.WithAttributes(
		attribute.Int64("course.id", int64(req.CourseID)),
		attribute.Float64("report.threshold", req.Threshold),
	))
	defer span.End()

	start := time.Now()
	course, _, err := s.loadCourse(spanCtx, req.CourseID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load course failed")
		return dto.ExportFile{}, err
	}

	now := s.now()
	plan, err := s.engine.PlanDocument(&course, course.StudentList, course.TPsList, req.Threshold, now)
	if err != nil {
		return dto.ExportFile{}, err
	}
	content, err := report.RenderPDFBytes(plan, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return dto.ExportFile{}, fmt.Errorf("render pdf: %w", err)
	}

	observability.ReportRenders().WithLabelValues(string(models.ExportFormatPDF)).Inc()
	observability.ReportRenderDuration().WithLabelValues(string(models.ExportFormatPDF)).Observe(time.Since(start).Seconds())

	file := dto.ExportFile{FileName: plan.FileName, ContentType: contentTypePDF, Content: content}
	file.ArchiveURL = s.store(spanCtx, file)

	s.record(spanCtx, models.ReportExport{
		CourseID:        req.CourseID,
		Format:          models.ExportFormatPDF,
		FileName:        plan.FileName,
		Threshold:       req.Threshold,
		Orientation:     string(plan.Orientation),
		StudentCount:    len(plan.Table.Students),
		AssignmentCount: len(course.TPsList),
		SizeBytes:       int64(len(content)),
		ArchiveURL:      file.ArchiveURL,
		ActorID:         req.ActorID,
	})

	s.logger.Info().
		Uint("course_id", req.CourseID).
		Str("file_name", plan.FileName).
		Str("orientation", string(plan.Orientation)).
		Int("size_bytes", len(content)).
		Msg("pdf report exported")
	return file, nil
}

func (s *reportService) ExportCSV(ctx context.Context, req dto.ExportRequest) (dto.ExportFile, error) {
	if err := s.validateExport(req); err != nil {
		return dto.ExportFile{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "reports.export_csv", trace.WithAttributes(
		attribute.Int64("course.id", int64(req.CourseID)),
	))
	defer span.End()

	start := time.Now()
	course, _, err := s.loadCourse(spanCtx, req.CourseID)
	if err != nil {
		span.RecordError(err)
		return dto.ExportFile{}, err
	}

	table := s.engine.BuildTable(course.StudentList, course.TPsList)
	content, err := report.RenderCSVBytes(table, req.Threshold)
	if err != nil {
		span.RecordError(err)
		return dto.ExportFile{}, err
	}

	observability.ReportRenders().WithLabelValues(string(models.ExportFormatCSV)).Inc()
	observability.ReportRenderDuration().WithLabelValues(string(models.ExportFormatCSV)).Observe(time.Since(start).Seconds())

	name := report.CSVFileName(report.ExportFileName(&course, s.now()))
	s.record(spanCtx, models.ReportExport{
		CourseID:        req.CourseID,
		Format:          models.ExportFormatCSV,
		FileName:        name,
		Threshold:       req.Threshold,
		StudentCount:    len(table.Students),
		AssignmentCount: len(course.TPsList),
		SizeBytes:       int64(len(content)),
		ActorID:         req.ActorID,
	})

	return dto.ExportFile{FileName: name, ContentType: contentTypeCSV, Content: content}, nil
}

// store archives a copy of the document. Archive failures never fail the export.
func (s *reportService) store(ctx context.Context, file dto.ExportFile) string {
	if s.archive == nil {
		return ""
	}
	url, err := s.archive.Upload(ctx, file.FileName, bytes.NewReader(file.Content))
	if err != nil {
		s.logger.Warn().Err(err).Str("file_name", file.FileName).Msg("failed to archive report")
		return ""
	}
	return url
}

func (s *reportService) record(ctx context.Context, export models.ReportExport) {
	if s.exports == nil {
		return
	}
	if err := s.exports.Create(ctx, &export); err != nil {
		s.logger.Warn().Err(err).Uint("course_id", export.CourseID).Msg("failed to journal report export")
	}
}

func (s *reportService) ListExports(ctx context.Context, courseID uint, limit int) ([]dto.ReportExportResponse, error) {
	if s.exports == nil {
		return []dto.ReportExportResponse{}, nil
	}
	exports, err := s.exports.ListByCourse(ctx, courseID, limit)
	if err != nil {
		return nil, err
	}
	return dto.NewReportExportResponses(exports), nil
}
