package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"html"
	"mime/multipart"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/dto"
)

// ErrEmptyRoster indicates an import file without any usable name.
var ErrEmptyRoster = errors.New("roster file contains no student names")

// CourseService manages courses and their rosters through the course backend.
type CourseService interface {
	List(ctx context.Context) ([]dto.CourseSummaryResponse, error)
	Get(ctx context.Context, courseID uint) (dto.CourseDetailResponse, error)
	Create(ctx context.Context, req dto.CourseRequest) (dto.CourseSummaryResponse, error)
	Update(ctx context.Context, courseID uint, req dto.CourseRequest) (dto.CourseSummaryResponse, error)
	Delete(ctx context.Context, courseID uint) error

	ListStudents(ctx context.Context, courseID uint) ([]dto.StudentResponse, error)
	AddStudent(ctx context.Context, courseID uint, req dto.StudentRequest) (dto.StudentResponse, error)
	ImportStudents(ctx context.Context, courseID uint, file *multipart.FileHeader) (dto.StudentImportResponse, error)
	UpdateStudent(ctx context.Context, courseID, studentID uint, req dto.StudentRequest) (dto.StudentResponse, error)
	DeleteStudent(ctx context.Context, courseID, studentID uint) error
}

type courseService struct {
	backend   CourseBackend
	uploads   UploadInspector
	cache     *SnapshotCache
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewCourseService constructs the course service.
func NewCourseService(backend CourseBackend, uploads UploadInspector, cache *SnapshotCache, validate *validator.Validate, logger zerolog.Logger) CourseService {
	return &courseService{
		backend:   backend,
		uploads:   uploads,
		cache:     cache,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "course_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/rendus-api/internal/service/course"),
	}
}

func (s *courseService) List(ctx context.Context) ([]dto.CourseSummaryResponse, error) {
	courses, err := s.backend.ListCourses(ctx)
	if err != nil {
		return nil, backendError(err)
	}
	return dto.NewCourseSummaryResponses(courses), nil
}

func (s *courseService) Get(ctx context.Context, courseID uint) (dto.CourseDetailResponse, error) {
	course, err := s.backend.GetCourse(ctx, courseID)
	if err != nil {
		return dto.CourseDetailResponse{}, backendError(err)
	}
	return dto.NewCourseDetailResponse(course), nil
}

func (s *courseService) Create(ctx context.Context, req dto.CourseRequest) (dto.CourseSummaryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseSummaryResponse{}, err
	}

	created, err := s.backend.CreateCourse(ctx, req.ToModel(0))
	if err != nil {
		return dto.CourseSummaryResponse{}, backendError(err)
	}
	s.logger.Info().Uint("course_id", created.ID).Str("code", created.Code).Msg("course created")
	return dto.NewCourseSummaryResponse(created), nil
}

func (s *courseService) Update(ctx context.Context, courseID uint, req dto.CourseRequest) (dto.CourseSummaryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CourseSummaryResponse{}, err
	}

	updated, err := s.backend.UpdateCourse(ctx, req.ToModel(courseID))
	if err != nil {
		return dto.CourseSummaryResponse{}, backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	return dto.NewCourseSummaryResponse(updated), nil
}

func (s *courseService) Delete(ctx context.Context, courseID uint) error {
	if err := s.backend.DeleteCourse(ctx, courseID); err != nil {
		return backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	s.logger.Info().Uint("course_id", courseID).Msg("course deleted")
	return nil
}

func (s *courseService) ListStudents(ctx context.Context, courseID uint) ([]dto.StudentResponse, error) {
	students, err := s.backend.ListStudents(ctx, courseID)
	if err != nil {
		return nil, backendError(err)
	}
	return dto.NewStudentResponses(students), nil
}

func (s *courseService) AddStudent(ctx context.Context, courseID uint, req dto.StudentRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.StudentResponse{}, err
	}

	student := req.ToModel(0)
	student.Name = s.cleanName(student.Name)
	created, err := s.backend.AddStudent(ctx, courseID, student)
	if err != nil {
		return dto.StudentResponse{}, backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	return dto.NewStudentResponse(created), nil
}

// ImportStudents forwards a cleaned copy of a newline-delimited roster file.
func (s *courseService) ImportStudents(ctx context.Context, courseID uint, file *multipart.FileHeader) (dto.StudentImportResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "students.import", trace.WithAttributes(
		attribute.Int64("course.id", int64(courseID)),
	))
	defer span.End()

	upload, err := s.uploads.Inspect(spanCtx, UploadRoster, file)
	if err != nil {
		return dto.StudentImportResponse{}, err
	}

	names, skipped := s.parseRoster(upload.Content)
	if len(names) == 0 {
		return dto.StudentImportResponse{}, ErrEmptyRoster
	}

	cleaned := []byte(strings.Join(names, "\n") + "\n")
	if err := s.backend.ImportStudents(spanCtx, courseID, upload.FileName, cleaned); err != nil {
		span.RecordError(err)
		return dto.StudentImportResponse{}, backendError(err)
	}

	s.cache.Invalidate(spanCtx, courseID)
	s.logger.Info().Uint("course_id", courseID).Int("imported", len(names)).Int("skipped", skipped).Msg("roster imported")

	return dto.StudentImportResponse{Imported: len(names), Skipped: skipped, Names: names}, nil
}

func (s *courseService) parseRoster(content []byte) ([]string, int) {
	var names []string
	skipped := 0
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		name := s.cleanName(line)
		key := strings.ToLower(name)
		if name == "" {
			skipped++
			continue
		}
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}
	return names, skipped
}

// cleanName strips markup but keeps apostrophes and ampersands as typed.
func (s *courseService) cleanName(name string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s.sanitizer.Sanitize(name))), " ")
}

func (s *courseService) UpdateStudent(ctx context.Context, courseID, studentID uint, req dto.StudentRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.StudentResponse{}, err
	}

	student := req.ToModel(studentID)
	student.Name = s.cleanName(student.Name)
	updated, err := s.backend.UpdateStudent(ctx, courseID, studentID, student)
	if err != nil {
		return dto.StudentResponse{}, backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	return dto.NewStudentResponse(updated), nil
}

func (s *courseService) DeleteStudent(ctx context.Context, courseID, studentID uint) error {
	if err := s.backend.DeleteStudent(ctx, courseID, studentID); err != nil {
		return backendError(err)
	}
	s.cache.Invalidate(ctx, courseID)
	return nil
}
