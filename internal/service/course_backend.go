package service

import (
	"context"
	"errors"

	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

var (
	// ErrCourseNotFound is returned when the backend does not know the requested entity.
	ErrCourseNotFound = errors.New("course not found")
	// ErrBackendUnavailable wraps failed backend calls that are not a missing entity.
	ErrBackendUnavailable = errors.New("course backend unavailable")
)

// CourseBackend is the subset of the course backend used for course and roster management.
type CourseBackend interface {
	ListCourses(ctx context.Context) ([]models.CoursePreview, error)
	GetCourse(ctx context.Context, courseID uint) (models.Course, error)
	CreateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error)
	UpdateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error)
	DeleteCourse(ctx context.Context, courseID uint) error
	ListStudents(ctx context.Context, courseID uint) ([]models.Student, error)
	AddStudent(ctx context.Context, courseID uint, student models.Student) (models.Student, error)
	ImportStudents(ctx context.Context, courseID uint, fileName string, content []byte) error
	UpdateStudent(ctx context.Context, courseID, studentID uint, student models.Student) (models.Student, error)
	DeleteStudent(ctx context.Context, courseID, studentID uint) error
}

// TPBackend manages TPs and their submission archives.
type TPBackend interface {
	ListTPs(ctx context.Context, courseID uint) ([]models.TP, error)
	CreateTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error)
	DeleteTP(ctx context.Context, courseID uint, tpNo int) error
	UploadSubmission(ctx context.Context, courseID uint, tpNo int, fileName string, content []byte) (models.TP, error)
	DownloadArchive(ctx context.Context, courseID uint, tpNo int) (*coursebackend.Archive, error)
}

// ProcessingBackend drives the restructure and refresh workflows.
type ProcessingBackend interface {
	GetTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error)
	StartProcessing(ctx context.Context, courseID uint, tpNo int) error
	ManageTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error)
	RefreshStatuses(ctx context.Context, courseID uint, tpNo int) ([]models.TPStatus, error)
}

// StatusBackend edits individual status records.
type StatusBackend interface {
	GetStatus(ctx context.Context, statusID uint) (models.TPStatus, error)
	UpdateStatus(ctx context.Context, statusID uint, state models.SubmissionState) (models.TPStatus, error)
	DeleteStatus(ctx context.Context, statusID uint) error
}

// ReportBackend loads the course snapshot reports are built from.
type ReportBackend interface {
	GetCourse(ctx context.Context, courseID uint) (models.Course, error)
}

var (
	_ CourseBackend     = (*coursebackend.Client)(nil)
	_ TPBackend         = (*coursebackend.Client)(nil)
	_ ProcessingBackend = (*coursebackend.Client)(nil)
	_ StatusBackend     = (*coursebackend.Client)(nil)
	_ ReportBackend     = (*coursebackend.Client)(nil)
)

// backendError maps a backend failure onto the service sentinels while keeping the cause.
func backendError(err error) error {
	if err == nil {
		return nil
	}
	if coursebackend.IsNotFound(err) {
		return errors.Join(ErrCourseNotFound, err)
	}
	return errors.Join(ErrBackendUnavailable, err)
}
