package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ProcessingRun{}, &models.ReportExport{}))
	return db
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mini, client
}

var errBackendDown = &coursebackend.Error{Operation: "test", Status: 502, Body: "bad gateway"}

// fakeBackend is an in-memory course backend.
type fakeBackend struct {
	mu sync.Mutex

	course   models.Course
	courses  []models.CoursePreview
	statuses map[uint]models.TPStatus

	getCourseCalls int
	startCalls     int
	manageCalls    int
	refreshCalls   int
	getTPCalls     int
	imported       []byte
	uploaded       []byte
	updated        map[uint]models.SubmissionState

	startErr   error
	manageErr  error
	refreshErr error
	getErr     error
	updateErr  map[uint]error

	// startGate blocks StartProcessing until closed when set.
	startGate chan struct{}
	// downloadableAfter makes GetTP report a published archive from this call on.
	downloadableAfter int
}

func newFakeBackend(course models.Course) *fakeBackend {
	return &fakeBackend{
		course:   course,
		statuses: make(map[uint]models.TPStatus),
		updated:  make(map[uint]models.SubmissionState),
	}
}

func (f *fakeBackend) ListCourses(ctx context.Context) ([]models.CoursePreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.courses, nil
}

func (f *fakeBackend) GetCourse(ctx context.Context, courseID uint) (models.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCourseCalls++
	if f.getErr != nil {
		return models.Course{}, f.getErr
	}
	if courseID != f.course.ID {
		return models.Course{}, &coursebackend.Error{Operation: "get_course", Status: 404}
	}
	return f.course, nil
}

func (f *fakeBackend) CreateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error) {
	course.ID = 42
	return course, nil
}

func (f *fakeBackend) UpdateCourse(ctx context.Context, course models.CoursePreview) (models.CoursePreview, error) {
	return course, nil
}

func (f *fakeBackend) DeleteCourse(ctx context.Context, courseID uint) error { return nil }

func (f *fakeBackend) ListStudents(ctx context.Context, courseID uint) ([]models.Student, error) {
	return f.course.StudentList, nil
}

func (f *fakeBackend) AddStudent(ctx context.Context, courseID uint, student models.Student) (models.Student, error) {
	student.ID = 99
	return student, nil
}

func (f *fakeBackend) ImportStudents(ctx context.Context, courseID uint, fileName string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported = append([]byte(nil), content...)
	return nil
}

func (f *fakeBackend) UpdateStudent(ctx context.Context, courseID, studentID uint, student models.Student) (models.Student, error) {
	return student, nil
}

func (f *fakeBackend) DeleteStudent(ctx context.Context, courseID, studentID uint) error { return nil }

func (f *fakeBackend) ListTPs(ctx context.Context, courseID uint) ([]models.TP, error) {
	return f.course.TPsList, nil
}

func (f *fakeBackend) CreateTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	return models.TP{ID: uint(tpNo) + 100, No: tpNo}, nil
}

func (f *fakeBackend) DeleteTP(ctx context.Context, courseID uint, tpNo int) error { return nil }

func (f *fakeBackend) UploadSubmission(ctx context.Context, courseID uint, tpNo int, fileName string, content []byte) (models.TP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append([]byte(nil), content...)
	return models.TP{No: tpNo, Submission: &models.SubmissionSource{FileName: fileName, PathStorage: "/store/" + fileName}}, nil
}

func (f *fakeBackend) DownloadArchive(ctx context.Context, courseID uint, tpNo int) (*coursebackend.Archive, error) {
	return &coursebackend.Archive{Body: io.NopCloser(bytes.NewReader([]byte("PK"))), ContentLength: 2}, nil
}

func (f *fakeBackend) GetTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getTPCalls++
	tp := models.TP{No: tpNo}
	if f.downloadableAfter > 0 && f.getTPCalls >= f.downloadableAfter {
		tp.Submission = &models.SubmissionSource{PathFileStructured: "/structured.zip"}
	}
	return tp, nil
}

func (f *fakeBackend) StartProcessing(ctx context.Context, courseID uint, tpNo int) error {
	f.mu.Lock()
	f.startCalls++
	gate := f.startGate
	err := f.startErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) ManageTP(ctx context.Context, courseID uint, tpNo int) (models.TP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manageCalls++
	if f.manageErr != nil {
		return models.TP{}, f.manageErr
	}
	return models.TP{No: tpNo, Submission: &models.SubmissionSource{PathFileStructured: "/structured.zip"}}, nil
}

func (f *fakeBackend) RefreshStatuses(ctx context.Context, courseID uint, tpNo int) ([]models.TPStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return []models.TPStatus{{ID: 1}, {ID: 2}}, nil
}

func (f *fakeBackend) GetStatus(ctx context.Context, statusID uint) (models.TPStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[statusID]
	if !ok {
		return models.TPStatus{}, &coursebackend.Error{Operation: "get_status", Status: 404}
	}
	return status, nil
}

func (f *fakeBackend) UpdateStatus(ctx context.Context, statusID uint, state models.SubmissionState) (models.TPStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.updateErr[statusID]; err != nil {
		return models.TPStatus{}, err
	}
	f.updated[statusID] = state
	status := f.statuses[statusID]
	status.ID = statusID
	status.StudentSubmission = models.RawState(state)
	f.statuses[statusID] = status
	return status, nil
}

func (f *fakeBackend) DeleteStatus(ctx context.Context, statusID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[statusID]; !ok {
		return &coursebackend.Error{Operation: "delete_status", Status: 404}
	}
	delete(f.statuses, statusID)
	return nil
}

func (f *fakeBackend) counts() (start, manage, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.manageCalls, f.refreshCalls
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.ProcessingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event dto.ProcessingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []dto.ProcessingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]dto.ProcessingEventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

// noSettle returns immediately.
type noSettle struct{}

func (noSettle) Settle(ctx context.Context, courseID uint, tpNo int) error { return ctx.Err() }
func (noSettle) Name() string                                             { return "none" }

type archiveStub struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (a *archiveStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names = append(a.names, name)
	return "https://cdn.example.com/" + name, nil
}

var errArchiveDown = errors.New("archive unavailable")

func sampleCourse() models.Course {
	return models.Course{
		ID:   7,
		Name: "Programmation",
		Code: "INF1",
		Year: 2024,
		StudentList: []models.Student{
			{ID: 1, Name: "Zoé", Email: "zoe@example.com", StudyType: models.StudyTypeFullTime},
			{ID: 2, Name: "alice", Email: "alice@example.com", StudyType: models.StudyTypePartTime},
		},
		TPsList: []models.TP{
			{ID: 11, No: 1, StatusStudents: []models.TPStatus{
				{ID: 101, StudentID: 1, TPID: 11, StudentSubmission: models.RawState(models.SubmissionDone)},
				{ID: 102, StudentID: 2, TPID: 11, StudentSubmission: models.RawBoolean(false)},
			}},
			{ID: 12, No: 2, StatusStudents: []models.TPStatus{
				{ID: 103, StudentID: 1, TPID: 12, StudentSubmission: models.RawState(models.SubmissionDoneLate)},
			}},
		},
	}
}
