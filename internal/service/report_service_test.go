package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/report"
	"github.com/noah-isme/rendus-api/internal/repository"
)

type stubViewer struct {
	processing map[int]bool
}

func (s stubViewer) View(courseID uint) report.ProcessingView { return s }
func (s stubViewer) IsProcessing(tpNo int) bool                  { return s.processing[tpNo] }
func (s stubViewer) IsRefreshing(tpNo int) bool                  { return false }

func newTestReportService(t *testing.T, backend *fakeBackend, archive FileStorage) (ReportService, repository.ReportExportRepository) {
	t.Helper()
	_, client := setupTestRedis(t)
	cache := NewSnapshotCache(client, time.Minute, testLogger())
	exports := repository.NewReportExportRepository(setupServiceTestDB(t))
	svc := NewReportService(backend, report.NewEngine(testLogger()), cache, ReportServiceConfig{
		Exports:    exports,
		Archive:    archive,
		Processing: stubViewer{processing: map[int]bool{2: true}},
	}, validator.New(validator.WithRequiredStructEnabled()), testLogger())
	svc.(*reportService).now = func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	return svc, exports
}

func TestReportServiceGridUsesSnapshotCache(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	svc, _ := newTestReportService(t, backend, nil)
	ctx := context.Background()

	first, err := svc.Grid(ctx, 7, "")
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, "Programmation (INF1) - 2024", first.Title)
	require.Equal(t, 2, first.Grid.ShownStudents)
	require.Equal(t, "alice", first.Grid.Rows[0].Name)
	require.Equal(t, report.BadgeProcessing, first.Grid.Columns[1].Badge)

	second, err := svc.Grid(ctx, 7, "zo")
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, 1, second.Grid.ShownStudents)
	require.Equal(t, 1, backend.getCourseCalls)
}

func TestReportServiceGridMissingCourse(t *testing.T) {
	svc, _ := newTestReportService(t, newFakeBackend(sampleCourse()), nil)
	_, err := svc.Grid(context.Background(), 404, "")
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestReportServiceExportPDF(t *testing.T) {
	archive := &archiveStub{}
	svc, exports := newTestReportService(t, newFakeBackend(sampleCourse()), archive)
	ctx := context.Background()

	file, err := svc.ExportPDF(ctx, dto.ExportRequest{CourseID: 7, Threshold: 75, ActorID: 2})
	require.NoError(t, err)
	require.Equal(t, "INF1_TauxRendus.pdf", file.FileName)
	require.Equal(t, contentTypePDF, file.ContentType)
	require.True(t, bytes.HasPrefix(file.Content, []byte("%PDF-")))
	require.Equal(t, "https://cdn.example.com/INF1_TauxRendus.pdf", file.ArchiveURL)

	journal, err := exports.ListByCourse(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, journal, 1)
	require.Equal(t, models.ExportFormatPDF, journal[0].Format)
	require.Equal(t, string(report.Portrait), journal[0].Orientation)
	require.Equal(t, 2, journal[0].StudentCount)
	require.Equal(t, file.ArchiveURL, journal[0].ArchiveURL)

	listed, err := svc.ListExports(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestReportServiceExportSurvivesArchiveFailure(t *testing.T) {
	svc, _ := newTestReportService(t, newFakeBackend(sampleCourse()), &archiveStub{err: errArchiveDown})

	file, err := svc.ExportPDF(context.Background(), dto.ExportRequest{CourseID: 7, Threshold: 50})
	require.NoError(t, err)
	require.Empty(t, file.ArchiveURL)
	require.NotEmpty(t, file.Content)
}

func TestReportServiceRejectsInvalidThreshold(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	svc, _ := newTestReportService(t, backend, nil)

	for _, threshold := range []float64{-1, 100.5} {
		_, err := svc.ExportPDF(context.Background(), dto.ExportRequest{CourseID: 7, Threshold: threshold})
		require.ErrorIs(t, err, report.ErrInvalidThreshold)
		_, err = svc.ExportCSV(context.Background(), dto.ExportRequest{CourseID: 7, Threshold: threshold})
		require.ErrorIs(t, err, report.ErrInvalidThreshold)
	}
	require.Zero(t, backend.getCourseCalls)
}

func TestReportServiceExportCSV(t *testing.T) {
	svc, exports := newTestReportService(t, newFakeBackend(sampleCourse()), nil)

	file, err := svc.ExportCSV(context.Background(), dto.ExportRequest{CourseID: 7, Threshold: 50})
	require.NoError(t, err)
	require.Equal(t, "INF1_TauxRendus.csv", file.FileName)

	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Equal(t, "student,email,study_type,tp,state,label,completion,passed", lines[0])
	require.Len(t, lines, 1+4)

	journal, err := exports.ListByCourse(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatCSV, journal[0].Format)
}
