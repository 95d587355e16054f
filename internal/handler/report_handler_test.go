package handler_test

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/handler"
	"github.com/noah-isme/rendus-api/internal/service"
)

type mockReportService struct {
	service.ReportService
	search   string
	requests []dto.ExportRequest
	err      error
}

func (m *mockReportService) Grid(_ context.Context, courseID uint, search string) (dto.ReportGridResponse, error) {
	m.search = search
	if m.err != nil {
		return dto.ReportGridResponse{}, m.err
	}
	return dto.ReportGridResponse{CourseID: courseID, Title: "Programmation (INF1) - 2024"}, nil
}

func (m *mockReportService) ExportPDF(_ context.Context, req dto.ExportRequest) (dto.ExportFile, error) {
	m.requests = append(m.requests, req)
	return dto.ExportFile{FileName: "INF1_TauxRendus.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.3"), ArchiveURL: "https://cdn.example.com/r.pdf"}, nil
}

func (m *mockReportService) ExportCSV(_ context.Context, req dto.ExportRequest) (dto.ExportFile, error) {
	m.requests = append(m.requests, req)
	return dto.ExportFile{FileName: "INF1_TauxRendus.csv", ContentType: "text/csv; charset=utf-8", Content: []byte("student,email\n")}, nil
}

func (m *mockReportService) ListExports(_ context.Context, _ uint, limit int) ([]dto.ReportExportResponse, error) {
	return []dto.ReportExportResponse{{ID: 1, FileName: "INF1_TauxRendus.pdf"}}, nil
}

func newReportApp(svc service.ReportService) *fiber.App {
	app := fiber.New()
	handler.NewReportHandler(svc, 75, testLogger()).Register(app.Group("/courses"))
	return app
}

func TestReportHandlerGrid(t *testing.T) {
	svc := &mockReportService{}
	app := newReportApp(svc)

	resp := doJSON(t, app, http.MethodGet, "/courses/7/report?search=%20zo%20", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "zo", svc.search)

	svc.err = service.ErrCourseNotFound
	resp = doJSON(t, app, http.MethodGet, "/courses/7/report", nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestReportHandlerPDFThreshold(t *testing.T) {
	svc := &mockReportService{}
	app := newReportApp(svc)

	resp := doJSON(t, app, http.MethodGet, "/courses/7/report/pdf", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "INF1_TauxRendus.pdf")
	require.Equal(t, "https://cdn.example.com/r.pdf", resp.Header.Get("X-Archive-URL"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.3", string(body))
	require.Equal(t, float64(75), svc.requests[0].Threshold)

	resp = doJSON(t, app, http.MethodGet, "/courses/7/report/pdf?threshold=62.5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 62.5, svc.requests[1].Threshold)

	for _, raw := range []string{"abc", "-1", "100.01", "NaN"} {
		resp = doJSON(t, app, http.MethodGet, "/courses/7/report/pdf?threshold="+raw, nil)
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, raw)
		require.Equal(t, "threshold must be a percentage between 0 and 100", decodeEnvelope(t, resp).Message)
	}
	require.Len(t, svc.requests, 2)
}

func TestReportHandlerCSVAndExports(t *testing.T) {
	svc := &mockReportService{}
	app := newReportApp(svc)

	resp := doJSON(t, app, http.MethodGet, "/courses/7/report/csv?threshold=0", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	require.Empty(t, resp.Header.Get("X-Archive-URL"))
	require.Zero(t, svc.requests[0].Threshold)

	resp = doJSON(t, app, http.MethodGet, "/courses/7/report/exports?limit=5", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(decodeEnvelope(t, resp).Data), "INF1_TauxRendus.pdf")
}
