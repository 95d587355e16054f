package handler_test

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/handler"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/repository"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

type mockTPService struct {
	service.TPService
	uploadErr error
	token     string
}

func (m *mockTPService) UploadSubmission(ctx context.Context, _ uint, tpNo int, file *multipart.FileHeader) (dto.TPResponse, error) {
	if m.uploadErr != nil {
		return dto.TPResponse{}, m.uploadErr
	}
	return dto.TPResponse{No: tpNo, FileName: file.Filename}, nil
}

func (m *mockTPService) Download(ctx context.Context, _ uint, tpNo int) (dto.ArchiveDownload, error) {
	m.token = coursebackend.TokenFromContext(ctx)
	return dto.ArchiveDownload{
		FileName:    service.ArchiveFileName(tpNo),
		ContentType: "application/zip",
		Body:        io.NopCloser(strings.NewReader("PK-archive")),
	}, nil
}

type mockCoordinator struct {
	service.ProcessingCoordinator
	triggerErr error
	triggered  []int
	actor      uint
	filter     repository.ProcessingRunFilter
}

func (m *mockCoordinator) Trigger(_ context.Context, _ uint, tpNo int, actorID uint) error {
	if m.triggerErr != nil {
		return m.triggerErr
	}
	m.triggered = append(m.triggered, tpNo)
	m.actor = actorID
	return nil
}

func (m *mockCoordinator) Refresh(_ context.Context, _ uint, tpNo int, _ uint) error {
	return m.triggerErr
}

func (m *mockCoordinator) Snapshot(courseID uint) []dto.ProcessingStatusResponse {
	return []dto.ProcessingStatusResponse{{CourseID: courseID, TPNo: 2, State: string(service.ProcessingReconciling)}}
}

func (m *mockCoordinator) Runs(_ context.Context, filter repository.ProcessingRunFilter) ([]models.ProcessingRun, int64, error) {
	m.filter = filter
	now := time.Now()
	return []models.ProcessingRun{{CourseID: filter.CourseID, TPNo: 1, Kind: models.ProcessingKindRestructure, Outcome: models.ProcessingSucceeded, StartedAt: now, FinishedAt: now}}, 41, nil
}

func (m *mockCoordinator) LatestRuns(_ context.Context, courseID uint) ([]models.ProcessingRun, error) {
	now := time.Now()
	return []models.ProcessingRun{{CourseID: courseID, TPNo: 4, Kind: models.ProcessingKindRefresh, Outcome: models.ProcessingRefreshFailed, StartedAt: now, FinishedAt: now}}, nil
}

func newTPApp(tps service.TPService, coordinator service.ProcessingCoordinator) *fiber.App {
	app := fiber.New()
	group := app.Group("/courses", func(c *fiber.Ctx) error {
		c.Locals("user_id", uint(5))
		c.SetUserContext(coursebackend.WithToken(c.UserContext(), "token-abc"))
		return c.Next()
	})
	handler.NewTPHandler(tps, coordinator, testLogger()).Register(group)
	return app
}

func TestTPHandlerProcessAccepted(t *testing.T) {
	coordinator := &mockCoordinator{}
	app := newTPApp(&mockTPService{}, coordinator)

	resp := doJSON(t, app, http.MethodPost, "/courses/7/tps/3/process", nil)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Contains(t, string(body.Data), `"state":"triggering"`)
	require.Equal(t, []int{3}, coordinator.triggered)
	require.Equal(t, uint(5), coordinator.actor)

	resp = doJSON(t, app, http.MethodPost, "/courses/7/tps/0/process", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTPHandlerProcessConflict(t *testing.T) {
	app := newTPApp(&mockTPService{}, &mockCoordinator{triggerErr: service.ErrProcessingInFlight})

	resp := doJSON(t, app, http.MethodPost, "/courses/7/tps/3/process", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/courses/7/tps/3/refresh", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestTPHandlerDownloadStreamsArchive(t *testing.T) {
	tps := &mockTPService{}
	app := newTPApp(tps, &mockCoordinator{})

	resp := doJSON(t, app, http.MethodGet, "/courses/7/tps/4/download", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	require.Contains(t, resp.Header.Get("Content-Disposition"), "TP4_RenduRestructuration.zip")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "PK-archive", string(body))
	require.Equal(t, "token-abc", tps.token)
}

func TestTPHandlerUploadErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "ok", status: fiber.StatusOK},
		{name: "type", err: service.ErrUploadTypeNotAllowed, status: fiber.StatusUnsupportedMediaType},
		{name: "size", err: service.ErrUploadTooLarge, status: fiber.StatusRequestEntityTooLarge},
		{name: "scan", err: service.ErrUploadScanFailed, status: fiber.StatusBadRequest},
		{name: "backend", err: service.ErrBackendUnavailable, status: fiber.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTPApp(&mockTPService{uploadErr: tc.err}, &mockCoordinator{})
			resp := doMultipart(t, app, "/courses/7/tps/1/submission", "rendus.zip", []byte("PK"))
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestTPHandlerProcessingViews(t *testing.T) {
	coordinator := &mockCoordinator{}
	app := newTPApp(&mockTPService{}, coordinator)

	resp := doJSON(t, app, http.MethodGet, "/courses/7/processing", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(decodeEnvelope(t, resp).Data), `"state":"reconciling"`)

	resp = doJSON(t, app, http.MethodGet, "/courses/7/processing/runs?page=2&pageSize=10&tpNo=1&outcome=succeeded", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Contains(t, string(body.Data), `"total_pages":5`)
	require.Equal(t, 2, coordinator.filter.Page)
	require.Equal(t, 10, coordinator.filter.PageSize)
	require.NotNil(t, coordinator.filter.TPNo)
	require.Equal(t, models.ProcessingSucceeded, coordinator.filter.Outcome)

	resp = doJSON(t, app, http.MethodGet, "/courses/7/processing/runs?tpNo=x", nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/courses/7/processing/latest", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(decodeEnvelope(t, resp).Data), `"outcome":"refresh_failed"`)
}
