package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/config"
	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/handler"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/service"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

type tokenEchoCourses struct {
	service.CourseService
}

func (tokenEchoCourses) List(ctx context.Context) ([]dto.CourseSummaryResponse, error) {
	return []dto.CourseSummaryResponse{{Name: coursebackend.TokenFromContext(ctx)}}, nil
}

func newTestApp(auth ...fiber.Handler) *fiber.App {
	app := fiber.New()
	cfg := config.Config{AppName: "Rendus API", RateLimitMax: 5, RateLimitSpan: time.Minute}
	Register(app, cfg, Dependencies{
		CourseHandler: handler.NewCourseHandler(tokenEchoCourses{}, zerolog.Nop()),
		Auth:          auth,
	})
	return app
}

func TestRegisterPublicRoutes(t *testing.T) {
	app := newTestApp()

	for _, path := range []string{"/api/v1/health", "/metrics", "/api/v1/metrics"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, "Rendus API", resp.Header.Get("X-Application"))
}

func TestRegisterForwardsBearerByDefault(t *testing.T) {
	app := newTestApp()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	req.Header.Set("Authorization", "Bearer backend-token")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := make([]byte, 512)
	n, _ := resp.Body.Read(body)
	require.Contains(t, string(body[:n]), "backend-token")
}

func TestRegisterAppliesAuth(t *testing.T) {
	app := newTestApp(middleware.JWTProtected("secret"), middleware.RequireRole("teacher"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
