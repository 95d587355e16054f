package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesRendusCollectors(t *testing.T) {
	BackendRequestFailures().WithLabelValues("get_course").Inc()
	ReportCache().WithLabelValues("hit").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `rendus_backend_request_failures_total{operation="get_course"}`)
	require.Contains(t, string(body), "promhttp_metric_handler_requests_total")
}
