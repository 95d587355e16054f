package observability

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	scrapeTimeout      = 10 * time.Second
	maxScrapesInFlight = 4
)

var (
	metricsHandlerOnce sync.Once
	metricsHandler     fiber.Handler
)

// MetricsHandler serves the rendus collectors in the Prometheus text or
// OpenMetrics format. Concurrent scrapes beyond a small limit get a 503.
func MetricsHandler() fiber.Handler {
	metricsHandlerOnce.Do(func() {
		RegisterMetrics()
		handler := promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer,
			promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
				EnableOpenMetrics:   true,
				MaxRequestsInFlight: maxScrapesInFlight,
				Timeout:             scrapeTimeout,
			}),
		)
		metricsHandler = adaptor.HTTPHandler(handler)
	})
	return metricsHandler
}
