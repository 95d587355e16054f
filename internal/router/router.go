package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/rendus-api/internal/config"
	"github.com/noah-isme/rendus-api/internal/handler"
	"github.com/noah-isme/rendus-api/internal/middleware"
	"github.com/noah-isme/rendus-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler *handler.CourseHandler
	TPHandler     *handler.TPHandler
	ReportHandler *handler.ReportHandler
	EventsHandler *handler.EventsHandler
	StatusHandler *handler.StatusHandler
	HealthProbes  []handler.HealthProbe
	// Auth runs before every course and status route.
	Auth []fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))
	api.Get("/metrics", observability.MetricsHandler())

	guards := append([]fiber.Handler{}, deps.Auth...)
	if len(guards) == 0 {
		guards = append(guards, middleware.ForwardBearer())
	}
	guards = append(guards, middleware.RateLimit("rendus", cfg.RateLimitMax, cfg.RateLimitSpan))

	courses := api.Group("/courses", guards...)
	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(courses)
	}
	if deps.TPHandler != nil {
		deps.TPHandler.Register(courses)
	}
	if deps.ReportHandler != nil {
		deps.ReportHandler.Register(courses)
	}
	if deps.EventsHandler != nil {
		deps.EventsHandler.Register(courses)
	}

	if deps.StatusHandler != nil {
		deps.StatusHandler.Register(api.Group("/statuses", guards...))
	}
}
