package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

const (
	correlationHeader   = "X-Correlation-ID"
	correlationLocal    = "correlation_id"
	maxCorrelationIDLen = 64
)

// CorrelationID tags every request with an identifier that is echoed to the caller,
// written to the logs and forwarded to the course backend. Incoming ids that are too
// long or carry unexpected characters are replaced.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := acceptCorrelationID(c.Get(correlationHeader))
		if id == "" {
			id = acceptCorrelationID(c.Get(fiber.HeaderXRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(correlationLocal, id)
		c.Set(correlationHeader, id)
		c.SetUserContext(coursebackend.WithCorrelationID(c.UserContext(), id))

		return c.Next()
	}
}

func acceptCorrelationID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxCorrelationIDLen {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return id
}

// GetCorrelationID returns the correlation id of the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(correlationLocal).(string); ok {
		return id
	}
	return coursebackend.CorrelationIDFromContext(c.UserContext())
}

// ContextWithCorrelation binds a correlation id to ctx so backend calls made with it
// carry the header.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return coursebackend.WithCorrelationID(ctx, correlationID)
}
