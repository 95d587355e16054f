package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/rendus-api/internal/utils"
)

// RequireConfirmation rejects destructive requests that do not carry ?confirm=true.
func RequireConfirmation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		confirmed, err := strconv.ParseBool(c.Query("confirm"))
		if err != nil || !confirmed {
			return utils.Fail(c, fiber.StatusPreconditionRequired, "confirmation required", fiber.Map{
				"hint": "repeat the request with ?confirm=true",
			})
		}
		return c.Next()
	}
}
