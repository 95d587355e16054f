package middleware

import (
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/rendus-api/internal/utils"
)

// RequireRole admits callers holding at least one of roles, compared case-insensitively.
// With no roles configured every authenticated caller is admitted.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := strings.ToLower(strings.TrimSpace(role)); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}
	required := make([]string, 0, len(allowed))
	for role := range allowed {
		required = append(required, role)
	}
	sort.Strings(required)

	return func(c *fiber.Ctx) error {
		if len(allowed) == 0 {
			return c.Next()
		}
		for _, role := range callerRoles(c) {
			if _, ok := allowed[role]; ok {
				return c.Next()
			}
		}
		return utils.Fail(c, fiber.StatusForbidden, "insufficient permissions", fiber.Map{"required_roles": required})
	}
}

func callerRoles(c *fiber.Ctx) []string {
	if roles, ok := c.Locals("user_roles").([]string); ok && len(roles) > 0 {
		return roles
	}
	if role, ok := c.Locals("user_role").(string); ok {
		if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
			return []string{role}
		}
	}
	return nil
}
