package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/rendus-api/internal/utils"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

const bearerPrefix = "Bearer "

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket upgrade, so those requests may carry ?access_token= instead.
func bearerToken(c *fiber.Ctx) (string, bool) {
	authorization := strings.TrimSpace(c.Get("Authorization"))
	if authorization == "" && strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
		token := strings.TrimSpace(c.Query("access_token"))
		return token, token != ""
	}
	if len(authorization) < len(bearerPrefix) || !strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authorization[len(bearerPrefix):])
	return token, token != ""
}

// ForwardBearer passes the caller's bearer token on to the course backend without
// checking it. Used when no signing secret is configured and the backend is the authority.
func ForwardBearer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token, ok := bearerToken(c); ok {
			c.SetUserContext(coursebackend.WithToken(c.UserContext(), token))
		}
		return c.Next()
	}
}

// JWTProtected validates HMAC-signed bearer tokens and forwards them to the course backend.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c)
		if !ok {
			if c.Get("Authorization") == "" {
				return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
			}
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		if userID := extractUserIDFromClaims(claims); userID != nil {
			c.Locals("user_id", *userID)
		}
		if roles := extractUserRolesFromClaims(claims); len(roles) > 0 {
			c.Locals("user_role", roles[0])
			c.Locals("user_roles", roles)
		}
		c.SetUserContext(coursebackend.WithToken(c.UserContext(), tokenString))

		return c.Next()
	}
}

func extractUserIDFromClaims(claims jwt.MapClaims) *uint {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil {
				return &normalized
			}
		}
	}

	return nil
}

func normalizeUserID(value interface{}) (uint, error) {
	switch v := value.(type) {
	case float64:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	case string:
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, err
		}
		return uint(parsed), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("invalid subject")
		}
		return uint(v), nil
	default:
		return 0, fmt.Errorf("unsupported subject type")
	}
}

// extractUserRolesFromClaims collects "role" and "roles" claims, lower-cased and de-duplicated.
func extractUserRolesFromClaims(claims jwt.MapClaims) []string {
	var roles []string
	seen := make(map[string]struct{})
	add := func(value interface{}) {
		str, ok := value.(string)
		if !ok {
			return
		}
		role := strings.ToLower(strings.TrimSpace(str))
		if _, dup := seen[role]; role == "" || dup {
			return
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}

	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			add(v)
		case []interface{}:
			for _, item := range v {
				add(item)
			}
		}
	}
	return roles
}
