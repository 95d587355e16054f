package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		locals  map[string]interface{}
		status  int
	}{
		{name: "single role allowed", allowed: []string{"Admin", "teacher"}, locals: map[string]interface{}{"user_role": "admin"}, status: fiber.StatusOK},
		{name: "secondary role allowed", allowed: []string{"teacher"}, locals: map[string]interface{}{"user_role": "student", "user_roles": []string{"student", "teacher"}}, status: fiber.StatusOK},
		{name: "student rejected", allowed: []string{"admin", "teacher"}, locals: map[string]interface{}{"user_role": "student"}, status: fiber.StatusForbidden},
		{name: "missing role rejected", allowed: []string{"teacher"}, status: fiber.StatusForbidden},
		{name: "no roles configured", allowed: []string{" "}, status: fiber.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				for key, value := range tc.locals {
					c.Locals(key, value)
				}
				return c.Next()
			})
			app.Use(RequireRole(tc.allowed...))
			app.Get("/courses", func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/courses", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRequireRoleReportsRequiredRoles(t *testing.T) {
	app := fiber.New()
	app.Use(RequireRole("teacher", "admin"))
	app.Get("/courses", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/courses", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body struct {
		Message string `json:"message"`
		Details struct {
			RequiredRoles []string `json:"required_roles"`
		} `json:"details"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "insufficient permissions", body.Message)
	require.Equal(t, []string{"admin", "teacher"}, body.Details.RequiredRoles)
}

func TestRequireRoleUsesEveryTokenRole(t *testing.T) {
	secret := "test-secret"
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "3",
		"roles": []string{"Student", "TEACHER", "student"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	app := fiber.New()
	app.Use(JWTProtected(secret), RequireRole("teacher"))
	app.Get("/courses", func(c *fiber.Ctx) error {
		return c.JSON(c.Locals("user_roles"))
	})

	req := httptest.NewRequest(http.MethodGet, "/courses", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var roles []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&roles))
	require.Equal(t, []string{"student", "teacher"}, roles)
}
