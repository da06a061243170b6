// Package middleware provides logging, tracing, metrics, rate limiting and
// authentication middleware for the application.
package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionVerifier validates a bearer token and returns the admin ID it was issued to.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header,
// falling back to the "token" query parameter used by websocket clients.
func BearerToken(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

// AuthRequired enforces a valid session token on protected routes.
// On success the admin ID is stored in c.Locals("adminID") and in the user context.
func AuthRequired(verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c)
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization required",
				"code":  "UNAUTHORIZED",
			})
		}

		adminID, err := verifier.VerifySession(c.UserContext(), tokenString)
		if err != nil || adminID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
				"code":  "UNAUTHORIZED",
			})
		}

		c.Locals("adminID", adminID)
		c.Locals("sessionToken", tokenString)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), AdminIDKey, adminID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
