package server

import (
	"errors"
	"log/slog"
	"strings"

	"appleverse/internal/middleware"
	"appleverse/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// statusFor maps an application error onto its HTTP status.
func statusFor(err error) int {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeInvalidCredentials, models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with the status statusFor picks, logging server-side failures.
func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()), slog.String("error", err.Error()))
	}
	return models.RespondWithError(c, status, err)
}

type requestIDBody struct {
	RequestID string `json:"requestId"`
}

// parseRequestID reads {"requestId": "..."} from the body.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseRequestID(c *fiber.Ctx) (string, error) {
	var body requestIDBody
	if err := c.BodyParser(&body); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return "", errResponseWritten
	}
	id := strings.TrimSpace(body.RequestID)
	if id == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("requestId is required"))
		return "", errResponseWritten
	}
	return id, nil
}

// adminIDFrom returns the authenticated admin set by AuthRequired.
func adminIDFrom(c *fiber.Ctx) string {
	if v, ok := c.Locals("adminID").(string); ok {
		return v
	}
	return ""
}

// requireFeature hides a route while the flag is off for the calling admin.
func (s *Server) requireFeature(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !s.flags.EnabledOr(name, adminIDFrom(c), true) {
			return fiber.ErrNotFound
		}
		return c.Next()
	}
}
