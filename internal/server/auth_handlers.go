package server

import (
	"appleverse/internal/models"
	"appleverse/internal/service"

	"github.com/gofiber/fiber/v2"
)

// SubmitSignupRequest handles POST /signup-request
// @Summary Request admin access
// @Description Store a signup request for review and notify the reviewer
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{name=string,dob=string,email=string,password=string} true "Signup request"
// @Success 200 {object} object{message=string,id=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /signup-request [post]
func (s *Server) SubmitSignupRequest(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		DOB      string `json:"dob"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	rec, err := s.lifecycle.Submit(c.UserContext(), service.SubmitInput{
		Name:        req.Name,
		DateOfBirth: req.DOB,
		Email:       req.Email,
		Secret:      req.Password,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Signup request sent for approval. You will be notified via email.",
		"id":      rec.ID,
	})
}

// Login handles POST /admin/login
// @Summary Admin login
// @Description Authenticate an active admin and return a session token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,message=string,expires_at=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /admin/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	res, err := s.lifecycle.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"token":      res.Token,
		"message":    "Login successful",
		"expires_at": res.ExpiresAt,
	})
}

// Logout handles POST /admin/logout
// @Summary Admin logout
// @Description Revoke the current session token
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{message=string}
// @Failure 401 {object} models.ErrorResponse
// @Router /admin/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("sessionToken").(string)
	if err := s.sessions.Logout(c.UserContext(), token); err != nil {
		return respondError(c, err)
	}
	s.hub.Disconnect(adminIDFrom(c))
	return c.JSON(fiber.Map{"message": "Logged out successfully"})
}

// ChangePassword handles POST /admin/change-password
// @Summary Change an admin password
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{email=string,newPassword=string} true "New password"
// @Success 200 {object} object{message=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/change-password [post]
func (s *Server) ChangePassword(c *fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		NewPassword string `json:"newPassword"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.lifecycle.ChangeSecret(c.UserContext(), adminIDFrom(c), req.Email, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password updated successfully"})
}

// ListFeatures reports the feature flags evaluated for the calling admin
// @Summary Feature flags for the current admin
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{features=map[string]bool}
// @Router /admin/features [get]
func (s *Server) ListFeatures(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"features": s.flags.Snapshot(adminIDFrom(c))})
}
