package server

import (
	"appleverse/internal/models"
	"appleverse/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ListApples handles GET /apples
// @Summary List catalog apples
// @Description Lists the catalog, optionally filtered by a case-insensitive cultivar name substring
// @Tags apples
// @Produce json
// @Param search query string false "Cultivar name substring"
// @Success 200 {array} models.Apple
// @Router /apples [get]
func (s *Server) ListApples(c *fiber.Ctx) error {
	apples, err := s.apples.List(c.UserContext(), c.Query("search"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(apples)
}

// GetApple handles GET /apples/:id
// @Summary Get one apple
// @Tags apples
// @Produce json
// @Param id path string true "Apple ID"
// @Success 200 {object} models.Apple
// @Failure 404 {object} models.ErrorResponse
// @Router /apples/{id} [get]
func (s *Server) GetApple(c *fiber.Ctx) error {
	apple, err := s.apples.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(apple)
}

// CreateApple handles POST /apples
// @Summary Add an apple to the catalog
// @Tags apples
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body service.AppleInput true "Apple"
// @Success 201 {object} models.Apple
// @Failure 400 {object} models.ErrorResponse
// @Router /apples [post]
func (s *Server) CreateApple(c *fiber.Ctx) error {
	var in service.AppleInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	apple, err := s.apples.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(apple)
}

// UpdateApple handles PUT /apples/:id
// @Summary Replace an apple's fields
// @Tags apples
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Apple ID"
// @Param request body service.AppleInput true "Apple"
// @Success 200 {object} models.Apple
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /apples/{id} [put]
func (s *Server) UpdateApple(c *fiber.Ctx) error {
	var in service.AppleInput
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	apple, err := s.apples.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(apple)
}

// DeleteApple handles DELETE /apples/:id
// @Summary Delete an apple
// @Tags apples
// @Produce json
// @Security BearerAuth
// @Param id path string true "Apple ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} models.ErrorResponse
// @Router /apples/{id} [delete]
func (s *Server) DeleteApple(c *fiber.Ctx) error {
	if err := s.apples.Delete(c.UserContext(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Apple deleted successfully"})
}
