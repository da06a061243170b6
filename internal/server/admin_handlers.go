package server

import (
	"context"

	"appleverse/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListPendingRequests handles GET /admin/pending-requests
// @Summary List pending signup requests
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.IdentityRecord
// @Failure 401 {object} models.ErrorResponse
// @Router /admin/pending-requests [get]
func (s *Server) ListPendingRequests(c *fiber.Ctx) error {
	return s.listPartition(c, s.queries.ListPending)
}

// ListActiveAdmins handles GET /admin/active-admins
// @Summary List active admins
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.IdentityRecord
// @Router /admin/active-admins [get]
func (s *Server) ListActiveAdmins(c *fiber.Ctx) error {
	return s.listPartition(c, s.queries.ListActive)
}

// ListRejectedRequests handles GET /admin/rejected-requests
// @Summary List rejected requests and revoked admins
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.IdentityRecord
// @Router /admin/rejected-requests [get]
func (s *Server) ListRejectedRequests(c *fiber.Ctx) error {
	return s.listPartition(c, s.queries.ListRejected)
}

func (s *Server) listPartition(c *fiber.Ctx, list func(context.Context) ([]models.IdentityRecord, error)) error {
	recs, err := list(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(recs)
}

type moveFunc func(context.Context, string) (*models.IdentityRecord, error)

func (s *Server) handleMove(c *fiber.Ctx, move moveFunc, message string) error {
	id, err := parseRequestID(c)
	if err != nil {
		return nil
	}
	rec, err := move(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": message, "record": rec})
}

// ApproveRequest handles POST /admin/approve-request
// @Summary Approve a pending request
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string} true "Request ID"
// @Success 200 {object} object{message=string,record=models.IdentityRecord}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/approve-request [post]
func (s *Server) ApproveRequest(c *fiber.Ctx) error {
	return s.handleMove(c, s.lifecycle.Approve, "Request approved. User added to admins.")
}

// DenyRequest handles POST /admin/deny-request
// @Summary Deny a pending request
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string} true "Request ID"
// @Success 200 {object} object{message=string,record=models.IdentityRecord}
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/deny-request [post]
func (s *Server) DenyRequest(c *fiber.Ctx) error {
	return s.handleMove(c, s.lifecycle.Deny, "Request denied, moved to rejected requests.")
}

// RejectRequest handles POST /admin/reject-request
// @Summary Reject a pending request or an active admin
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string} true "Request ID"
// @Success 200 {object} object{message=string,record=models.IdentityRecord}
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/reject-request [post]
func (s *Server) RejectRequest(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return nil
	}
	rec, prior, err := s.lifecycle.Reject(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	message := "Request rejected, moved to rejected requests."
	if prior == models.StateActive {
		s.hub.Disconnect(rec.ID)
		message = "Admin revoked, moved to rejected requests."
	}
	return c.JSON(fiber.Map{"message": message, "record": rec})
}

// RevokeAccess handles POST /admin/revoke-access
// @Summary Revoke an active admin
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string} true "Admin ID"
// @Success 200 {object} object{message=string,record=models.IdentityRecord}
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/revoke-access [post]
func (s *Server) RevokeAccess(c *fiber.Ctx) error {
	id, err := parseRequestID(c)
	if err != nil {
		return nil
	}
	rec, err := s.lifecycle.Revoke(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	s.hub.Disconnect(rec.ID)
	return c.JSON(fiber.Map{"message": "Admin revoked, moved to rejected requests.", "record": rec})
}

// ReinstateRequest handles POST /admin/reinstate-request
// @Summary Reinstate a rejected record as an active admin
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string} true "Request ID"
// @Success 200 {object} object{message=string,record=models.IdentityRecord}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/reinstate-request [post]
func (s *Server) ReinstateRequest(c *fiber.Ctx) error {
	return s.handleMove(c, s.lifecycle.Reinstate, "Rejected admin reinstated to admins.")
}
