package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"orgdirectory/internal/middleware"
	"orgdirectory/internal/models"
	"orgdirectory/internal/service"
	"orgdirectory/pkg/logger"
)

// CreateUser lets an admin register an account with any role. The account
// still has to verify its OTP before it can log in.
func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	if req.Role == "" {
		req.Role = models.RoleEmployee
	}
	p, _ := middleware.Principal(c)
	logger.AuditLogger.Info("Admin creating user",
		zap.Int("admin_id", p.UserID), zap.String("username", req.Username), zap.String("role", string(req.Role)))
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.Register(ctx, req), fiber.StatusCreated)
}

// GetUser is open to the user itself and to admins.
func (h *Handler) GetUser(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid user ID", err)
	}
	p, _ := middleware.Principal(c)
	if p.Role != models.RoleAdmin && p.UserID != id {
		logger.SecurityLogger.Warn("Unauthorized user access", zap.Int("requester", p.UserID), zap.Int("target", id))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"message": "Forbidden",
			"success": false,
			"status":  fiber.StatusForbidden,
		})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.GetUser(ctx, id), fiber.StatusOK)
}

func (h *Handler) ResetOtpResends(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid user ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.ResetOtpResends(ctx, id), fiber.StatusOK)
}
