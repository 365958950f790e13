package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"orgdirectory/internal/config"
	"orgdirectory/internal/middleware"
	"orgdirectory/internal/models"
	"orgdirectory/internal/service"
	"orgdirectory/pkg/logger"
)

// Register is the public sign-up. It only creates Employee accounts; other
// roles go through CreateUser.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	if req.Role == "" {
		req.Role = models.RoleEmployee
	}
	if req.Role != models.RoleEmployee {
		logger.SecurityLogger.Warn("Self-registration with elevated role rejected",
			zap.String("username", req.Username), zap.String("role", string(req.Role)), zap.String("ip", c.IP()))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "only Employee accounts can be self-registered",
			"success": false,
			"status":  fiber.StatusBadRequest,
		})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.Register(ctx, req), fiber.StatusCreated)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	type LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	if err := config.Validate.Struct(req); err != nil {
		logger.AuditLogger.Warn("Validation error during login", zap.Error(err))
		return badRequest(c, "Validation error", err)
	}

	ctx, cancel := h.ctx(c)
	defer cancel()
	res := h.Identity.Login(ctx, req.Username, req.Password)
	if !res.Success {
		return reply(c, res, fiber.StatusOK)
	}

	tokenString, err := middleware.GenerateToken(*res.Data, h.TokenTTL)
	if err != nil {
		logger.ErrorLogger.Error("Error generating token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal error",
			"success": false,
			"status":  fiber.StatusInternalServerError,
		})
	}
	return c.JSON(fiber.Map{
		"message": res.Message,
		"success": true,
		"status":  fiber.StatusOK,
		"data": fiber.Map{
			"user_id": res.Data.UserID,
			"role":    res.Data.Role,
			"token":   tokenString,
		},
	})
}

func (h *Handler) VerifyOtp(c *fiber.Ctx) error {
	type VerifyRequest struct {
		UserID int    `json:"user_id" validate:"required"`
		Code   string `json:"code" validate:"required"`
	}
	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	if err := config.Validate.Struct(req); err != nil {
		return badRequest(c, "Validation error", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.VerifyOtp(ctx, req.UserID, req.Code), fiber.StatusOK)
}

func (h *Handler) ResendOtp(c *fiber.Ctx) error {
	type ResendRequest struct {
		UserID int `json:"user_id" validate:"required"`
	}
	var req ResendRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	if err := config.Validate.Struct(req); err != nil {
		return badRequest(c, "Validation error", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Identity.ResendOtp(ctx, req.UserID), fiber.StatusOK)
}
