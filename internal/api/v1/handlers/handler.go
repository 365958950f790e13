package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"orgdirectory/internal/models"
	"orgdirectory/internal/service"
	"orgdirectory/pkg/logger"
)

// Handler holds what the HTTP layer needs from the rest of the app.
type Handler struct {
	Identity  *service.IdentityService
	Hierarchy *service.HierarchyService
	TokenTTL  time.Duration
	Timeout   time.Duration
}

func New(identity *service.IdentityService, hierarchy *service.HierarchyService, tokenTTL, timeout time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{Identity: identity, Hierarchy: hierarchy, TokenTTL: tokenTTL, Timeout: timeout}
}

func (h *Handler) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.Timeout)
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
	switch service.KindOf(err) {
	case service.KindValidation, service.KindExpired, service.KindInvalidCode:
		return fiber.StatusBadRequest
	case service.KindInvalidCredentials, service.KindNotVerified:
		return fiber.StatusUnauthorized
	case service.KindNotFound:
		return fiber.StatusNotFound
	case service.KindAlreadyVerified, service.KindDanglingReference:
		return fiber.StatusConflict
	case service.KindRateLimit:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func reply[T any](c *fiber.Ctx, res models.ServiceResponse[T], okStatus int) error {
	if !res.Success {
		if errors.Is(res.Err, context.DeadlineExceeded) || errors.Is(res.Err, context.Canceled) {
			logger.ContextLogger.Warn("Request context ended before the operation finished",
				zap.String("path", c.Path()), zap.Error(res.Err))
		}
		status := statusFor(res.Err)
		return c.Status(status).JSON(fiber.Map{
			"message": res.Message,
			"success": false,
			"status":  status,
		})
	}
	return c.Status(okStatus).JSON(fiber.Map{
		"message": res.Message,
		"success": true,
		"status":  okStatus,
		"data":    res.Data,
	})
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	logger.ErrorLogger.Error("Bad request", zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
		"success": false,
		"status":  fiber.StatusBadRequest,
	})
}

func paramID(c *fiber.Ctx) (int, error) {
	id, err := c.ParamsInt("id")
	if err == nil && id <= 0 {
		err = fiber.ErrBadRequest
	}
	return id, err
}
