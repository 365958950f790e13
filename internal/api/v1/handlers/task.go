package handlers

import (
	"github.com/gofiber/fiber/v2"

	"orgdirectory/internal/models"
	"orgdirectory/internal/service"
)

// AssignTask creates a task for employee :id.
func (h *Handler) AssignTask(c *fiber.Ctx) error {
	employeeID, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid employee ID", err)
	}
	var req service.TaskInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.AssignTask(ctx, employeeID, req), fiber.StatusCreated)
}

func (h *Handler) GetTask(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid task ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.GetTask(ctx, id), fiber.StatusOK)
}

func (h *Handler) UpdateTask(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid task ID", err)
	}
	var req service.TaskUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.UpdateTask(ctx, id, req), fiber.StatusOK)
}

// UpdateTaskStatus only changes the status column.
func (h *Handler) UpdateTaskStatus(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid task ID", err)
	}
	type StatusRequest struct {
		Status models.TaskStatus `json:"status"`
	}
	var req StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.UpdateTaskStatus(ctx, id, req.Status), fiber.StatusOK)
}

func (h *Handler) DeleteTask(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid task ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.DeleteTask(ctx, id), fiber.StatusOK)
}
