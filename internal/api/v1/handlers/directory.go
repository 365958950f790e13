package handlers

import (
	"github.com/gofiber/fiber/v2"

	"orgdirectory/internal/service"
)

func (h *Handler) CreateDepartment(c *fiber.Ctx) error {
	type DepartmentRequest struct {
		Name string `json:"name"`
	}
	var req DepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.CreateDepartment(ctx, req.Name), fiber.StatusCreated)
}

func (h *Handler) DeleteDepartment(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid department ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.DeleteDepartment(ctx, id), fiber.StatusOK)
}

func (h *Handler) CreateManager(c *fiber.Ctx) error {
	var req service.ManagerInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.CreateManager(ctx, req), fiber.StatusCreated)
}

func (h *Handler) DeleteManager(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid manager ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.DeleteManager(ctx, id), fiber.StatusOK)
}

func (h *Handler) GetEmployeesByManager(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid manager ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.GetEmployeesByManager(ctx, id), fiber.StatusOK)
}

func (h *Handler) CreateEmployee(c *fiber.Ctx) error {
	var req service.EmployeeInput
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.CreateEmployee(ctx, req), fiber.StatusCreated)
}

func (h *Handler) GetEmployee(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid employee ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.GetEmployeeByID(ctx, id), fiber.StatusOK)
}

func (h *Handler) UpdateEmployee(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid employee ID", err)
	}
	var req service.EmployeeUpdate
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Bad request", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.UpdateEmployee(ctx, id, req), fiber.StatusOK)
}

func (h *Handler) DeleteEmployee(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return badRequest(c, "Invalid employee ID", err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return reply(c, h.Hierarchy.DeleteEmployee(ctx, id), fiber.StatusOK)
}
