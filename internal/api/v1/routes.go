package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"orgdirectory/internal/api/v1/handlers"
	"orgdirectory/internal/middleware"
	"orgdirectory/internal/models"
	myws "orgdirectory/internal/websocket"
	"orgdirectory/pkg/logger"
)

func RegisterRoutes(app *fiber.App, h *handlers.Handler, hub *myws.Hub) {
	api := app.Group("/api/v1")

	// Auth
	api.Post("/register", h.Register)
	api.Post("/login", h.Login)
	api.Post("/otp/verify", h.VerifyOtp)
	api.Post("/otp/resend", h.ResendOtp)

	admin := middleware.RequireRoles(models.RoleAdmin)
	adminOrManager := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)

	// User
	userRoutes := api.Group("/users", middleware.UseToken)
	userRoutes.Post("/", admin, h.CreateUser)
	userRoutes.Get("/:id", h.GetUser)
	userRoutes.Post("/:id/otp/reset", admin, h.ResetOtpResends)

	// Department
	deptRoutes := api.Group("/departments", middleware.UseToken, admin)
	deptRoutes.Post("/", h.CreateDepartment)
	deptRoutes.Delete("/:id", h.DeleteDepartment)

	// Manager
	mgrRoutes := api.Group("/managers", middleware.UseToken)
	mgrRoutes.Post("/", admin, h.CreateManager)
	mgrRoutes.Delete("/:id", admin, h.DeleteManager)
	mgrRoutes.Get("/:id/employees", adminOrManager, h.GetEmployeesByManager)

	// Employee
	empRoutes := api.Group("/employees", middleware.UseToken)
	empRoutes.Post("/", admin, h.CreateEmployee)
	empRoutes.Get("/:id", adminOrManager, h.GetEmployee)
	empRoutes.Put("/:id", admin, h.UpdateEmployee)
	empRoutes.Delete("/:id", admin, h.DeleteEmployee)
	empRoutes.Post("/:id/tasks", admin, h.AssignTask)

	// Task
	taskRoutes := api.Group("/tasks", middleware.UseToken, admin)
	taskRoutes.Get("/:id", h.GetTask)
	taskRoutes.Put("/:id", h.UpdateTask)
	taskRoutes.Put("/:id/status", h.UpdateTaskStatus)
	taskRoutes.Delete("/:id", h.DeleteTask)

	if hub != nil {
		registerWebsocket(app, hub)
	}
}

// registerWebsocket exposes the task event stream at /ws/tasks.
func registerWebsocket(app *fiber.App, hub *myws.Hub) {
	app.Use("/ws", middleware.UseToken, middleware.RequireRoles(models.RoleAdmin), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/tasks", websocket.New(func(c *websocket.Conn) {
		client := &myws.Client{Conn: c}
		hub.Register(client)
		defer hub.Unregister(client)
		logger.SystemLogger.Info("Task stream subscriber connected", zap.Any("user_id", c.Locals("userID")))
		// Subscribers only listen; reading detects the close.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))
}
