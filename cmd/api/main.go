package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"orgdirectory/configs"
	v1 "orgdirectory/internal/api/v1"
	"orgdirectory/internal/api/v1/handlers"
	"orgdirectory/internal/config"
	"orgdirectory/internal/middleware"
	"orgdirectory/internal/notify"
	"orgdirectory/internal/repository"
	"orgdirectory/internal/service"
	myws "orgdirectory/internal/websocket"
	"orgdirectory/pkg/crypto"
	"orgdirectory/pkg/database"
	"orgdirectory/pkg/logger"
)

func main() {
	// Load config
	cfg := configs.LoadConfig()

	// Loggers
	if err := logger.InitLoggers(cfg.LogDir); err != nil {
		log.Fatalf("Failed to initialize loggers: %v", err)
	}
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application", zap.String("time", time.Now().Format(time.RFC3339)))

	config.SecretKey = []byte(cfg.JWTSecret)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.ErrorLogger.Error("Failed to open store", zap.Error(err))
		log.Fatalf("Failed to open store: %v", err)
	}
	defer closeStore()

	// Redis is optional; without it employee views are not cached.
	var hierarchyOpts []service.HierarchyOption
	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		logger.ErrorLogger.Error("Redis connection error, cache disabled", zap.Error(err))
	} else if rdb != nil {
		defer rdb.Close()
		hierarchyOpts = append(hierarchyOpts, service.WithViewCache(repository.NewEmployeeCache(rdb, time.Hour)))
		logger.SystemLogger.Info("Redis Connected")
	}

	hub := myws.NewHub(256)
	go hub.Run()
	defer hub.Stop()
	hierarchyOpts = append(hierarchyOpts, service.WithTaskPublisher(hub))

	policy := crypto.OtpPolicy{
		Length:      crypto.OtpLength,
		TTL:         cfg.OtpTTL,
		MaxResends:  cfg.OtpMaxResends,
		MaxAttempts: cfg.OtpMaxAttempts,
	}
	identity := service.NewIdentityService(store, notify.New(cfg), policy, cfg.OtpEncryptionKey)
	hierarchy := service.NewHierarchyService(store, hierarchyOpts...)

	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DBTimeout)
		res := identity.SeedAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
		cancel()
		if !res.Success {
			logger.ErrorLogger.Error("Failed to seed admin user", zap.String("message", res.Message))
		}
	}

	app := fiber.New()

	// Middleware
	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	// API v1 routes
	v1.RegisterRoutes(app, handlers.New(identity, hierarchy, cfg.JWTTTL, cfg.DBTimeout), hub)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.SystemLogger.Info("Shutting down")
		if err := app.Shutdown(); err != nil {
			logger.ErrorLogger.Error("Shutdown failed", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.AppPort)
	logger.SystemLogger.Info("Application ready", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.ErrorLogger.Error("Application failed to start", zap.Error(err))
	}
}

// openStore picks the directory store from STORE_DRIVER.
func openStore(cfg configs.Config) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.SystemLogger.Warn("Using in-memory store, data is lost on restart")
		return repository.NewMemoryStore(), func() {}, nil
	case "postgres", "":
		db, err := database.ConnectDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.SystemLogger.Info("Database Connected")
		// Create tables if missing
		if err := repository.CreateTableIfNotExists(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repository.NewPostgresStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
