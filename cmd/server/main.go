package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/saeid-a/CoachCareBack/internal/config"
	"github.com/saeid-a/CoachCareBack/internal/database"
	"github.com/saeid-a/CoachCareBack/internal/middleware"
	"github.com/saeid-a/CoachCareBack/internal/observ"
	"github.com/saeid-a/CoachCareBack/internal/routes"
	"github.com/saeid-a/CoachCareBack/internal/services"
	chatws "github.com/saeid-a/CoachCareBack/internal/websocket"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := observ.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	pool, err := database.Connect(ctx, cfg.DBUrl, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	// 3. Optional media storage and cross-instance chat relay
	var storage services.StorageService
	if cfg.MediaEnabled() {
		s3Storage, err := services.NewS3StorageService(ctx, services.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Bucket:          cfg.S3.Bucket,
		}, logger)
		if err != nil {
			logger.Fatal("failed to configure media storage", zap.Error(err))
		}
		storage = s3Storage
	} else {
		logger.Info("media uploads disabled, S3_BUCKET not set")
	}

	var relay chatws.Relay
	if cfg.RedisURL != "" {
		redisRelay, err := chatws.NewRedisRelay(ctx, cfg.RedisURL, chatws.DefaultRelayChannel, logger)
		if err != nil {
			logger.Fatal("failed to connect chat relay", zap.Error(err))
		}
		defer func() { _ = redisRelay.Close() }()
		relay = redisRelay
	}

	hub := chatws.NewHub(relay, logger.Named("hub"))
	go hub.Run(ctx)

	// 4. Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:      "coachcare",
		ErrorHandler: jsonErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger(logger))
	app.Use(middleware.Metrics())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Accept-Language, Authorization",
	}))

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	if err := routes.RegisterRoutes(app, cfg, routes.Deps{
		DB:      pool,
		Logger:  logger,
		Storage: storage,
		Hub:     hub,
	}); err != nil {
		logger.Fatal("failed to register routes", zap.Error(err))
	}

	// 5. Start Server
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
