package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"expense-audit/internal/api"
	"expense-audit/internal/api/handlers"
	"expense-audit/internal/queue"
	"expense-audit/internal/repository"
	"expense-audit/internal/service"
	"expense-audit/internal/storage"
	"expense-audit/pkg/auth"
	"expense-audit/pkg/config"
	"expense-audit/pkg/logger"
	"expense-audit/pkg/postgres"
	"expense-audit/pkg/redis"

	"go.uber.org/zap"
)

// @title Expense Audit API
// @version 1.0
// @description Receipt processing service: upload receipt images, extract fields via OCR and LLM, score fraud risk and review expense reports.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level, cfg.Debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting expense audit service")

	// Initialize database
	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	rdb, _, err := redis.Connect(ctx, &cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db, appLogger)
	reportRepo := repository.NewReportRepository(db, appLogger)
	receiptRepo := repository.NewReceiptRepository(db, appLogger)
	auditRepo := repository.NewAuditRepository(db, appLogger)

	// Initialize image store and queue
	imageStore, err := storage.NewFSStore(cfg.Storage.UploadDir, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize image store", zap.Error(err))
	}
	jobQueue := queue.New(rdb, appLogger)

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	reportService := service.NewReportService(reportRepo, receiptRepo, auditRepo, imageStore, appLogger)
	receiptService := service.NewReceiptService(receiptRepo, reportRepo, imageStore, jobQueue, cfg.Storage.MaxFileSize, appLogger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, appLogger)
	reportHandler := handlers.NewReportHandler(reportService, appLogger)
	receiptHandler := handlers.NewReceiptHandler(receiptService, appLogger)
	healthHandler := handlers.NewHealthHandler(db, rdb, jobQueue, appLogger)

	// Setup router
	app := api.SetupRouter(
		authHandler,
		reportHandler,
		receiptHandler,
		healthHandler,
		jwtManager,
		imageStore.Dir(),
		cfg.Storage.MaxFileSize,
		appLogger,
	)

	// Start server
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
