package main

import (
	"context"
	"log"
	"time"

	"expense-audit/internal/models"
	"expense-audit/internal/repository"
	"expense-audit/pkg/auth"
	"expense-audit/pkg/config"
	"expense-audit/pkg/logger"
	"expense-audit/pkg/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Applies the schema and creates the default admin user. Safe to run
// repeatedly: DDL statements are idempotent and the admin is only created
// when missing.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Debug); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Applying database schema")
	if err := repository.Migrate(ctx, db); err != nil {
		appLogger.Fatal("Migration failed", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db, appLogger)

	adminEmail := "admin@example.com"
	if existing, _ := userRepo.GetByEmail(ctx, adminEmail); existing != nil {
		appLogger.Info("Admin user already exists, skipping")
		return
	}

	hashed, err := auth.HashPassword("admin12345")
	if err != nil {
		appLogger.Fatal("Failed to hash admin password", zap.Error(err))
	}

	now := time.Now()
	admin := &models.User{
		ID:           uuid.New(),
		Username:     "admin",
		Email:        adminEmail,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		appLogger.Fatal("Failed to create admin user", zap.Error(err))
	}

	appLogger.Info("Database seeding completed", zap.String("admin_email", adminEmail))
}
