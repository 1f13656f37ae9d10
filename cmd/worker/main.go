package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-audit/internal/llm"
	"expense-audit/internal/ocr"
	"expense-audit/internal/pipeline"
	"expense-audit/internal/queue"
	"expense-audit/internal/repository"
	"expense-audit/internal/storage"
	"expense-audit/pkg/config"
	"expense-audit/pkg/logger"
	"expense-audit/pkg/postgres"
	"expense-audit/pkg/redis"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

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
	appLogger.Info("Starting expense audit worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis and the distributed lock client
	rdb, locker, err := redis.Connect(ctx, &cfg.Redis, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Initialize repositories and stores
	reportRepo := repository.NewReportRepository(db, appLogger)
	receiptRepo := repository.NewReceiptRepository(db, appLogger)
	auditRepo := repository.NewAuditRepository(db, appLogger)

	imageStore, err := storage.NewFSStore(cfg.Storage.UploadDir, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize image store", zap.Error(err))
	}

	// Pipeline dependencies
	ocrEngine := ocr.NewEngine(appLogger)
	llmClient := llm.NewClient(&cfg.Groq, appLogger)
	duplicates := &duplicateChecker{receipts: receiptRepo}

	runner := pipeline.NewRunner(ocrEngine, llmClient, llmClient, duplicates, &cfg.Policy, appLogger)

	jobQueue := queue.New(rdb, appLogger)
	worker := queue.NewWorker(
		jobQueue,
		queue.NewRedisLocker(locker),
		runner,
		receiptRepo,
		reportRepo,
		auditRepo,
		imageStore,
		&cfg.Worker,
		appLogger,
	)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		appLogger.Info("Shutting down worker")
		cancel()
	}()

	worker.Start(ctx)
}

// duplicateChecker adapts the receipt repository to the pipeline's
// duplicate-detection capability.
type duplicateChecker struct {
	receipts *repository.ReceiptRepository
}

func (d *duplicateChecker) IsDuplicate(ctx context.Context, receiptID uuid.UUID, merchant string, total decimal.Decimal, date time.Time) (bool, error) {
	count, err := d.receipts.CountMatching(ctx, receiptID, merchant, total, date)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
