package handlers

import (
	"expense-audit/internal/queue"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HealthHandler struct {
	db     *pgxpool.Pool
	rdb    *redis.Client
	queue  *queue.Queue
	logger *zap.Logger
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, q *queue.Queue, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		rdb:    rdb,
		queue:  q,
		logger: logger,
	}
}

// Health godoc
// @Summary Health check
// @Description Reports service health including database, Redis and queue depth
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := fiber.StatusOK
	checks := fiber.Map{
		"database": "ok",
		"redis":    "ok",
	}

	if err := h.db.Ping(c.Context()); err != nil {
		h.logger.Error("Database health check failed", zap.Error(err))
		checks["database"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	}

	if err := h.rdb.Ping(c.Context()).Err(); err != nil {
		h.logger.Error("Redis health check failed", zap.Error(err))
		checks["redis"] = "unavailable"
		status = fiber.StatusServiceUnavailable
	} else if depth, err := h.queue.Depth(c.Context()); err == nil {
		checks["queue_depth"] = depth
	}

	checks["status"] = "ok"
	if status != fiber.StatusOK {
		checks["status"] = "degraded"
	}

	return c.Status(status).JSON(checks)
}
