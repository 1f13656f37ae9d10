package redis

import (
	"context"
	"time"

	"expense-audit/pkg/config"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect dials Redis with a bounded retry loop and returns the client
// together with a redislock client bound to it.
func Connect(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*redis.Client, *redislock.Client, error) {
	var lastErr error

	for attempt := 1; attempt <= 5; attempt++ {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: 100,
		})

		if err := rdb.Ping(ctx).Err(); err == nil {
			logger.Info("Redis connection established",
				zap.String("addr", cfg.Addr),
				zap.Int("attempt", attempt),
			)
			return rdb, redislock.New(rdb), nil
		} else {
			lastErr = err
			_ = rdb.Close()
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.Warn("Failed to connect to redis, retrying",
			zap.String("addr", cfg.Addr),
			zap.Int("attempt", attempt),
			zap.Duration("sleep", sleep),
			zap.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(sleep):
		}
	}

	return nil, nil, lastErr
}
