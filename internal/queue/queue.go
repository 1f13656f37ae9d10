package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	receiptsKey      = "queue:receipts"
	delayedKey       = "queue:receipts:delayed"
	deadLetterKey    = "queue:receipts:dead"
	processingPrefix = "queue:receipts:processing:"
)

// Job is one unit of pipeline work, serialized as JSON on a Redis list.
type Job struct {
	ReceiptID   uuid.UUID `json:"receipt_id"`
	Attempt     int       `json:"attempt"`
	TraceID     string    `json:"trace_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Delivery is one leased job. The raw payload stays on the consumer's
// processing list until Ack, so a worker that crashes mid-job leaves a durable
// copy behind for Reclaim.
type Delivery struct {
	Job           Job
	Payload       string
	ProcessingKey string
}

// Queue is a Redis work queue with at-least-once delivery: ready jobs live on
// a list, leased jobs on per-consumer processing lists, and deferred retries
// in a sorted set scored by their ready time. Jobs that exhaust their attempts
// move to a dead-letter list for inspection.
type Queue struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Queue {
	return &Queue{
		rdb:    rdb,
		logger: logger,
	}
}

// Enqueue pushes a job to the head of the ready list; consumers lease from the
// tail, so delivery is FIFO.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.TraceID == "" {
		job.TraceID = uuid.NewString()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.rdb.LPush(ctx, receiptsKey, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Info("Job enqueued",
		zap.String("receipt_id", job.ReceiptID.String()),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// Dequeue leases the next job: BLMOVE shifts it from the ready list onto the
// consumer's processing list in one atomic step, so the job survives a worker
// crash. A nil delivery with a nil error means the wait timed out.
func (q *Queue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*Delivery, error) {
	key := processingKey(consumer)
	payload, err := q.rdb.BLMove(ctx, receiptsKey, key, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		q.logger.Error("Discarding malformed job payload", zap.Error(err))
		q.rdb.LRem(ctx, key, 1, payload)
		return nil, nil
	}

	return &Delivery{Job: job, Payload: payload, ProcessingKey: key}, nil
}

// Ack drops the leased payload from the processing list. Call it only once the
// job's outcome is durably recorded somewhere else.
func (q *Queue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.rdb.LRem(ctx, d.ProcessingKey, 1, d.Payload).Err(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}
	return nil
}

// Defer schedules a job to become ready again after delay. The payload waits
// in the delayed sorted set until PromoteDue moves it back to the ready list.
func (q *Queue) Defer(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	readyAt := time.Now().Add(delay)
	member := redis.Z{Score: float64(readyAt.Unix()), Member: payload}
	if err := q.rdb.ZAdd(ctx, delayedKey, member).Err(); err != nil {
		return fmt.Errorf("defer job: %w", err)
	}

	q.logger.Info("Job deferred",
		zap.String("receipt_id", job.ReceiptID.String()),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempt", job.Attempt),
		zap.Duration("delay", delay),
	)
	return nil
}

// PromoteDue moves jobs whose ready time has passed back to the ready list.
// ZREM is checked before the push so concurrent promoters move each job once.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	promoted := 0
	for _, payload := range due {
		removed, err := q.rdb.ZRem(ctx, delayedKey, payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("claim due job: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.rdb.LPush(ctx, receiptsKey, payload).Err(); err != nil {
			// Put it back as immediately due so the job is not lost.
			q.rdb.ZAdd(ctx, delayedKey, redis.Z{Score: 0, Member: payload})
			return promoted, fmt.Errorf("promote job: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// Reclaim drains a consumer's processing list back onto the ready list. Run it
// at startup so jobs leased by a crashed previous run are retried first.
func (q *Queue) Reclaim(ctx context.Context, consumer string) (int, error) {
	key := processingKey(consumer)
	reclaimed := 0
	for {
		_, err := q.rdb.LMove(ctx, key, receiptsKey, "LEFT", "RIGHT").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return reclaimed, nil
			}
			return reclaimed, fmt.Errorf("reclaim job: %w", err)
		}
		reclaimed++
	}
}

// DeadLetter parks a job that exhausted its attempts.
func (q *Queue) DeadLetter(ctx context.Context, job Job, reason string) error {
	entry := struct {
		Job      Job       `json:"job"`
		Reason   string    `json:"reason"`
		FailedAt time.Time `json:"failed_at"`
	}{
		Job:      job,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := q.rdb.LPush(ctx, deadLetterKey, payload).Err(); err != nil {
		return fmt.Errorf("push dead letter: %w", err)
	}

	q.logger.Warn("Job moved to dead letter queue",
		zap.String("receipt_id", job.ReceiptID.String()),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempt", job.Attempt),
		zap.String("reason", reason),
	)
	return nil
}

// Depth returns the number of jobs waiting to run, deferred ones included.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	waiting, err := q.rdb.LLen(ctx, receiptsKey).Result()
	if err != nil {
		return 0, err
	}
	delayed, err := q.rdb.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return 0, err
	}
	return waiting + delayed, nil
}

// Backoff computes the delay before re-enqueueing a failed attempt, doubling
// per attempt: initial, 2x, 4x, ...
func Backoff(initial time.Duration, attempt int) time.Duration {
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func processingKey(consumer string) string {
	return processingPrefix + consumer
}
