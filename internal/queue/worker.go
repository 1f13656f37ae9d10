package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"expense-audit/internal/models"
	"expense-audit/internal/pipeline"
	"expense-audit/pkg/config"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	dequeueTimeout  = 5 * time.Second
	promoteInterval = 5 * time.Second
)

type ReceiptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.ReceiptStatus) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason, notes string) error
	SaveResults(ctx context.Context, receipt *models.Receipt) error
	ListRescanCandidates(ctx context.Context, since time.Time, maxScore int) ([]*models.Receipt, error)
}

type ReportStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExpenseReport, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error
	RecomputeTotal(ctx context.Context, reportID uuid.UUID) (decimal.Decimal, error)
}

type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
}

type PipelineRunner interface {
	Run(ctx context.Context, receiptID, reportID uuid.UUID, imagePath string) (pipeline.State, error)
}

type ImagePather interface {
	Path(ref string) string
}

// JobQueue is the durable queue surface the worker drives.
type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Defer(ctx context.Context, job Job, delay time.Duration) error
	DeadLetter(ctx context.Context, job Job, reason string) error
	PromoteDue(ctx context.Context) (int, error)
	Reclaim(ctx context.Context, consumer string) (int, error)
}

// Lock is a held distributed lock that can be kept alive and released.
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
	Release(ctx context.Context) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (Lock, error)
}

// NewRedisLocker adapts a redislock client to the Locker interface.
func NewRedisLocker(client *redislock.Client) Locker {
	return &redisLocker{client: client}
}

type redisLocker struct {
	client *redislock.Client
}

func (l *redisLocker) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (Lock, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, opt)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// Worker consumes receipt jobs and drives them through the pipeline. Each
// receipt is guarded by a Redis lock so concurrent workers and redelivered
// jobs never process the same receipt twice at once.
type Worker struct {
	queue    JobQueue
	locker   Locker
	runner   PipelineRunner
	receipts ReceiptStore
	reports  ReportStore
	audit    AuditStore
	images   ImagePather
	cfg      *config.WorkerConfig
	logger   *zap.Logger
}

func NewWorker(
	queue JobQueue,
	locker Locker,
	runner PipelineRunner,
	receipts ReceiptStore,
	reports ReportStore,
	audit AuditStore,
	images ImagePather,
	cfg *config.WorkerConfig,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		queue:    queue,
		locker:   locker,
		runner:   runner,
		receipts: receipts,
		reports:  reports,
		audit:    audit,
		images:   images,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start reclaims jobs leased by a previous run, then runs the consumer loops
// plus the promoter and rescan tickers until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Worker starting",
		zap.String("name", w.cfg.Name),
		zap.Int("concurrency", w.cfg.Concurrency),
	)

	for i := 0; i < w.cfg.Concurrency; i++ {
		consumer := w.consumerName(i)
		reclaimed, err := w.queue.Reclaim(ctx, consumer)
		if err != nil {
			w.logger.Error("Failed to reclaim leased jobs", zap.String("consumer", consumer), zap.Error(err))
			continue
		}
		if reclaimed > 0 {
			w.logger.Info("Reclaimed jobs from previous run",
				zap.String("consumer", consumer),
				zap.Int("count", reclaimed),
			)
		}
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.promote(ctx)
	}()

	if w.cfg.RescanInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.rescanLoop(ctx)
		}()
	}

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.consume(ctx, id)
		}(i)
	}

	wg.Wait()
	w.logger.Info("Worker stopped")
}

// promote periodically moves deferred jobs whose backoff elapsed back onto
// the ready list.
func (w *Worker) promote(ctx context.Context) {
	ticker := time.NewTicker(promoteInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.queue.PromoteDue(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to promote deferred jobs", zap.Error(err))
			}
		}
	}
}

func (w *Worker) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.rescanOnce(ctx)
		}
	}
}

// rescanOnce re-queues recently processed receipts whose fraud score stayed
// below the rescan ceiling. A duplicate submitted after the first pass only
// shows up on the re-run.
func (w *Worker) rescanOnce(ctx context.Context) {
	since := time.Now().UTC().Add(-w.cfg.RescanWindow)
	candidates, err := w.receipts.ListRescanCandidates(ctx, since, w.cfg.RescanMaxScore)
	if err != nil {
		w.logger.Error("Fraud rescan query failed", zap.Error(err))
		return
	}

	queued := 0
	for _, receipt := range candidates {
		if err := w.receipts.SetStatus(ctx, receipt.ID, models.ReceiptStatusUploaded); err != nil {
			w.logger.Error("Failed to reset receipt for rescan",
				zap.String("receipt_id", receipt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if err := w.queue.Enqueue(ctx, Job{ReceiptID: receipt.ID, Attempt: 1}); err != nil {
			w.logger.Error("Failed to queue receipt for rescan",
				zap.String("receipt_id", receipt.ID.String()),
				zap.Error(err),
			)
			continue
		}
		queued++
	}

	if queued > 0 {
		w.logger.Info("Fraud rescan queued receipts", zap.Int("count", queued))
	}
}

func (w *Worker) consume(ctx context.Context, consumerID int) {
	consumer := w.consumerName(consumerID)
	log := w.logger.With(zap.String("consumer", consumer))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delivery, err := w.queue.Dequeue(ctx, consumer, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Dequeue failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if delivery == nil {
			continue
		}

		if err := w.Process(ctx, delivery.Job); err != nil {
			// Keep the lease: the payload stays on the processing list and
			// is reclaimed on the next worker start.
			log.Error("Job not settled, keeping lease", zap.Error(err))
			continue
		}
		if err := w.queue.Ack(context.WithoutCancel(ctx), delivery); err != nil {
			log.Error("Failed to ack job", zap.Error(err))
		}
	}
}

func (w *Worker) consumerName(id int) string {
	return fmt.Sprintf("%s-%d", w.cfg.Name, id)
}

// Process handles a single job end to end. A nil return means the job is
// settled (finished, deferred or dead-lettered) and its lease can be acked; an
// error means no durable copy exists outside the processing list, so the
// caller must keep the lease.
func (w *Worker) Process(ctx context.Context, job Job) error {
	log := w.logger.With(
		zap.String("receipt_id", job.ReceiptID.String()),
		zap.String("trace_id", job.TraceID),
		zap.Int("attempt", job.Attempt),
	)

	lock, err := w.locker.Obtain(ctx, lockKey(job.ReceiptID), w.cfg.LockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			// Another worker holds this receipt; try again later without
			// burning an attempt.
			log.Debug("Receipt locked elsewhere, deferring")
			return w.queue.Defer(context.WithoutCancel(ctx), job, w.cfg.InitialBackoff)
		}
		log.Error("Failed to obtain receipt lock", zap.Error(err))
		return w.retryOrDead(ctx, job, fmt.Sprintf("lock: %v", err))
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn("Failed to release receipt lock", zap.Error(err))
		}
	}()

	stopRefresh := make(chan struct{})
	go w.keepLockAlive(ctx, lock, stopRefresh, log)
	defer close(stopRefresh)

	receipt, err := w.receipts.GetByID(ctx, job.ReceiptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Warn("Receipt no longer exists, dropping job")
			return nil
		}
		log.Error("Failed to load receipt", zap.Error(err))
		return w.retryOrDead(ctx, job, fmt.Sprintf("load receipt: %v", err))
	}

	if receipt.Status.Terminal() {
		// Redelivered job for an already finished receipt.
		log.Info("Receipt already terminal, dropping job", zap.String("status", string(receipt.Status)))
		return nil
	}

	if err := w.receipts.SetStatus(ctx, receipt.ID, models.ReceiptStatusProcessing); err != nil {
		log.Error("Failed to mark receipt processing", zap.Error(err))
		return w.retryOrDead(ctx, job, fmt.Sprintf("set status: %v", err))
	}

	state, err := w.runner.Run(ctx, receipt.ID, receipt.ReportID, w.images.Path(receipt.ImageRef))
	if err != nil {
		log.Warn("Pipeline hit transient error", zap.Error(err))
		return w.retryOrDead(ctx, job, err.Error())
	}

	if state.Failed() {
		if err := w.receipts.MarkFailed(ctx, receipt.ID, state.FailureReason, strings.Join(state.AuditNotes, "\n")); err != nil {
			log.Error("Failed to persist failed receipt", zap.Error(err))
			return w.retryOrDead(ctx, job, fmt.Sprintf("persist failure: %v", err))
		}
		w.recomputeTotal(ctx, receipt.ReportID, log)
		log.Info("Receipt failed terminally", zap.String("reason", state.FailureReason))
		return nil
	}

	applyState(receipt, state)
	if err := w.receipts.SaveResults(ctx, receipt); err != nil {
		log.Error("Failed to persist pipeline results", zap.Error(err))
		return w.retryOrDead(ctx, job, fmt.Sprintf("persist results: %v", err))
	}

	w.recomputeTotal(ctx, receipt.ReportID, log)

	if state.Risk != nil && state.Risk.RequiresManualReview {
		w.flagReport(ctx, receipt.ReportID, state.Risk, log)
	}

	log.Info("Receipt processed",
		zap.String("status", string(receipt.Status)),
		zap.Int("fraud_score", receipt.FraudScore),
	)
	return nil
}

// keepLockAlive refreshes the receipt lock at a third of its TTL so a run
// that outlasts the TTL keeps its exclusivity.
func (w *Worker) keepLockAlive(ctx context.Context, lock Lock, stop <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(w.cfg.LockTTL / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, w.cfg.LockTTL, nil); err != nil {
				log.Warn("Failed to refresh receipt lock", zap.Error(err))
				return
			}
		}
	}
}

// retryOrDead defers the job with doubled backoff, or parks it in the dead
// letter queue once attempts are exhausted. Exhausted jobs also mark the
// receipt failed so it does not sit in PROCESSING forever.
func (w *Worker) retryOrDead(ctx context.Context, job Job, reason string) error {
	if job.Attempt >= w.cfg.MaxAttempts {
		if err := w.queue.DeadLetter(context.WithoutCancel(ctx), job, reason); err != nil {
			return fmt.Errorf("dead-letter job: %w", err)
		}
		note := fmt.Sprintf("gave up after %d attempt(s): %s", job.Attempt, reason)
		if err := w.receipts.MarkFailed(context.WithoutCancel(ctx), job.ReceiptID, "RetriesExhausted", note); err != nil {
			w.logger.Error("Failed to mark receipt failed after retries", zap.Error(err))
		}
		return nil
	}

	next := job
	next.Attempt++
	return w.queue.Defer(context.WithoutCancel(ctx), next, Backoff(w.cfg.InitialBackoff, job.Attempt))
}

func (w *Worker) recomputeTotal(ctx context.Context, reportID uuid.UUID, log *zap.Logger) {
	total, err := w.reports.RecomputeTotal(ctx, reportID)
	if err != nil {
		log.Error("Failed to recompute report total", zap.Error(err))
		return
	}
	log.Debug("Report total recomputed", zap.String("total", total.StringFixed(2)))
}

// flagReport moves a PENDING report to FLAGGED when a receipt scores above
// the manual-review threshold. Reports already decided by a reviewer are
// left alone.
func (w *Worker) flagReport(ctx context.Context, reportID uuid.UUID, risk *models.RiskAssessment, log *zap.Logger) {
	report, err := w.reports.GetByID(ctx, reportID)
	if err != nil {
		log.Error("Failed to load report for flagging", zap.Error(err))
		return
	}
	if report.Status != models.ReportStatusPending {
		return
	}

	if err := w.reports.UpdateStatus(ctx, reportID, models.ReportStatusFlagged); err != nil {
		log.Error("Failed to flag report", zap.Error(err))
		return
	}

	entry := &models.AuditLogEntry{
		ID:        uuid.New(),
		ReportID:  reportID,
		ActorID:   nil,
		Action:    models.AuditActionFlag,
		Note:      fmt.Sprintf("auto-flagged: receipt fraud score %d (%s)", risk.Score, risk.RiskLevel),
		CreatedAt: time.Now().UTC(),
	}
	if err := w.audit.Create(ctx, entry); err != nil {
		log.Error("Failed to write audit entry for auto-flag", zap.Error(err))
	}

	log.Warn("Report auto-flagged for manual review",
		zap.String("report_id", reportID.String()),
		zap.Int("fraud_score", risk.Score),
	)
}

func lockKey(receiptID uuid.UUID) string {
	return "receipt:lock:" + receiptID.String()
}

// applyState copies the terminal pipeline outcome onto the receipt row.
func applyState(receipt *models.Receipt, st pipeline.State) {
	receipt.Status = st.Status
	receipt.OCRText = st.OCRText
	receipt.AuditNotes = strings.Join(st.AuditNotes, "\n")

	if st.Fields != nil {
		f := st.Fields
		receipt.MerchantName = optString(f.MerchantName)
		receipt.MerchantAddress = optString(f.MerchantAddress)
		receipt.TransactionTime = optString(f.TransactionTime)
		receipt.PaymentMethod = optString(f.PaymentMethod)
		receipt.Currency = optString(f.Currency)
		receipt.Subtotal = f.Subtotal
		receipt.TaxAmount = f.TaxAmount
		total := f.TotalAmount
		receipt.TotalAmount = &total
		confidence := f.Confidence
		receipt.Confidence = &confidence
		receipt.Items = f.Items
	}
	receipt.TransactionDate = st.TxDate

	receipt.ValidationFlags = st.ValidationFlags
	if st.Risk != nil {
		receipt.FraudScore = st.Risk.Score
		receipt.RiskLevel = st.Risk.RiskLevel
		receipt.FraudFlags = st.Risk.Flags
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
