package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"expense-audit/internal/models"
	"expense-audit/internal/pipeline"
	"expense-audit/pkg/config"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type deferredJob struct {
	job   Job
	delay time.Duration
}

type fakeJobQueue struct {
	enqueued  []Job
	deferred  []deferredJob
	dead      []Job
	reclaimed []string
	deferErr  error
}

func (f *fakeJobQueue) Enqueue(ctx context.Context, job Job) error {
	f.enqueued = append(f.enqueued, job)
	return nil
}

func (f *fakeJobQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (*Delivery, error) {
	return nil, nil
}

func (f *fakeJobQueue) Ack(ctx context.Context, d *Delivery) error {
	return nil
}

func (f *fakeJobQueue) Defer(ctx context.Context, job Job, delay time.Duration) error {
	if f.deferErr != nil {
		return f.deferErr
	}
	f.deferred = append(f.deferred, deferredJob{job: job, delay: delay})
	return nil
}

func (f *fakeJobQueue) DeadLetter(ctx context.Context, job Job, reason string) error {
	f.dead = append(f.dead, job)
	return nil
}

func (f *fakeJobQueue) PromoteDue(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeJobQueue) Reclaim(ctx context.Context, consumer string) (int, error) {
	f.reclaimed = append(f.reclaimed, consumer)
	return 0, nil
}

type fakeLock struct {
	refreshes atomic.Int32
	released  atomic.Int32
}

func (l *fakeLock) Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error {
	l.refreshes.Add(1)
	return nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released.Add(1)
	return nil
}

type fakeLocker struct {
	lock *fakeLock
	err  error
}

func (f *fakeLocker) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (Lock, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.lock, nil
}

type fakeWorkerReceiptStore struct {
	receipts      map[uuid.UUID]*models.Receipt
	getCalls      int
	statusLog     []models.ReceiptStatus
	failedReasons []string
	saved         []*models.Receipt
	rescan        []*models.Receipt
}

func newFakeWorkerReceiptStore() *fakeWorkerReceiptStore {
	return &fakeWorkerReceiptStore{receipts: make(map[uuid.UUID]*models.Receipt)}
}

func (f *fakeWorkerReceiptStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	f.getCalls++
	receipt, ok := f.receipts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return receipt, nil
}

func (f *fakeWorkerReceiptStore) SetStatus(ctx context.Context, id uuid.UUID, status models.ReceiptStatus) error {
	if receipt, ok := f.receipts[id]; ok {
		receipt.Status = status
	}
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *fakeWorkerReceiptStore) MarkFailed(ctx context.Context, id uuid.UUID, reason, notes string) error {
	f.failedReasons = append(f.failedReasons, reason)
	return nil
}

func (f *fakeWorkerReceiptStore) SaveResults(ctx context.Context, receipt *models.Receipt) error {
	f.saved = append(f.saved, receipt)
	return nil
}

func (f *fakeWorkerReceiptStore) ListRescanCandidates(ctx context.Context, since time.Time, maxScore int) ([]*models.Receipt, error) {
	return f.rescan, nil
}

type fakeWorkerReportStore struct {
	statusLog  []models.ReportStatus
	recomputed []uuid.UUID
}

func (f *fakeWorkerReportStore) GetByID(ctx context.Context, id uuid.UUID) (*models.ExpenseReport, error) {
	return &models.ExpenseReport{ID: id, Status: models.ReportStatusPending}, nil
}

func (f *fakeWorkerReportStore) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error {
	f.statusLog = append(f.statusLog, status)
	return nil
}

func (f *fakeWorkerReportStore) RecomputeTotal(ctx context.Context, reportID uuid.UUID) (decimal.Decimal, error) {
	f.recomputed = append(f.recomputed, reportID)
	return decimal.Zero, nil
}

type fakeWorkerAuditStore struct {
	entries []*models.AuditLogEntry
}

func (f *fakeWorkerAuditStore) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakePather struct{}

func (fakePather) Path(ref string) string { return "/data/uploads/" + ref }

type fakeRunner struct {
	state pipeline.State
	err   error
	delay time.Duration
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, receiptID, reportID uuid.UUID, imagePath string) (pipeline.State, error) {
	f.calls++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.state, f.err
}

var _ = Describe("Worker", func() {
	var (
		q        *fakeJobQueue
		lock     *fakeLock
		locker   *fakeLocker
		receipts *fakeWorkerReceiptStore
		reports  *fakeWorkerReportStore
		audit    *fakeWorkerAuditStore
		runner   *fakeRunner
		cfg      *config.WorkerConfig
		w        *Worker

		ctx     context.Context
		receipt *models.Receipt
		job     Job
	)

	BeforeEach(func() {
		q = &fakeJobQueue{}
		lock = &fakeLock{}
		locker = &fakeLocker{lock: lock}
		receipts = newFakeWorkerReceiptStore()
		reports = &fakeWorkerReportStore{}
		audit = &fakeWorkerAuditStore{}
		runner = &fakeRunner{state: pipeline.State{Status: models.ReceiptStatusDone}}
		cfg = &config.WorkerConfig{
			Name:           "test",
			Concurrency:    2,
			MaxAttempts:    3,
			LockTTL:        30 * time.Millisecond,
			InitialBackoff: time.Minute,
		}
		w = NewWorker(q, locker, runner, receipts, reports, audit, fakePather{}, cfg, zap.NewNop())

		ctx = context.Background()
		receipt = &models.Receipt{
			ID:       uuid.New(),
			ReportID: uuid.New(),
			ImageRef: "r.jpg",
			Status:   models.ReceiptStatusUploaded,
		}
		receipts.receipts[receipt.ID] = receipt
		job = Job{ReceiptID: receipt.ID, Attempt: 1, TraceID: "t-1"}
	})

	Describe("Process", func() {
		It("persists the pipeline outcome and releases the lock", func() {
			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(receipts.statusLog).To(ContainElement(models.ReceiptStatusProcessing))
			Expect(receipts.saved).To(HaveLen(1))
			Expect(reports.recomputed).To(ContainElement(receipt.ReportID))
			Expect(lock.released.Load()).To(Equal(int32(1)))
			Expect(q.deferred).To(BeEmpty())
		})

		It("defers transiently failed jobs durably with doubled backoff", func() {
			runner.err = errors.New("model unavailable")
			job.Attempt = 2

			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(q.deferred).To(HaveLen(1))
			Expect(q.deferred[0].job.Attempt).To(Equal(3))
			Expect(q.deferred[0].delay).To(Equal(2 * time.Minute))
			Expect(q.dead).To(BeEmpty())
		})

		It("returns an error when the deferral cannot be recorded", func() {
			runner.err = errors.New("model unavailable")
			q.deferErr = errors.New("redis down")

			Expect(w.Process(ctx, job)).To(HaveOccurred())
		})

		It("dead-letters the job and fails the receipt on the last attempt", func() {
			runner.err = errors.New("model unavailable")
			job.Attempt = 3

			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(q.dead).To(HaveLen(1))
			Expect(q.deferred).To(BeEmpty())
			Expect(receipts.failedReasons).To(ConsistOf("RetriesExhausted"))
		})

		It("defers without burning an attempt when the lock is held elsewhere", func() {
			locker.err = redislock.ErrNotObtained

			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(q.deferred).To(HaveLen(1))
			Expect(q.deferred[0].job.Attempt).To(Equal(1))
			Expect(receipts.getCalls).To(BeZero())
		})

		It("drops redelivered jobs for terminal receipts", func() {
			receipt.Status = models.ReceiptStatusDone

			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(receipts.statusLog).To(BeEmpty())
			Expect(q.deferred).To(BeEmpty())
			Expect(runner.calls).To(BeZero())
		})

		It("keeps the receipt lock alive while the pipeline runs", func() {
			runner.delay = 120 * time.Millisecond

			Expect(w.Process(ctx, job)).To(Succeed())

			Expect(lock.refreshes.Load()).To(BeNumerically(">", 0))
			Expect(lock.released.Load()).To(Equal(int32(1)))
		})

		It("drops jobs whose receipt no longer exists", func() {
			delete(receipts.receipts, receipt.ID)

			Expect(w.Process(ctx, job)).To(Succeed())
			Expect(q.deferred).To(BeEmpty())
			Expect(q.dead).To(BeEmpty())
		})
	})

	Describe("Start", func() {
		It("reclaims each consumer's leased jobs before consuming", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			w.Start(cancelled)

			Expect(q.reclaimed).To(ConsistOf("test-0", "test-1"))
		})
	})

	Describe("rescanOnce", func() {
		It("resets and re-queues low-scoring recent receipts", func() {
			done := &models.Receipt{ID: uuid.New(), ReportID: uuid.New(), Status: models.ReceiptStatusDone}
			receipts.receipts[done.ID] = done
			receipts.rescan = []*models.Receipt{done}

			w.rescanOnce(ctx)

			Expect(done.Status).To(Equal(models.ReceiptStatusUploaded))
			Expect(q.enqueued).To(HaveLen(1))
			Expect(q.enqueued[0].ReceiptID).To(Equal(done.ID))
			Expect(q.enqueued[0].Attempt).To(Equal(1))
		})
	})
})

var _ = Describe("Backoff", func() {
	It("doubles per attempt from the initial delay", func() {
		initial := time.Minute
		Expect(Backoff(initial, 1)).To(Equal(time.Minute))
		Expect(Backoff(initial, 2)).To(Equal(2 * time.Minute))
		Expect(Backoff(initial, 3)).To(Equal(4 * time.Minute))
	})
})

var _ = Describe("applyState", func() {
	var (
		receipt *models.Receipt
		state   pipeline.State
	)

	BeforeEach(func() {
		receipt = &models.Receipt{
			ID:       uuid.New(),
			ReportID: uuid.New(),
			ImageRef: "r.jpg",
			Status:   models.ReceiptStatusProcessing,
		}

		subtotal := decimal.RequireFromString("10.00")
		txDate := time.Date(2026, 2, 13, 0, 0, 0, 0, time.UTC)
		state = pipeline.State{
			ReceiptID: receipt.ID,
			ReportID:  receipt.ReportID,
			OCRText:   "WHOLE FOODS ...",
			Fields: &models.ReceiptFields{
				MerchantName:    "WHOLE FOODS",
				TransactionDate: "2026-02-13",
				Subtotal:        &subtotal,
				TotalAmount:     decimal.RequireFromString("10.80"),
				Currency:        "USD",
				Confidence:      0.9,
				Items: []models.ReceiptItem{
					{Name: "Apples", Quantity: 2, UnitPrice: decimal.RequireFromString("5.00"), TotalPrice: decimal.RequireFromString("10.00")},
				},
			},
			TxDate:          &txDate,
			ValidationFlags: []string{},
			Risk: &models.RiskAssessment{
				Score:     15,
				RiskLevel: models.RiskLevelLow,
				Flags:     []string{"round_number_amount"},
			},
			Status:     models.ReceiptStatusDone,
			AuditNotes: []string{"ocr: extracted 14 characters"},
		}
	})

	It("copies the pipeline outcome onto the receipt", func() {
		applyState(receipt, state)

		Expect(receipt.Status).To(Equal(models.ReceiptStatusDone))
		Expect(receipt.OCRText).To(Equal("WHOLE FOODS ..."))
		Expect(*receipt.MerchantName).To(Equal("WHOLE FOODS"))
		Expect(receipt.TransactionDate.Format("2006-01-02")).To(Equal("2026-02-13"))
		Expect(receipt.TotalAmount.StringFixed(2)).To(Equal("10.80"))
		Expect(receipt.Subtotal.StringFixed(2)).To(Equal("10.00"))
		Expect(*receipt.Confidence).To(BeNumerically("~", 0.9))
		Expect(receipt.Items).To(HaveLen(1))
		Expect(receipt.FraudScore).To(Equal(15))
		Expect(receipt.RiskLevel).To(Equal(models.RiskLevelLow))
		Expect(receipt.FraudFlags).To(ConsistOf("round_number_amount"))
		Expect(receipt.AuditNotes).To(ContainSubstring("ocr:"))
	})

	It("leaves optional fields nil when the extraction omitted them", func() {
		state.Fields.MerchantAddress = ""
		state.Fields.PaymentMethod = ""
		state.Fields.TaxAmount = nil

		applyState(receipt, state)

		Expect(receipt.MerchantAddress).To(BeNil())
		Expect(receipt.PaymentMethod).To(BeNil())
		Expect(receipt.TaxAmount).To(BeNil())
	})
})
