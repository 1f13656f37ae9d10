package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"expense-audit/internal/models"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ = Describe("ReceiptService", func() {
	var (
		reports  *fakeReportStore
		receipts *fakeReceiptStore
		images   *fakeImageStore
		jobs     *fakeEnqueuer
		svc      *ReceiptService

		ctx      context.Context
		reportID uuid.UUID
	)

	const maxFileSize = 10 * 1024 * 1024

	BeforeEach(func() {
		reports = newFakeReportStore()
		receipts = newFakeReceiptStore()
		images = &fakeImageStore{}
		jobs = &fakeEnqueuer{}
		svc = NewReceiptService(receipts, reports, images, jobs, maxFileSize, zap.NewNop())

		ctx = context.Background()
		reportID = uuid.New()
		reports.reports[reportID] = &models.ExpenseReport{
			ID:          reportID,
			Title:       "Team offsite",
			Status:      models.ReportStatusPending,
			TotalAmount: decimal.Zero,
			CreatedAt:   time.Now(),
		}
	})

	upload := func() error {
		_, err := svc.Upload(ctx, reportID, strings.NewReader("fake image bytes"), "receipt.jpg", "image/jpeg", 16)
		return err
	}

	Describe("Upload", func() {
		It("stores the image, creates the receipt and queues a job", func() {
			resp, err := svc.Upload(ctx, reportID, strings.NewReader("fake image bytes"), "receipt.jpg", "image/jpeg", 16)
			Expect(err).NotTo(HaveOccurred())

			Expect(receipts.created).To(HaveLen(1))
			Expect(receipts.created[0].Status).To(Equal(models.ReceiptStatusUploaded))
			Expect(receipts.created[0].ReportID).To(Equal(reportID))

			Expect(jobs.jobs).To(HaveLen(1))
			Expect(jobs.jobs[0].ReceiptID).To(Equal(receipts.created[0].ID))
			Expect(jobs.jobs[0].Attempt).To(Equal(1))

			Expect(resp.TaskID).NotTo(BeEmpty())
			Expect(resp.Receipt.Status).To(Equal("UPLOADED"))
		})

		It("accepts a content type with charset parameters", func() {
			_, err := svc.Upload(ctx, reportID, strings.NewReader("x"), "r.png", "image/PNG; charset=binary", 1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects unsupported file types", func() {
			_, err := svc.Upload(ctx, reportID, strings.NewReader("x"), "notes.txt", "text/plain", 1)
			Expect(err).To(MatchError(ErrUnsupportedMediaType))
			Expect(images.saved).To(BeEmpty())
			Expect(receipts.created).To(BeEmpty())
		})

		It("rejects oversized files", func() {
			_, err := svc.Upload(ctx, reportID, strings.NewReader("x"), "big.jpg", "image/jpeg", maxFileSize+1)
			Expect(err).To(MatchError(ErrFileTooLarge))
			Expect(images.saved).To(BeEmpty())
		})

		It("404s when the report does not exist", func() {
			reportID = uuid.New()
			Expect(upload()).To(MatchError(ErrReportNotFound))
		})

		It("rolls back the receipt and blob when the queue is down", func() {
			jobs.err = errors.New("redis unavailable")

			Expect(upload()).To(HaveOccurred())
			Expect(receipts.deleted).To(HaveLen(1))
			Expect(images.deleted).To(HaveLen(1))
		})
	})

	Describe("Reprocess", func() {
		It("resets receipts and queues fresh jobs, skipping unknown ids", func() {
			id := uuid.New()
			receipts.receipts[id] = &models.Receipt{
				ID:       id,
				ReportID: reportID,
				ImageRef: "d.jpg",
				Status:   models.ReceiptStatusDone,
			}
			missing := uuid.New()

			resp, err := svc.Reprocess(ctx, []uuid.UUID{id, missing})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Queued).To(ConsistOf(id.String()))
			Expect(resp.Skipped).To(ConsistOf(missing.String()))

			Expect(receipts.receipts[id].Status).To(Equal(models.ReceiptStatusUploaded))
			Expect(jobs.jobs).To(HaveLen(1))
			Expect(jobs.jobs[0].ReceiptID).To(Equal(id))
			Expect(jobs.jobs[0].Attempt).To(Equal(1))
		})
	})

	Describe("Get", func() {
		It("maps a missing receipt to ErrReceiptNotFound", func() {
			_, err := svc.Get(ctx, uuid.New())
			Expect(err).To(MatchError(ErrReceiptNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes the receipt, its image, and refreshes the report total", func() {
			id := uuid.New()
			receipts.receipts[id] = &models.Receipt{
				ID:       id,
				ReportID: reportID,
				ImageRef: "c.webp",
				Status:   models.ReceiptStatusDone,
			}

			Expect(svc.Delete(ctx, id)).To(Succeed())
			Expect(receipts.deleted).To(ContainElement(id))
			Expect(images.deleted).To(ContainElement("c.webp"))
			Expect(reports.recomputed).To(ContainElement(reportID))
		})
	})
})
