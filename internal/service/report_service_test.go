package service

import (
	"context"
	"time"

	"expense-audit/internal/dto"
	"expense-audit/internal/models"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var _ = Describe("ReportService", func() {
	var (
		reports  *fakeReportStore
		receipts *fakeReceiptStore
		audit    *fakeAuditStore
		images   *fakeImageStore
		svc      *ReportService

		ctx     context.Context
		actorID uuid.UUID
	)

	BeforeEach(func() {
		reports = newFakeReportStore()
		receipts = newFakeReceiptStore()
		audit = &fakeAuditStore{}
		images = &fakeImageStore{}
		svc = NewReportService(reports, receipts, audit, images, zap.NewNop())

		ctx = context.Background()
		actorID = uuid.New()
	})

	seedReport := func(status models.ReportStatus) uuid.UUID {
		id := uuid.New()
		reports.reports[id] = &models.ExpenseReport{
			ID:          id,
			Title:       "March travel",
			Status:      status,
			TotalAmount: decimal.Zero,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		return id
	}

	Describe("Create", func() {
		It("starts reports in PENDING with a zero total", func() {
			resp, err := svc.Create(ctx, actorID, &dto.CreateReportRequest{Title: "March travel"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("PENDING"))
			Expect(resp.TotalAmount).To(Equal("0.00"))
			Expect(resp.UserID).To(Equal(actorID.String()))
		})
	})

	Describe("Get", func() {
		It("returns the report with nested receipts", func() {
			id := seedReport(models.ReportStatusPending)
			receipts.receipts[uuid.New()] = &models.Receipt{
				ID:       uuid.New(),
				ReportID: id,
				ImageRef: "a.jpg",
				Status:   models.ReceiptStatusDone,
			}

			resp, err := svc.Get(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Receipts).To(HaveLen(1))
			Expect(resp.Receipts[0].ImageURL).To(Equal("/uploads/a.jpg"))
		})

		It("maps a missing report to ErrReportNotFound", func() {
			_, err := svc.Get(ctx, uuid.New())
			Expect(err).To(MatchError(ErrReportNotFound))
		})
	})

	Describe("List", func() {
		It("rejects unknown status filters", func() {
			_, err := svc.List(ctx, "WAITING", 20, 0)
			Expect(err).To(MatchError(ErrInvalidStatus))
		})

		It("accepts valid status filters", func() {
			seedReport(models.ReportStatusApproved)
			seedReport(models.ReportStatusPending)

			resp, err := svc.List(ctx, "APPROVED", 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(HaveLen(1))
			Expect(resp[0].Status).To(Equal("APPROVED"))
		})
	})

	Describe("Pending", func() {
		It("returns pending and flagged reports from a single paged query", func() {
			seedReport(models.ReportStatusPending)
			seedReport(models.ReportStatusFlagged)
			seedReport(models.ReportStatusApproved)

			resp, err := svc.Pending(ctx, 20, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(HaveLen(2))

			Expect(reports.listCalls).To(HaveLen(1))
			Expect(reports.listCalls[0]).To(ConsistOf(models.ReportStatusPending, models.ReportStatusFlagged))
		})
	})

	Describe("Approve", func() {
		It("moves a pending report to APPROVED and writes an audit entry", func() {
			id := seedReport(models.ReportStatusPending)

			resp, err := svc.Approve(ctx, id, actorID, "looks fine")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("APPROVED"))

			Expect(audit.entries).To(HaveLen(1))
			Expect(audit.entries[0].Action).To(Equal(models.AuditActionApprove))
			Expect(audit.entries[0].Note).To(Equal("looks fine"))
			Expect(*audit.entries[0].ActorID).To(Equal(actorID))
		})

		It("is idempotent: repeating the decision writes no second entry", func() {
			id := seedReport(models.ReportStatusApproved)

			resp, err := svc.Approve(ctx, id, actorID, "again")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("APPROVED"))
			Expect(audit.entries).To(BeEmpty())
			Expect(reports.statusLog).To(BeEmpty())
		})

		It("can override a flagged report", func() {
			id := seedReport(models.ReportStatusFlagged)

			resp, err := svc.Approve(ctx, id, actorID, "reviewed, legitimate")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("APPROVED"))
			Expect(audit.entries).To(HaveLen(1))
		})
	})

	Describe("Reject", func() {
		It("records the rejection", func() {
			id := seedReport(models.ReportStatusPending)

			resp, err := svc.Reject(ctx, id, actorID, "duplicate claim")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("REJECTED"))
			Expect(audit.entries[0].Action).To(Equal(models.AuditActionReject))
		})
	})

	Describe("AuditLog", func() {
		It("returns entries for the report", func() {
			id := seedReport(models.ReportStatusPending)
			_, err := svc.Flag(ctx, id, actorID, "needs a second look")
			Expect(err).NotTo(HaveOccurred())

			entries, err := svc.AuditLog(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Action).To(Equal("FLAG"))
		})

		It("404s for unknown reports", func() {
			_, err := svc.AuditLog(ctx, uuid.New())
			Expect(err).To(MatchError(ErrReportNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes the report and its receipt images", func() {
			id := seedReport(models.ReportStatusPending)
			rid := uuid.New()
			receipts.receipts[rid] = &models.Receipt{ID: rid, ReportID: id, ImageRef: "b.png"}

			Expect(svc.Delete(ctx, id)).To(Succeed())
			Expect(reports.deleted).To(ContainElement(id))
			Expect(images.deleted).To(ContainElement("b.png"))
		})
	})
})
