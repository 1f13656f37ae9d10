package service

import (
	"context"
	"errors"
	"time"

	"expense-audit/internal/dto"
	"expense-audit/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrReportNotFound  = errors.New("report not found")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrInvalidStatus   = errors.New("invalid status filter")
)

// Store interfaces are deliberately narrow so handlers and tests can swap in
// fakes without a database.
type ReportStore interface {
	Create(ctx context.Context, report *models.ExpenseReport) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExpenseReport, error)
	List(ctx context.Context, statuses []models.ReportStatus, limit, offset int) ([]*models.ExpenseReport, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error
	RecomputeTotal(ctx context.Context, reportID uuid.UUID) (decimal.Decimal, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ReceiptLister interface {
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]*models.Receipt, error)
}

type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) error
	ListByReport(ctx context.Context, reportID uuid.UUID) ([]*models.AuditLogEntry, error)
}

type ReportService struct {
	reports  ReportStore
	receipts ReceiptLister
	audit    AuditStore
	images   ImageRemover
	logger   *zap.Logger
}

type ImageRemover interface {
	Delete(ref string) error
}

func NewReportService(reports ReportStore, receipts ReceiptLister, audit AuditStore, images ImageRemover, logger *zap.Logger) *ReportService {
	return &ReportService{
		reports:  reports,
		receipts: receipts,
		audit:    audit,
		images:   images,
		logger:   logger,
	}
}

func (s *ReportService) Create(ctx context.Context, userID uuid.UUID, req *dto.CreateReportRequest) (*dto.ReportResponse, error) {
	now := time.Now().UTC()
	report := &models.ExpenseReport{
		ID:          uuid.New(),
		UserID:      &userID,
		Title:       req.Title,
		Status:      models.ReportStatusPending,
		TotalAmount: decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}

	s.logger.Info("Report created",
		zap.String("report_id", report.ID.String()),
		zap.String("user_id", userID.String()),
	)

	return toReportResponse(report), nil
}

// Get returns a report with its receipts nested.
func (s *ReportService) Get(ctx context.Context, id uuid.UUID) (*dto.ReportResponse, error) {
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}

	receipts, err := s.receipts.ListByReport(ctx, id)
	if err != nil {
		return nil, err
	}
	report.Receipts = receipts

	return toReportResponse(report), nil
}

// List returns reports newest first, optionally filtered by status.
func (s *ReportService) List(ctx context.Context, statusFilter string, limit, offset int) ([]dto.ReportResponse, error) {
	var statuses []models.ReportStatus
	if statusFilter != "" {
		status := models.ReportStatus(statusFilter)
		switch status {
		case models.ReportStatusPending, models.ReportStatusApproved,
			models.ReportStatusRejected, models.ReportStatusFlagged:
		default:
			return nil, ErrInvalidStatus
		}
		statuses = []models.ReportStatus{status}
	}

	reports, err := s.reports.List(ctx, statuses, limit, offset)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ReportResponse, 0, len(reports))
	for _, report := range reports {
		responses = append(responses, *toReportResponse(report))
	}
	return responses, nil
}

// Pending is the reviewer work queue: reports awaiting a decision, which
// includes auto-flagged ones. Both statuses go through one query so paging
// stays exact.
func (s *ReportService) Pending(ctx context.Context, limit, offset int) ([]dto.ReportResponse, error) {
	reports, err := s.reports.List(ctx,
		[]models.ReportStatus{models.ReportStatusPending, models.ReportStatusFlagged},
		limit, offset,
	)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ReportResponse, 0, len(reports))
	for _, report := range reports {
		responses = append(responses, *toReportResponse(report))
	}
	return responses, nil
}

func (s *ReportService) Approve(ctx context.Context, id, actorID uuid.UUID, note string) (*dto.ReportResponse, error) {
	return s.transition(ctx, id, actorID, models.ReportStatusApproved, models.AuditActionApprove, note)
}

func (s *ReportService) Reject(ctx context.Context, id, actorID uuid.UUID, note string) (*dto.ReportResponse, error) {
	return s.transition(ctx, id, actorID, models.ReportStatusRejected, models.AuditActionReject, note)
}

func (s *ReportService) Flag(ctx context.Context, id, actorID uuid.UUID, note string) (*dto.ReportResponse, error) {
	return s.transition(ctx, id, actorID, models.ReportStatusFlagged, models.AuditActionFlag, note)
}

// transition applies a reviewer decision. Repeating a decision the report is
// already in is a no-op that writes no audit entry.
func (s *ReportService) transition(ctx context.Context, id, actorID uuid.UUID, target models.ReportStatus, action models.AuditAction, note string) (*dto.ReportResponse, error) {
	report, err := s.getReport(ctx, id)
	if err != nil {
		return nil, err
	}

	if report.Status == target {
		return toReportResponse(report), nil
	}

	if err := s.reports.UpdateStatus(ctx, id, target); err != nil {
		return nil, err
	}

	entry := &models.AuditLogEntry{
		ID:        uuid.New(),
		ReportID:  id,
		ActorID:   &actorID,
		Action:    action,
		Note:      note,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write audit entry",
			zap.String("report_id", id.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("Report status changed",
		zap.String("report_id", id.String()),
		zap.String("from", string(report.Status)),
		zap.String("to", string(target)),
		zap.String("actor_id", actorID.String()),
	)

	report.Status = target
	return toReportResponse(report), nil
}

// AuditLog returns the decision history for a report, newest first.
func (s *ReportService) AuditLog(ctx context.Context, id uuid.UUID) ([]dto.AuditLogEntryResponse, error) {
	if _, err := s.getReport(ctx, id); err != nil {
		return nil, err
	}

	entries, err := s.audit.ListByReport(ctx, id)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.AuditLogEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toAuditLogResponse(entry))
	}
	return responses, nil
}

// Delete removes a report, its receipts (via cascade) and their stored images.
func (s *ReportService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.getReport(ctx, id); err != nil {
		return err
	}

	receipts, err := s.receipts.ListByReport(ctx, id)
	if err != nil {
		return err
	}

	if err := s.reports.Delete(ctx, id); err != nil {
		return err
	}

	for _, receipt := range receipts {
		if err := s.images.Delete(receipt.ImageRef); err != nil {
			s.logger.Warn("Failed to delete receipt image",
				zap.String("image_ref", receipt.ImageRef),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Report deleted", zap.String("report_id", id.String()))
	return nil
}

func (s *ReportService) getReport(ctx context.Context, id uuid.UUID) (*models.ExpenseReport, error) {
	report, err := s.reports.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}
