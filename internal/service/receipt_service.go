package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"expense-audit/internal/dto"
	"expense-audit/internal/models"
	"expense-audit/internal/queue"
	"expense-audit/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported file type")
	ErrFileTooLarge         = errors.New("file too large")
)

// allowedContentTypes maps accepted upload MIME types to their canonical
// extension, used when the original filename has none.
var allowedContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type ReceiptCRUDStore interface {
	Create(ctx context.Context, receipt *models.Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error)
	List(ctx context.Context, reportID *uuid.UUID, limit, offset int) ([]*models.Receipt, error)
	SetStatus(ctx context.Context, id uuid.UUID, status models.ReceiptStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

type ReceiptService struct {
	receipts    ReceiptCRUDStore
	reports     ReportStore
	images      storage.ImageStore
	jobs        Enqueuer
	maxFileSize int64
	logger      *zap.Logger
}

func NewReceiptService(receipts ReceiptCRUDStore, reports ReportStore, images storage.ImageStore, jobs Enqueuer, maxFileSize int64, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{
		receipts:    receipts,
		reports:     reports,
		images:      images,
		jobs:        jobs,
		maxFileSize: maxFileSize,
		logger:      logger,
	}
}

// Upload stores the image, creates the receipt in UPLOADED state and queues
// a pipeline job. If the job cannot be queued the receipt and blob are rolled
// back so no receipt is ever stranded without a job.
func (s *ReceiptService) Upload(ctx context.Context, reportID uuid.UUID, src io.Reader, filename, contentType string, size int64) (*dto.UploadReceiptResponse, error) {
	if size > s.maxFileSize {
		return nil, ErrFileTooLarge
	}

	contentType = normalizeContentType(contentType)
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return nil, ErrUnsupportedMediaType
	}
	if filepath.Ext(filename) == "" {
		filename += ext
	}

	if _, err := s.reports.GetByID(ctx, reportID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}

	ref, storedSize, err := s.images.Save(ctx, io.LimitReader(src, s.maxFileSize), filename)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	receipt := &models.Receipt{
		ID:          uuid.New(),
		ReportID:    reportID,
		ImageRef:    ref,
		ImageSize:   storedSize,
		ContentType: contentType,
		Status:      models.ReceiptStatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.receipts.Create(ctx, receipt); err != nil {
		s.cleanupImage(ref)
		return nil, err
	}

	job := queue.Job{
		ReceiptID: receipt.ID,
		Attempt:   1,
		TraceID:   uuid.NewString(),
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		if delErr := s.receipts.Delete(ctx, receipt.ID); delErr != nil {
			s.logger.Error("Failed to roll back receipt after enqueue failure",
				zap.String("receipt_id", receipt.ID.String()),
				zap.Error(delErr),
			)
		}
		s.cleanupImage(ref)
		return nil, err
	}

	s.logger.Info("Receipt uploaded",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("report_id", reportID.String()),
		zap.String("trace_id", job.TraceID),
		zap.Int64("size", storedSize),
	)

	return &dto.UploadReceiptResponse{
		Receipt: *toReceiptResponse(receipt),
		TaskID:  job.TraceID,
	}, nil
}

func (s *ReceiptService) Get(ctx context.Context, id uuid.UUID) (*dto.ReceiptResponse, error) {
	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		return nil, err
	}
	return toReceiptResponse(receipt), nil
}

// List returns receipts newest first, optionally scoped to one report.
func (s *ReceiptService) List(ctx context.Context, reportID *uuid.UUID, limit, offset int) ([]dto.ReceiptResponse, error) {
	receipts, err := s.receipts.List(ctx, reportID, limit, offset)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.ReceiptResponse, 0, len(receipts))
	for _, receipt := range receipts {
		responses = append(responses, *toReceiptResponse(receipt))
	}
	return responses, nil
}

// Reprocess resets the given receipts and queues each for a fresh pipeline
// run. Unknown ids are reported as skipped rather than failing the batch.
func (s *ReceiptService) Reprocess(ctx context.Context, receiptIDs []uuid.UUID) (*dto.ReprocessReceiptsResponse, error) {
	resp := &dto.ReprocessReceiptsResponse{Queued: []string{}}
	for _, id := range receiptIDs {
		receipt, err := s.receipts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				resp.Skipped = append(resp.Skipped, id.String())
				continue
			}
			return nil, err
		}

		if err := s.receipts.SetStatus(ctx, receipt.ID, models.ReceiptStatusUploaded); err != nil {
			return nil, err
		}

		job := queue.Job{
			ReceiptID: receipt.ID,
			Attempt:   1,
			TraceID:   uuid.NewString(),
		}
		if err := s.jobs.Enqueue(ctx, job); err != nil {
			return nil, err
		}
		resp.Queued = append(resp.Queued, receipt.ID.String())
	}

	s.logger.Info("Receipts queued for reprocessing",
		zap.Int("queued", len(resp.Queued)),
		zap.Int("skipped", len(resp.Skipped)),
	)
	return resp, nil
}

// Delete removes the receipt, its stored image and refreshes the report total.
func (s *ReceiptService) Delete(ctx context.Context, id uuid.UUID) error {
	receipt, err := s.getReceipt(ctx, id)
	if err != nil {
		return err
	}

	if err := s.receipts.Delete(ctx, id); err != nil {
		return err
	}
	s.cleanupImage(receipt.ImageRef)

	if _, err := s.reports.RecomputeTotal(ctx, receipt.ReportID); err != nil {
		s.logger.Error("Failed to recompute report total after receipt delete",
			zap.String("report_id", receipt.ReportID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("Receipt deleted", zap.String("receipt_id", id.String()))
	return nil
}

func (s *ReceiptService) getReceipt(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	receipt, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return receipt, nil
}

func (s *ReceiptService) cleanupImage(ref string) {
	if err := s.images.Delete(ref); err != nil {
		s.logger.Warn("Failed to delete stored image", zap.String("image_ref", ref), zap.Error(err))
	}
}

func normalizeContentType(ct string) string {
	if i := strings.Index(ct, ";"); i != -1 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
