package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"expense-audit/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var receiptColumns = []string{
	"id", "report_id", "image_ref", "image_size", "content_type", "status", "ocr_text",
	"merchant_name", "merchant_address", "transaction_date", "transaction_time",
	"subtotal::text", "tax_amount::text", "total_amount::text",
	"payment_method", "currency", "confidence", "items",
	"validation_flags", "fraud_score", "risk_level", "fraud_flags",
	"failure_reason", "audit_notes", "created_at", "updated_at",
}

type ReceiptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReceiptRepository) Create(ctx context.Context, receipt *models.Receipt) error {
	query := squirrel.Insert("receipts").
		Columns("id", "report_id", "image_ref", "image_size", "content_type", "status", "created_at", "updated_at").
		Values(receipt.ID, receipt.ReportID, receipt.ImageRef, receipt.ImageSize, receipt.ContentType, receipt.Status, receipt.CreatedAt, receipt.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	return scanReceipt(r.db.QueryRow(ctx, sql, args...))
}

// List returns receipts newest first, optionally filtered by report.
func (r *ReceiptRepository) List(ctx context.Context, reportID *uuid.UUID, limit, offset int) ([]*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	if reportID != nil {
		query = query.Where(squirrel.Eq{"report_id": *reportID})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	return r.queryReceipts(ctx, sql, args)
}

func (r *ReceiptRepository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"report_id": reportID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	return r.queryReceipts(ctx, sql, args)
}

func (r *ReceiptRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.ReceiptStatus) error {
	query := squirrel.Update("receipts").
		Set("status", status).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// MarkFailed sets the terminal failed status with the recorded reason. Fields
// extracted before the failure are left untouched.
func (r *ReceiptRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason, notes string) error {
	query := squirrel.Update("receipts").
		Set("status", models.ReceiptStatusFailed).
		Set("failure_reason", reason).
		Set("audit_notes", notes).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// SaveResults persists the terminal pipeline outcome onto the receipt row.
func (r *ReceiptRepository) SaveResults(ctx context.Context, receipt *models.Receipt) error {
	items, err := json.Marshal(receipt.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	validationFlags, err := json.Marshal(emptyIfNil(receipt.ValidationFlags))
	if err != nil {
		return fmt.Errorf("marshal validation flags: %w", err)
	}
	fraudFlags, err := json.Marshal(emptyIfNil(receipt.FraudFlags))
	if err != nil {
		return fmt.Errorf("marshal fraud flags: %w", err)
	}

	query := squirrel.Update("receipts").
		Set("status", receipt.Status).
		Set("ocr_text", receipt.OCRText).
		Set("merchant_name", receipt.MerchantName).
		Set("merchant_address", receipt.MerchantAddress).
		Set("transaction_date", receipt.TransactionDate).
		Set("transaction_time", receipt.TransactionTime).
		Set("subtotal", decimalArg(receipt.Subtotal)).
		Set("tax_amount", decimalArg(receipt.TaxAmount)).
		Set("total_amount", decimalArg(receipt.TotalAmount)).
		Set("payment_method", receipt.PaymentMethod).
		Set("currency", receipt.Currency).
		Set("confidence", receipt.Confidence).
		Set("items", items).
		Set("validation_flags", validationFlags).
		Set("fraud_score", receipt.FraudScore).
		Set("risk_level", receipt.RiskLevel).
		Set("fraud_flags", fraudFlags).
		Set("failure_reason", receipt.FailureReason).
		Set("audit_notes", receipt.AuditNotes).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": receipt.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("receipts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

// ListRescanCandidates returns processed receipts created since the cutoff
// whose fraud score stayed below maxScore. The periodic rescan re-queues them
// so duplicates submitted after the first pass are still caught.
func (r *ReceiptRepository) ListRescanCandidates(ctx context.Context, since time.Time, maxScore int) ([]*models.Receipt, error) {
	query := squirrel.Select(receiptColumns...).
		From("receipts").
		Where(squirrel.Eq{"status": models.ReceiptStatusDone}).
		Where(squirrel.Lt{"fraud_score": maxScore}).
		Where(squirrel.GtOrEq{"created_at": since}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	return r.queryReceipts(ctx, sql, args)
}

// CountMatching counts other receipts with the same merchant, total and date.
// Used by the fraud stage to detect duplicate submissions.
func (r *ReceiptRepository) CountMatching(ctx context.Context, excludeID uuid.UUID, merchant string, total decimal.Decimal, date time.Time) (int, error) {
	query := squirrel.Select("COUNT(*)").
		From("receipts").
		Where(squirrel.Eq{"merchant_name": merchant}).
		Where(squirrel.Eq{"transaction_date": date}).
		Where(squirrel.Expr("total_amount = ?::numeric", total.StringFixed(2))).
		Where(squirrel.NotEq{"id": excludeID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *ReceiptRepository) queryReceipts(ctx context.Context, sql string, args []interface{}) ([]*models.Receipt, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []*models.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
	}

	return receipts, rows.Err()
}

func scanReceipt(row pgx.Row) (*models.Receipt, error) {
	var (
		receipt         models.Receipt
		subtotal        *string
		taxAmount       *string
		totalAmount     *string
		items           []byte
		validationFlags []byte
		fraudFlags      []byte
	)

	err := row.Scan(
		&receipt.ID, &receipt.ReportID, &receipt.ImageRef, &receipt.ImageSize, &receipt.ContentType,
		&receipt.Status, &receipt.OCRText,
		&receipt.MerchantName, &receipt.MerchantAddress, &receipt.TransactionDate, &receipt.TransactionTime,
		&subtotal, &taxAmount, &totalAmount,
		&receipt.PaymentMethod, &receipt.Currency, &receipt.Confidence, &items,
		&validationFlags, &receipt.FraudScore, &receipt.RiskLevel, &fraudFlags,
		&receipt.FailureReason, &receipt.AuditNotes, &receipt.CreatedAt, &receipt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if receipt.Subtotal, err = parseDecimal(subtotal); err != nil {
		return nil, err
	}
	if receipt.TaxAmount, err = parseDecimal(taxAmount); err != nil {
		return nil, err
	}
	if receipt.TotalAmount, err = parseDecimal(totalAmount); err != nil {
		return nil, err
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &receipt.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	if len(validationFlags) > 0 {
		if err := json.Unmarshal(validationFlags, &receipt.ValidationFlags); err != nil {
			return nil, fmt.Errorf("unmarshal validation flags: %w", err)
		}
	}
	if len(fraudFlags) > 0 {
		if err := json.Unmarshal(fraudFlags, &receipt.FraudFlags); err != nil {
			return nil, fmt.Errorf("unmarshal fraud flags: %w", err)
		}
	}

	return &receipt, nil
}

func parseDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, fmt.Errorf("parse decimal column: %w", err)
	}
	return &d, nil
}

func decimalArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func emptyIfNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
