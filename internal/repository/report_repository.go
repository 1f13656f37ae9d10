package repository

import (
	"context"
	"fmt"

	"expense-audit/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var reportColumns = []string{
	"id", "user_id", "title", "status", "total_amount::text", "created_at", "updated_at",
}

type ReportRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReportRepository(db *pgxpool.Pool, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReportRepository) Create(ctx context.Context, report *models.ExpenseReport) error {
	query := squirrel.Insert("expense_reports").
		Columns("id", "user_id", "title", "status", "total_amount", "created_at", "updated_at").
		Values(report.ID, report.UserID, report.Title, report.Status, report.TotalAmount.StringFixed(2), report.CreatedAt, report.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExpenseReport, error) {
	query := squirrel.Select(reportColumns...).
		From("expense_reports").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	return scanReport(r.db.QueryRow(ctx, sql, args...))
}

// List returns reports newest first, optionally restricted to a set of
// statuses. A single query keeps limit/offset paging exact across statuses.
func (r *ReportRepository) List(ctx context.Context, statuses []models.ReportStatus, limit, offset int) ([]*models.ExpenseReport, error) {
	query := squirrel.Select(reportColumns...).
		From("expense_reports").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	if len(statuses) > 0 {
		query = query.Where(squirrel.Eq{"status": statuses})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*models.ExpenseReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

func (r *ReportRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ReportStatus) error {
	query := squirrel.Update("expense_reports").
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

// RecomputeTotal recalculates the report total as the sum of the extracted
// totals of its non-failed receipts. Recomputed from scratch every time so
// repeated invocations are idempotent and never drift.
func (r *ReportRepository) RecomputeTotal(ctx context.Context, reportID uuid.UUID) (decimal.Decimal, error) {
	const sql = `
		UPDATE expense_reports
		SET total_amount = COALESCE((
			SELECT SUM(rc.total_amount)
			FROM receipts rc
			WHERE rc.report_id = $1
			  AND rc.total_amount IS NOT NULL
			  AND rc.status <> 'FAILED'
		), 0),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING total_amount::text`

	var raw string
	if err := r.db.QueryRow(ctx, sql, reportID).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("recompute report total: %w", err)
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse report total: %w", err)
	}

	r.logger.Debug("Report total recomputed",
		zap.String("report_id", reportID.String()),
		zap.String("total", total.StringFixed(2)),
	)

	return total, nil
}

func (r *ReportRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("expense_reports").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func scanReport(row pgx.Row) (*models.ExpenseReport, error) {
	var (
		report   models.ExpenseReport
		rawTotal string
	)
	err := row.Scan(
		&report.ID, &report.UserID, &report.Title, &report.Status, &rawTotal, &report.CreatedAt, &report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.TotalAmount, err = decimal.NewFromString(rawTotal)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}

	return &report, nil
}
