package repository

import (
	"context"

	"expense-audit/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type AuditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAuditRepository(db *pgxpool.Pool, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	query := squirrel.Insert("audit_log").
		Columns("id", "report_id", "actor_id", "action", "note", "created_at").
		Values(entry.ID, entry.ReportID, entry.ActorID, entry.Action, entry.Note, entry.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *AuditRepository) ListByReport(ctx context.Context, reportID uuid.UUID) ([]*models.AuditLogEntry, error) {
	query := squirrel.Select("id", "report_id", "actor_id", "action", "note", "created_at").
		From("audit_log").
		Where(squirrel.Eq{"report_id": reportID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.ReportID, &entry.ActorID, &entry.Action, &entry.Note, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
