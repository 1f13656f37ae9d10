package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied by cmd/seed. Statements are idempotent so re-running the
// seeder against an existing database is safe.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(64) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS expense_reports (
		id UUID PRIMARY KEY,
		user_id UUID REFERENCES users(id) ON DELETE SET NULL,
		title VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		total_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS receipts (
		id UUID PRIMARY KEY,
		report_id UUID NOT NULL REFERENCES expense_reports(id) ON DELETE CASCADE,
		image_ref VARCHAR(255) NOT NULL,
		image_size BIGINT NOT NULL DEFAULT 0,
		content_type VARCHAR(64) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'UPLOADED',
		ocr_text TEXT NOT NULL DEFAULT '',
		merchant_name VARCHAR(255),
		merchant_address VARCHAR(512),
		transaction_date DATE,
		transaction_time VARCHAR(16),
		subtotal NUMERIC(10,2),
		tax_amount NUMERIC(10,2),
		total_amount NUMERIC(10,2),
		payment_method VARCHAR(64),
		currency CHAR(3),
		confidence DOUBLE PRECISION,
		items JSONB NOT NULL DEFAULT '[]',
		validation_flags JSONB NOT NULL DEFAULT '[]',
		fraud_score INTEGER NOT NULL DEFAULT 0,
		risk_level VARCHAR(10) NOT NULL DEFAULT 'LOW',
		fraud_flags JSONB NOT NULL DEFAULT '[]',
		failure_reason TEXT NOT NULL DEFAULT '',
		audit_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_report_id ON receipts(report_id)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_status ON receipts(status)`,
	`CREATE INDEX IF NOT EXISTS idx_expense_reports_status ON expense_reports(status)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id UUID PRIMARY KEY,
		report_id UUID NOT NULL REFERENCES expense_reports(id) ON DELETE CASCADE,
		actor_id UUID REFERENCES users(id) ON DELETE SET NULL,
		action VARCHAR(20) NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_report_id ON audit_log(report_id)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
