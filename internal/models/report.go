package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "PENDING"
	ReportStatusApproved ReportStatus = "APPROVED"
	ReportStatusRejected ReportStatus = "REJECTED"
	ReportStatusFlagged  ReportStatus = "FLAGGED"
)

// ExpenseReport owns a collection of receipts. TotalAmount is recomputed from
// the receipts after every receipt change, never maintained incrementally.
type ExpenseReport struct {
	ID          uuid.UUID       `db:"id"`
	UserID      *uuid.UUID      `db:"user_id"`
	Title       string          `db:"title"`
	Status      ReportStatus    `db:"status"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`

	Receipts []*Receipt `db:"-"`
}
