package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReceiptStatus string

const (
	ReceiptStatusUploaded   ReceiptStatus = "UPLOADED"
	ReceiptStatusProcessing ReceiptStatus = "PROCESSING"
	ReceiptStatusExtracted  ReceiptStatus = "EXTRACTED"
	ReceiptStatusValidated  ReceiptStatus = "VALIDATED"
	ReceiptStatusScored     ReceiptStatus = "SCORED"
	ReceiptStatusDone       ReceiptStatus = "DONE"
	ReceiptStatusFailed     ReceiptStatus = "FAILED"
)

// Terminal reports whether the status is one the pipeline never advances past.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptStatusDone || s == ReceiptStatusFailed
}

// Receipt is created on upload and mutated only by the pipeline worker as it
// advances status. Extracted fields stay nil until the extract stage succeeds.
type Receipt struct {
	ID          uuid.UUID     `db:"id"`
	ReportID    uuid.UUID     `db:"report_id"`
	ImageRef    string        `db:"image_ref"`
	ImageSize   int64         `db:"image_size"`
	ContentType string        `db:"content_type"`
	Status      ReceiptStatus `db:"status"`

	OCRText string `db:"ocr_text"`

	MerchantName    *string          `db:"merchant_name"`
	MerchantAddress *string          `db:"merchant_address"`
	TransactionDate *time.Time       `db:"transaction_date"`
	TransactionTime *string          `db:"transaction_time"`
	Subtotal        *decimal.Decimal `db:"subtotal"`
	TaxAmount       *decimal.Decimal `db:"tax_amount"`
	TotalAmount     *decimal.Decimal `db:"total_amount"`
	PaymentMethod   *string          `db:"payment_method"`
	Currency        *string          `db:"currency"`
	Confidence      *float64         `db:"confidence"`
	Items           []ReceiptItem    `db:"items"`

	ValidationFlags []string  `db:"validation_flags"`
	FraudScore      int       `db:"fraud_score"`
	RiskLevel       RiskLevel `db:"risk_level"`
	FraudFlags      []string  `db:"fraud_flags"`

	FailureReason string `db:"failure_reason"`
	AuditNotes    string `db:"audit_notes"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
