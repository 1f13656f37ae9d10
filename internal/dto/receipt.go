package dto

type ReceiptItemResponse struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	TotalPrice string `json:"total_price"`
}

type ReceiptResponse struct {
	ID              string                `json:"id"`
	ReportID        string                `json:"report_id"`
	ImageURL        string                `json:"image_url"`
	Status          string                `json:"status"`
	MerchantName    string                `json:"merchant_name,omitempty"`
	TransactionDate string                `json:"transaction_date,omitempty"`
	TotalAmount     string                `json:"total_amount,omitempty"`
	TaxAmount       string                `json:"tax_amount,omitempty"`
	Currency        string                `json:"currency,omitempty"`
	Items           []ReceiptItemResponse `json:"items,omitempty"`
	ValidationFlags []string              `json:"validation_flags,omitempty"`
	FraudScore      int                   `json:"fraud_score"`
	RiskLevel       string                `json:"risk_level,omitempty"`
	FraudFlags      []string              `json:"fraud_flags,omitempty"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	AuditNotes      string                `json:"audit_notes,omitempty"`
	CreatedAt       string                `json:"created_at"`
}

// UploadReceiptResponse is returned from the upload endpoint; TaskID is the
// trace id of the queued pipeline job, usable for log correlation.
type UploadReceiptResponse struct {
	Receipt ReceiptResponse `json:"receipt"`
	TaskID  string          `json:"task_id"`
}

// ReprocessReceiptsRequest selects receipts for a fresh pipeline run.
type ReprocessReceiptsRequest struct {
	ReceiptIDs []string `json:"receipt_ids" validate:"required,min=1,dive,uuid"`
}

type ReprocessReceiptsResponse struct {
	Queued  []string `json:"queued"`
	Skipped []string `json:"skipped,omitempty"`
}
