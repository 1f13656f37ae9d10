package dto

type CreateReportRequest struct {
	Title string `json:"title" validate:"required,max=255"`
}

type ReportActionRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

type ReportResponse struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id,omitempty"`
	Title       string            `json:"title"`
	Status      string            `json:"status"`
	TotalAmount string            `json:"total_amount"`
	CreatedAt   string            `json:"created_at"`
	Receipts    []ReceiptResponse `json:"receipts,omitempty"`
}

type AuditLogEntryResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id,omitempty"`
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}
