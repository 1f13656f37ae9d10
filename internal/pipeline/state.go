package pipeline

import (
	"time"

	"expense-audit/internal/models"

	"github.com/google/uuid"
)

// State carries a receipt through the pipeline. Each stage receives the
// state produced by the previous one and returns an updated copy; stages
// never touch the database.
type State struct {
	ReceiptID uuid.UUID
	ReportID  uuid.UUID
	ImagePath string

	OCRText string
	Fields  *models.ReceiptFields
	TxDate  *time.Time

	ValidationFlags []string
	Risk            *models.RiskAssessment

	Status        models.ReceiptStatus
	FailureReason string
	AuditNotes    []string

	StartedAt   time.Time
	CompletedAt time.Time
}

// NewState seeds a run for one receipt.
func NewState(receiptID, reportID uuid.UUID, imagePath string) State {
	return State{
		ReceiptID: receiptID,
		ReportID:  reportID,
		ImagePath: imagePath,
		Status:    models.ReceiptStatusProcessing,
		StartedAt: time.Now().UTC(),
	}
}

// Failed reports whether a stage already marked this run terminal-failed.
func (s State) Failed() bool {
	return s.Status == models.ReceiptStatusFailed
}

func (s State) withNote(note string) State {
	s.AuditNotes = append(s.AuditNotes, note)
	return s
}

func (s State) failed(reason, note string) State {
	s.Status = models.ReceiptStatusFailed
	s.FailureReason = reason
	s.CompletedAt = time.Now().UTC()
	return s.withNote(note)
}
