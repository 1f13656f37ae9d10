package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionApprove AuditAction = "APPROVE"
	AuditActionReject  AuditAction = "REJECT"
	AuditActionFlag    AuditAction = "FLAG"
)

// AuditLogEntry records who performed an approval action on a report.
type AuditLogEntry struct {
	ID        uuid.UUID   `db:"id"`
	ReportID  uuid.UUID   `db:"report_id"`
	ActorID   *uuid.UUID  `db:"actor_id"`
	Action    AuditAction `db:"action"`
	Note      string      `db:"note"`
	CreatedAt time.Time   `db:"created_at"`
}
