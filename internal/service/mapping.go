package service

import (
	"time"

	"expense-audit/internal/dto"
	"expense-audit/internal/models"
)

// uploadsPrefix is where the router serves stored receipt images from.
const uploadsPrefix = "/uploads/"

func toReportResponse(report *models.ExpenseReport) *dto.ReportResponse {
	resp := &dto.ReportResponse{
		ID:          report.ID.String(),
		Title:       report.Title,
		Status:      string(report.Status),
		TotalAmount: report.TotalAmount.StringFixed(2),
		CreatedAt:   report.CreatedAt.Format(time.RFC3339),
	}
	if report.UserID != nil {
		resp.UserID = report.UserID.String()
	}
	for _, receipt := range report.Receipts {
		resp.Receipts = append(resp.Receipts, *toReceiptResponse(receipt))
	}
	return resp
}

func toReceiptResponse(receipt *models.Receipt) *dto.ReceiptResponse {
	resp := &dto.ReceiptResponse{
		ID:              receipt.ID.String(),
		ReportID:        receipt.ReportID.String(),
		ImageURL:        uploadsPrefix + receipt.ImageRef,
		Status:          string(receipt.Status),
		ValidationFlags: receipt.ValidationFlags,
		FraudScore:      receipt.FraudScore,
		RiskLevel:       string(receipt.RiskLevel),
		FraudFlags:      receipt.FraudFlags,
		FailureReason:   receipt.FailureReason,
		AuditNotes:      receipt.AuditNotes,
		CreatedAt:       receipt.CreatedAt.Format(time.RFC3339),
	}

	if receipt.MerchantName != nil {
		resp.MerchantName = *receipt.MerchantName
	}
	if receipt.TransactionDate != nil {
		resp.TransactionDate = receipt.TransactionDate.Format("2006-01-02")
	}
	if receipt.TotalAmount != nil {
		resp.TotalAmount = receipt.TotalAmount.StringFixed(2)
	}
	if receipt.TaxAmount != nil {
		resp.TaxAmount = receipt.TaxAmount.StringFixed(2)
	}
	if receipt.Currency != nil {
		resp.Currency = *receipt.Currency
	}
	for _, item := range receipt.Items {
		resp.Items = append(resp.Items, dto.ReceiptItemResponse{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice.StringFixed(2),
			TotalPrice: item.TotalPrice.StringFixed(2),
		})
	}

	return resp
}

func toAuditLogResponse(entry *models.AuditLogEntry) dto.AuditLogEntryResponse {
	resp := dto.AuditLogEntryResponse{
		ID:        entry.ID.String(),
		Action:    string(entry.Action),
		Note:      entry.Note,
		CreatedAt: entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.ActorID != nil {
		resp.ActorID = entry.ActorID.String()
	}
	return resp
}
