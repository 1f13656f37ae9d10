package handlers

import (
	"context"
	"errors"

	"expense-audit/internal/dto"
	"expense-audit/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReportHandler struct {
	reportService *service.ReportService
	logger        *zap.Logger
}

func NewReportHandler(reportService *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// CreateReport godoc
// @Summary Create an expense report
// @Description Create an empty expense report to attach receipts to
// @Tags reports
// @Accept json
// @Produce json
// @Param request body dto.CreateReportRequest true "Report request"
// @Security Bearer
// @Success 201 {object} dto.ReportResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/reports [post]
func (h *ReportHandler) CreateReport(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	resp, err := h.reportService.Create(c.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to create report", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create report",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// GetReport godoc
// @Summary Get a report
// @Description Get a report with its receipts
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Security Bearer
// @Success 200 {object} dto.ReportResponse
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id} [get]
func (h *ReportHandler) GetReport(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid report ID",
		})
	}

	resp, err := h.reportService.Get(c.Context(), reportID)
	if err != nil {
		return h.reportError(c, err, "Failed to get report")
	}

	return c.JSON(resp)
}

// ListReports godoc
// @Summary List reports
// @Description List reports newest first, optionally filtered by status
// @Tags reports
// @Produce json
// @Param status query string false "Status filter: PENDING, APPROVED, REJECTED, FLAGGED"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} dto.ReportResponse
// @Failure 400 {object} map[string]string
// @Router /api/reports [get]
func (h *ReportHandler) ListReports(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	status := c.Query("status")

	resp, err := h.reportService.List(c.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid status filter",
			})
		}
		h.logger.Error("Failed to list reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list reports",
		})
	}

	return c.JSON(resp)
}

// PendingReports godoc
// @Summary List reports awaiting review
// @Description List PENDING and FLAGGED reports for the reviewer work queue
// @Tags reports
// @Produce json
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} dto.ReportResponse
// @Router /api/reports/pending [get]
func (h *ReportHandler) PendingReports(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	resp, err := h.reportService.Pending(c.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list pending reports", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list pending reports",
		})
	}

	return c.JSON(resp)
}

// ApproveReport godoc
// @Summary Approve a report
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param request body dto.ReportActionRequest false "Optional note"
// @Security Bearer
// @Success 200 {object} dto.ReportResponse
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id}/approve [post]
func (h *ReportHandler) ApproveReport(c *fiber.Ctx) error {
	return h.action(c, h.reportService.Approve)
}

// RejectReport godoc
// @Summary Reject a report
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param request body dto.ReportActionRequest false "Optional note"
// @Security Bearer
// @Success 200 {object} dto.ReportResponse
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id}/reject [post]
func (h *ReportHandler) RejectReport(c *fiber.Ctx) error {
	return h.action(c, h.reportService.Reject)
}

// FlagReport godoc
// @Summary Flag a report for manual review
// @Tags reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param request body dto.ReportActionRequest false "Optional note"
// @Security Bearer
// @Success 200 {object} dto.ReportResponse
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id}/flag [post]
func (h *ReportHandler) FlagReport(c *fiber.Ctx) error {
	return h.action(c, h.reportService.Flag)
}

// ReportAuditLog godoc
// @Summary Get a report's decision history
// @Tags reports
// @Produce json
// @Param id path string true "Report ID"
// @Security Bearer
// @Success 200 {array} dto.AuditLogEntryResponse
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id}/audit [get]
func (h *ReportHandler) ReportAuditLog(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid report ID",
		})
	}

	resp, err := h.reportService.AuditLog(c.Context(), reportID)
	if err != nil {
		return h.reportError(c, err, "Failed to get audit log")
	}

	return c.JSON(resp)
}

// DeleteReport godoc
// @Summary Delete a report
// @Description Delete a report, its receipts and their stored images
// @Tags reports
// @Param id path string true "Report ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/reports/{id} [delete]
func (h *ReportHandler) DeleteReport(c *fiber.Ctx) error {
	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid report ID",
		})
	}

	if err := h.reportService.Delete(c.Context(), reportID); err != nil {
		return h.reportError(c, err, "Failed to delete report")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReportHandler) action(c *fiber.Ctx, fn func(ctx context.Context, id, actorID uuid.UUID, note string) (*dto.ReportResponse, error)) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	reportID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid report ID",
		})
	}

	var req dto.ReportActionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if err := validate.Struct(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	resp, err := fn(c.Context(), reportID, userID, req.Note)
	if err != nil {
		return h.reportError(c, err, "Failed to update report")
	}

	return c.JSON(resp)
}

func (h *ReportHandler) reportError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, service.ErrReportNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Report not found",
		})
	}
	h.logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}
