package handlers

import (
	"errors"

	"expense-audit/internal/dto"
	"expense-audit/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	receiptService *service.ReceiptService
	logger         *zap.Logger
}

func NewReceiptHandler(receiptService *service.ReceiptService, logger *zap.Logger) *ReceiptHandler {
	return &ReceiptHandler{
		receiptService: receiptService,
		logger:         logger,
	}
}

// UploadReceipt godoc
// @Summary Upload a receipt image
// @Description Upload a receipt image or PDF to a report and queue it for processing. The report is taken from the path on the nested route or from the report_id form field.
// @Tags receipts
// @Accept multipart/form-data
// @Produce json
// @Param report_id formData string false "Report ID (when not in the path)"
// @Param file formData file true "Receipt image (JPEG, PNG, WebP or PDF, max 10MB)"
// @Security Bearer
// @Success 201 {object} dto.UploadReceiptResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 415 {object} map[string]string
// @Router /api/receipts [post]
func (h *ReceiptHandler) UploadReceipt(c *fiber.Ctx) error {
	rawReportID := c.Params("id")
	if rawReportID == "" {
		rawReportID = c.FormValue("report_id")
	}
	reportID, err := uuid.Parse(rawReportID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid report ID",
		})
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File is required",
		})
	}

	src, err := file.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to open file",
		})
	}
	defer src.Close()

	resp, err := h.receiptService.Upload(c.Context(), reportID, src, file.Filename, file.Header.Get("Content-Type"), file.Size)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrReportNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Report not found",
			})
		case errors.Is(err, service.ErrUnsupportedMediaType):
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported file type",
			})
		case errors.Is(err, service.ErrFileTooLarge):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "File too large",
			})
		}
		h.logger.Error("Failed to upload receipt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload receipt",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ReprocessReceipts godoc
// @Summary Reprocess receipts
// @Description Reset the selected receipts and queue each for a fresh pipeline run
// @Tags receipts
// @Accept json
// @Produce json
// @Param request body dto.ReprocessReceiptsRequest true "Receipt IDs"
// @Security Bearer
// @Success 202 {object} dto.ReprocessReceiptsResponse
// @Failure 400 {object} map[string]string
// @Router /api/receipts/reprocess [post]
func (h *ReceiptHandler) ReprocessReceipts(c *fiber.Ctx) error {
	var req dto.ReprocessReceiptsRequest
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

	ids := make([]uuid.UUID, 0, len(req.ReceiptIDs))
	for _, raw := range req.ReceiptIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid receipt ID",
			})
		}
		ids = append(ids, id)
	}

	resp, err := h.receiptService.Reprocess(c.Context(), ids)
	if err != nil {
		h.logger.Error("Failed to reprocess receipts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reprocess receipts",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(resp)
}

// GetReceipt godoc
// @Summary Get a receipt
// @Description Get a receipt with its extraction and fraud-scoring results
// @Tags receipts
// @Produce json
// @Param id path string true "Receipt ID"
// @Security Bearer
// @Success 200 {object} dto.ReceiptResponse
// @Failure 404 {object} map[string]string
// @Router /api/receipts/{id} [get]
func (h *ReceiptHandler) GetReceipt(c *fiber.Ctx) error {
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid receipt ID",
		})
	}

	resp, err := h.receiptService.Get(c.Context(), receiptID)
	if err != nil {
		return h.receiptError(c, err, "Failed to get receipt")
	}

	return c.JSON(resp)
}

// ListReceipts godoc
// @Summary List receipts
// @Description List receipts newest first, optionally filtered by report
// @Tags receipts
// @Produce json
// @Param report_id query string false "Report ID filter"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Security Bearer
// @Success 200 {array} dto.ReceiptResponse
// @Failure 400 {object} map[string]string
// @Router /api/receipts [get]
func (h *ReceiptHandler) ListReceipts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	raw := c.Query("report_id")
	if raw == "" {
		raw = c.Query("report")
	}

	var reportID *uuid.UUID
	if raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid report_id filter",
			})
		}
		reportID = &id
	}

	resp, err := h.receiptService.List(c.Context(), reportID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to list receipts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list receipts",
		})
	}

	return c.JSON(resp)
}

// DeleteReceipt godoc
// @Summary Delete a receipt
// @Description Delete a receipt, its image, and refresh the report total
// @Tags receipts
// @Param id path string true "Receipt ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/receipts/{id} [delete]
func (h *ReceiptHandler) DeleteReceipt(c *fiber.Ctx) error {
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid receipt ID",
		})
	}

	if err := h.receiptService.Delete(c.Context(), receiptID); err != nil {
		return h.receiptError(c, err, "Failed to delete receipt")
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ReceiptHandler) receiptError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, service.ErrReceiptNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Receipt not found",
		})
	}
	h.logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func getUserID(c *fiber.Ctx) (uuid.UUID, error) {
	userIDStr, ok := c.Locals("userID").(string)
	if !ok {
		return uuid.Nil, fiber.ErrUnauthorized
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}
