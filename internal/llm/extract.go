package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"expense-audit/internal/models"

	"go.uber.org/zap"
)

// ExtractFields runs one extraction call over the OCR text and returns the
// structured fields. Schema-invalid output is reported as ErrInvalidResponse.
func (c *Client) ExtractFields(ctx context.Context, ocrText string) (models.ReceiptFields, error) {
	schema := BuildReceiptSchema()

	messages := []chatMessage{
		{Role: "system", Content: extractionSystemPrompt},
		{Role: "user", Content: buildExtractionUserPrompt(ocrText)},
		{Role: "system", Content: "JSON Schema:\n" + mustJSON(schema)},
	}

	content, err := c.complete(ctx, messages)
	if err != nil {
		return models.ReceiptFields{}, err
	}

	jsonStr, err := extractJSONObject(content)
	if err != nil {
		return models.ReceiptFields{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := ValidateAgainstSchema(schema, []byte(jsonStr)); err != nil {
		c.logger.Warn("Extraction output failed schema validation",
			zap.Error(err),
			zap.String("content", jsonStr),
		)
		return models.ReceiptFields{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var fields models.ReceiptFields
	if err := json.Unmarshal([]byte(jsonStr), &fields); err != nil {
		return models.ReceiptFields{}, fmt.Errorf("%w: decode fields: %v", ErrInvalidResponse, err)
	}

	c.logger.Info("Field extraction completed",
		zap.String("merchant", fields.MerchantName),
		zap.String("total", fields.TotalAmount.StringFixed(2)),
		zap.Float64("confidence", fields.Confidence),
	)

	return fields, nil
}
