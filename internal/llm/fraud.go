package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"expense-audit/internal/models"

	"go.uber.org/zap"
)

// AssessRisk asks the model for a fraud assessment of extracted fields.
// Callers treat failures as non-fatal and fall back to heuristic scores.
func (c *Client) AssessRisk(ctx context.Context, fields models.ReceiptFields, validationFlags []string) (models.RiskAssessment, error) {
	schema := BuildRiskSchema()

	messages := []chatMessage{
		{Role: "system", Content: fraudSystemPrompt},
		{Role: "user", Content: buildFraudUserPrompt(fields, validationFlags)},
		{Role: "system", Content: "JSON Schema:\n" + mustJSON(schema)},
	}

	content, err := c.complete(ctx, messages)
	if err != nil {
		return models.RiskAssessment{}, err
	}

	jsonStr, err := extractJSONObject(content)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := ValidateAgainstSchema(schema, []byte(jsonStr)); err != nil {
		c.logger.Warn("Risk assessment failed schema validation",
			zap.Error(err),
			zap.String("content", jsonStr),
		)
		return models.RiskAssessment{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	var assessment models.RiskAssessment
	if err := json.Unmarshal([]byte(jsonStr), &assessment); err != nil {
		return models.RiskAssessment{}, fmt.Errorf("%w: decode assessment: %v", ErrInvalidResponse, err)
	}

	c.logger.Info("Risk assessment completed",
		zap.Int("score", assessment.Score),
		zap.String("risk_level", string(assessment.RiskLevel)),
	)

	return assessment, nil
}
