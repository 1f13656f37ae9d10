package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildReceiptSchema returns the JSON-Schema constraint for extraction output.
// Money fields are decimal strings so amounts survive parsing exactly.
func BuildReceiptSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"merchant_name":    map[string]interface{}{"type": "string", "minLength": 1},
			"merchant_address": map[string]interface{}{"type": "string"},
			"transaction_date": map[string]interface{}{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"transaction_time": map[string]interface{}{"type": "string", "pattern": `^\d{2}:\d{2}$`},
			"items": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type":                 "object",
					"additionalProperties": false,
					"properties": map[string]interface{}{
						"name":        map[string]interface{}{"type": "string", "minLength": 1},
						"quantity":    map[string]interface{}{"type": "integer", "minimum": 1},
						"unit_price":  decimalProp(),
						"total_price": decimalProp(),
					},
					"required": []string{"name", "quantity", "unit_price", "total_price"},
				},
			},
			"subtotal":       decimalProp(),
			"tax_amount":     decimalProp(),
			"total_amount":   decimalProp(),
			"payment_method": map[string]interface{}{"type": "string"},
			"currency":       map[string]interface{}{"type": "string", "minLength": 3, "maxLength": 3},
			"confidence":     map[string]interface{}{"type": "number", "minimum": 0.0, "maximum": 1.0},
		},
		"required": []string{"merchant_name", "transaction_date", "total_amount", "currency", "confidence"},
	}
}

// BuildRiskSchema returns the JSON-Schema constraint for fraud assessments.
func BuildRiskSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"score": map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
			"risk_level": map[string]interface{}{
				"type": "string",
				"enum": []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"},
			},
			"flags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"explanation":            map[string]interface{}{"type": "string"},
			"requires_manual_review": map[string]interface{}{"type": "boolean"},
		},
		"required": []string{"score", "risk_level", "flags", "explanation", "requires_manual_review"},
	}
}

func decimalProp() map[string]interface{} {
	return map[string]interface{}{
		"type":    "string",
		"pattern": `^-?\d+(\.\d{1,2})?$`,
	}
}

// ValidateAgainstSchema validates data against a schema given as a generic map.
func ValidateAgainstSchema(schemaMap map[string]interface{}, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
