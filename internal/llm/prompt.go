package llm

import (
	"encoding/json"
	"fmt"
)

const extractionSystemPrompt = `You are a receipts parser. Return ONLY a JSON object that matches the provided JSON Schema.
Use ISO-8601 dates (YYYY-MM-DD) and 24-hour times (HH:MM).
Currency must be a 3-letter ISO 4217 code; default to USD if uncertain.
All money amounts must be strings with at most two decimal places, e.g. "4.50".
List every visible line item under 'items' with quantity and prices.
Set 'confidence' between 0 and 1 reflecting how legible and complete the receipt text is.
Never output null. If an optional field is not present on the receipt, omit it.
If the text does not look like a receipt at all, still return your best-effort object with a low confidence.`

func buildExtractionUserPrompt(ocrText string) string {
	return fmt.Sprintf("Receipt text (from OCR):\n%s\n\nReturn ONLY JSON that matches the provided schema.", ocrText)
}

const fraudSystemPrompt = `You are a fraud detection specialist for expense receipts. Return ONLY a JSON object that matches the provided JSON Schema.
Consider: round-number totals, weekend or future dates, unusual merchants, missing information, unrealistic prices, mismatched item sums.
Score 0 means no fraud indicators, 100 means certain fraud.`

func buildFraudUserPrompt(fields interface{}, validationFlags []string) string {
	fieldsJSON, _ := json.MarshalIndent(fields, "", "  ")
	flagsJSON, _ := json.Marshal(validationFlags)
	return fmt.Sprintf(
		"Receipt data:\n%s\n\nValidation flags already raised:\n%s\n\nAssess the fraud risk. Return ONLY JSON that matches the provided schema.",
		fieldsJSON, flagsJSON,
	)
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
