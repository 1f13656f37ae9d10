package llm

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Receipt schema", func() {
	valid := `{
		"merchant_name": "STARBUCKS",
		"transaction_date": "2026-01-06",
		"total_amount": "4.50",
		"currency": "USD",
		"confidence": 0.92,
		"items": [
			{"name": "Latte", "quantity": 1, "unit_price": "4.50", "total_price": "4.50"}
		]
	}`

	It("accepts a well-formed extraction", func() {
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(valid))).To(Succeed())
	})

	It("rejects a missing required field", func() {
		payload := `{"merchant_name": "STARBUCKS", "total_amount": "4.50", "currency": "USD", "confidence": 0.9}`
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(payload))).NotTo(Succeed())
	})

	It("rejects money as a JSON number", func() {
		payload := `{"merchant_name": "X", "transaction_date": "2026-01-06", "total_amount": 4.5, "currency": "USD", "confidence": 0.9}`
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(payload))).NotTo(Succeed())
	})

	It("rejects more than two decimal places", func() {
		payload := `{"merchant_name": "X", "transaction_date": "2026-01-06", "total_amount": "4.505", "currency": "USD", "confidence": 0.9}`
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(payload))).NotTo(Succeed())
	})

	It("rejects non-ISO dates", func() {
		payload := `{"merchant_name": "X", "transaction_date": "01/06/2026", "total_amount": "4.50", "currency": "USD", "confidence": 0.9}`
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(payload))).NotTo(Succeed())
	})

	It("rejects unknown fields", func() {
		payload := `{"merchant_name": "X", "transaction_date": "2026-01-06", "total_amount": "4.50", "currency": "USD", "confidence": 0.9, "extra": true}`
		Expect(ValidateAgainstSchema(BuildReceiptSchema(), []byte(payload))).NotTo(Succeed())
	})
})

var _ = Describe("Risk schema", func() {
	It("accepts a well-formed assessment", func() {
		payload := `{"score": 40, "risk_level": "MEDIUM", "flags": ["round_number_amount"], "explanation": "Round total.", "requires_manual_review": false}`
		Expect(ValidateAgainstSchema(BuildRiskSchema(), []byte(payload))).To(Succeed())
	})

	It("rejects out-of-range scores", func() {
		payload := `{"score": 140, "risk_level": "HIGH", "flags": [], "explanation": "", "requires_manual_review": true}`
		Expect(ValidateAgainstSchema(BuildRiskSchema(), []byte(payload))).NotTo(Succeed())
	})

	It("rejects unknown risk levels", func() {
		payload := `{"score": 40, "risk_level": "SEVERE", "flags": [], "explanation": "", "requires_manual_review": false}`
		Expect(ValidateAgainstSchema(BuildRiskSchema(), []byte(payload))).NotTo(Succeed())
	})
})
