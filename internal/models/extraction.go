package models

import "github.com/shopspring/decimal"

// ReceiptItem is a single line item on a receipt. Amounts travel as
// decimal strings on the wire and as decimals everywhere else.
type ReceiptItem struct {
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// ReceiptFields is the structured output of the LLM extraction stage.
type ReceiptFields struct {
	MerchantName    string           `json:"merchant_name"`
	MerchantAddress string           `json:"merchant_address,omitempty"`
	TransactionDate string           `json:"transaction_date"`
	TransactionTime string           `json:"transaction_time,omitempty"`
	Items           []ReceiptItem    `json:"items,omitempty"`
	Subtotal        *decimal.Decimal `json:"subtotal,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	Currency        string           `json:"currency"`
	Confidence      float64          `json:"confidence"`
}

type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskLevelForScore maps a 0-100 fraud score onto a risk band.
func RiskLevelForScore(score int) RiskLevel {
	switch {
	case score < 25:
		return RiskLevelLow
	case score < 50:
		return RiskLevelMedium
	case score < 75:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

// RiskAssessment is the outcome of the fraud-scoring stage.
type RiskAssessment struct {
	Score                int       `json:"score"`
	RiskLevel            RiskLevel `json:"risk_level"`
	Flags                []string  `json:"flags"`
	Explanation          string    `json:"explanation"`
	RequiresManualReview bool      `json:"requires_manual_review"`
}
