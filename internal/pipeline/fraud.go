package pipeline

import (
	"fmt"
	"strings"
	"time"

	"expense-audit/internal/models"
)

// Fraud flag names, stored with the receipt alongside the score.
const (
	FraudFlagDuplicate       = "duplicate_receipt"
	FraudFlagRoundAmount     = "round_number_amount"
	FraudFlagWeekend         = "weekend_transaction"
	FraudFlagFutureDate      = "future_dated"
	FraudFlagMissingMerchant = "merchant_missing"
	FraudFlagOverLimit       = "over_policy_limit"
	FraudFlagLowConfidence   = "low_ocr_confidence"
)

// manualReviewThreshold is the score at or above which a receipt forces its
// report into FLAGGED for manual review.
const manualReviewThreshold = 70

// Gray band where heuristics alone are inconclusive and the model gets a say.
const (
	grayBandLow  = 40
	grayBandHigh = 70
)

func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}

// heuristicAssessment scores a receipt with deterministic rules. The weights
// are additive and the score is capped at 100.
func heuristicAssessment(fields models.ReceiptFields, validationFlags []string, txDate *time.Time, duplicate bool) models.RiskAssessment {
	score := 0
	var flags []string

	if duplicate {
		score += 40
		flags = append(flags, FraudFlagDuplicate)
	}
	if hasFlag(validationFlags, FlagMissingMerchant) {
		score += 25
		flags = append(flags, FraudFlagMissingMerchant)
	}
	if hasFlag(validationFlags, FlagFutureDate) {
		score += 30
		flags = append(flags, FraudFlagFutureDate)
	}
	if hasFlag(validationFlags, FlagAmountExceedsLimit) {
		score += 35
		flags = append(flags, FraudFlagOverLimit)
	}
	if hasFlag(validationFlags, FlagLowConfidence) {
		score += 15
		flags = append(flags, FraudFlagLowConfidence)
	}
	if fields.TotalAmount.IsPositive() && fields.TotalAmount.Truncate(0).Equal(fields.TotalAmount) {
		score += 15
		flags = append(flags, FraudFlagRoundAmount)
	}
	if txDate != nil {
		if wd := txDate.Weekday(); wd == time.Saturday || wd == time.Sunday {
			score += 10
			flags = append(flags, FraudFlagWeekend)
		}
	}

	if score > 100 {
		score = 100
	}

	explanation := "No fraud indicators detected."
	if len(flags) > 0 {
		explanation = fmt.Sprintf("Rule-based indicators: %s.", strings.Join(flags, ", "))
	}

	return models.RiskAssessment{
		Score:                score,
		RiskLevel:            models.RiskLevelForScore(score),
		Flags:                flags,
		Explanation:          explanation,
		RequiresManualReview: score >= manualReviewThreshold,
	}
}

// mergeAssessments overlays a model verdict on top of the heuristic one.
// Heuristic flags are kept; the score is whichever is higher, so the model
// can escalate but never silently clear deterministic indicators.
func mergeAssessments(heuristic, llm models.RiskAssessment) models.RiskAssessment {
	merged := heuristic
	if llm.Score > merged.Score {
		merged.Score = llm.Score
	}
	merged.RiskLevel = models.RiskLevelForScore(merged.Score)
	for _, f := range llm.Flags {
		if !hasFlag(merged.Flags, f) {
			merged.Flags = append(merged.Flags, f)
		}
	}
	if llm.Explanation != "" {
		merged.Explanation = llm.Explanation
	}
	merged.RequiresManualReview = merged.Score >= manualReviewThreshold || llm.RequiresManualReview
	return merged
}
