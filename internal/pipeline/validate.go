package pipeline

import (
	"time"

	"expense-audit/internal/models"

	"github.com/shopspring/decimal"
)

// Validation flag names are stable strings stored with the receipt and shown
// to reviewers; renaming one is a breaking change for saved data.
const (
	FlagMissingMerchant       = "missing_merchant_name"
	FlagMissingTotal          = "missing_total_amount"
	FlagMissingDate           = "missing_transaction_date"
	FlagNegativeTotal         = "negative_total_amount"
	FlagAmountExceedsLimit    = "amount_exceeds_limit"
	FlagInvalidDateFormat     = "invalid_date_format"
	FlagFutureDate            = "future_transaction_date"
	FlagItemsSubtotalMismatch = "items_subtotal_mismatch"
	FlagLowConfidence         = "low_extraction_confidence"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

func parseTransactionDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// itemsSubtotalTolerance absorbs per-line rounding on printed receipts.
var itemsSubtotalTolerance = decimal.NewFromFloat(0.01)

// validateFields applies the business rules to extracted fields and returns
// the raised flags plus the parsed transaction date when one could be parsed.
// Validation never fails the pipeline; flags feed the fraud stage and the
// reviewer UI.
func validateFields(fields models.ReceiptFields, maxAmount decimal.Decimal, minConfidence float64, now time.Time) ([]string, *time.Time) {
	var flags []string
	var txDate *time.Time

	if fields.MerchantName == "" {
		flags = append(flags, FlagMissingMerchant)
	}

	if fields.TotalAmount.IsZero() {
		flags = append(flags, FlagMissingTotal)
	} else if fields.TotalAmount.IsNegative() {
		flags = append(flags, FlagNegativeTotal)
	}
	if maxAmount.IsPositive() && fields.TotalAmount.GreaterThan(maxAmount) {
		flags = append(flags, FlagAmountExceedsLimit)
	}

	switch {
	case fields.TransactionDate == "":
		flags = append(flags, FlagMissingDate)
	default:
		if t, ok := parseTransactionDate(fields.TransactionDate); ok {
			txDate = &t
			if t.After(now) {
				flags = append(flags, FlagFutureDate)
			}
		} else {
			flags = append(flags, FlagInvalidDateFormat)
		}
	}

	if len(fields.Items) > 0 && fields.Subtotal != nil {
		sum := decimal.Zero
		for _, item := range fields.Items {
			sum = sum.Add(item.TotalPrice)
		}
		if sum.Sub(*fields.Subtotal).Abs().GreaterThan(itemsSubtotalTolerance) {
			flags = append(flags, FlagItemsSubtotalMismatch)
		}
	}

	if fields.Confidence < minConfidence {
		flags = append(flags, FlagLowConfidence)
	}

	return flags, txDate
}
