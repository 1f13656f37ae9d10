package pipeline

import (
	"time"

	"expense-audit/internal/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("validateFields", func() {
	var (
		fields    models.ReceiptFields
		maxAmount decimal.Decimal
		now       time.Time
	)

	BeforeEach(func() {
		fields = models.ReceiptFields{
			MerchantName:    "WHOLE FOODS",
			TransactionDate: "2026-02-13",
			TotalAmount:     decimal.RequireFromString("87.23"),
			Currency:        "USD",
			Confidence:      0.85,
		}
		maxAmount = decimal.RequireFromString("5000.00")
		now = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	})

	check := func() []string {
		flags, _ := validateFields(fields, maxAmount, 0.5, now)
		return flags
	}

	It("passes a complete receipt with no flags", func() {
		Expect(check()).To(BeEmpty())
	})

	It("parses the transaction date", func() {
		_, txDate := validateFields(fields, maxAmount, 0.5, now)
		Expect(txDate).NotTo(BeNil())
		Expect(txDate.Format("2006-01-02")).To(Equal("2026-02-13"))
	})

	It("flags a missing merchant", func() {
		fields.MerchantName = ""
		Expect(check()).To(ContainElement(FlagMissingMerchant))
	})

	It("flags a zero total", func() {
		fields.TotalAmount = decimal.Zero
		Expect(check()).To(ContainElement(FlagMissingTotal))
	})

	It("flags a negative total", func() {
		fields.TotalAmount = decimal.RequireFromString("-12.00")
		Expect(check()).To(ContainElement(FlagNegativeTotal))
	})

	It("flags totals over the policy limit", func() {
		fields.TotalAmount = decimal.RequireFromString("5000.01")
		Expect(check()).To(ContainElement(FlagAmountExceedsLimit))
	})

	It("flags a missing transaction date", func() {
		fields.TransactionDate = ""
		Expect(check()).To(ContainElement(FlagMissingDate))
	})

	It("flags an unparsable date", func() {
		fields.TransactionDate = "sometime last week"
		Expect(check()).To(ContainElement(FlagInvalidDateFormat))
	})

	It("accepts common non-ISO date formats", func() {
		fields.TransactionDate = "02/13/2026"
		Expect(check()).To(BeEmpty())
	})

	It("flags future dates", func() {
		fields.TransactionDate = "2026-09-15"
		Expect(check()).To(ContainElement(FlagFutureDate))
	})

	It("flags confidence below the minimum", func() {
		fields.Confidence = 0.3
		Expect(check()).To(ContainElement(FlagLowConfidence))
	})

	Context("item sums", func() {
		BeforeEach(func() {
			subtotal := decimal.RequireFromString("10.00")
			fields.Subtotal = &subtotal
			fields.Items = []models.ReceiptItem{
				{Name: "Coffee", Quantity: 1, UnitPrice: decimal.RequireFromString("6.00"), TotalPrice: decimal.RequireFromString("6.00")},
				{Name: "Muffin", Quantity: 1, UnitPrice: decimal.RequireFromString("4.00"), TotalPrice: decimal.RequireFromString("4.00")},
			}
		})

		It("accepts items matching the subtotal", func() {
			Expect(check()).To(BeEmpty())
		})

		It("tolerates a one-cent rounding difference", func() {
			subtotal := decimal.RequireFromString("10.01")
			fields.Subtotal = &subtotal
			Expect(check()).To(BeEmpty())
		})

		It("flags a mismatch beyond the tolerance", func() {
			subtotal := decimal.RequireFromString("12.50")
			fields.Subtotal = &subtotal
			Expect(check()).To(ContainElement(FlagItemsSubtotalMismatch))
		})
	})
})
