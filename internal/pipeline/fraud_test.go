package pipeline

import (
	"time"

	"expense-audit/internal/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("heuristicAssessment", func() {
	var (
		fields models.ReceiptFields
		vflags []string
		txDate *time.Time
	)

	BeforeEach(func() {
		fields = models.ReceiptFields{
			MerchantName: "STARBUCKS",
			TotalAmount:  decimal.RequireFromString("4.50"),
		}
		vflags = nil
		tuesday := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
		txDate = &tuesday
	})

	It("scores zero for a clean receipt", func() {
		a := heuristicAssessment(fields, vflags, txDate, false)
		Expect(a.Score).To(Equal(0))
		Expect(a.RiskLevel).To(Equal(models.RiskLevelLow))
		Expect(a.Flags).To(BeEmpty())
		Expect(a.RequiresManualReview).To(BeFalse())
	})

	It("adds 40 for a duplicate", func() {
		a := heuristicAssessment(fields, vflags, txDate, true)
		Expect(a.Score).To(Equal(40))
		Expect(a.Flags).To(ConsistOf(FraudFlagDuplicate))
	})

	It("adds 15 for a round total", func() {
		fields.TotalAmount = decimal.RequireFromString("200.00")
		a := heuristicAssessment(fields, vflags, txDate, false)
		Expect(a.Score).To(Equal(15))
		Expect(a.Flags).To(ConsistOf(FraudFlagRoundAmount))
	})

	It("does not treat zero as a round amount", func() {
		fields.TotalAmount = decimal.Zero
		a := heuristicAssessment(fields, vflags, txDate, false)
		Expect(a.Flags).NotTo(ContainElement(FraudFlagRoundAmount))
	})

	It("adds 10 for weekend transactions", func() {
		saturday := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
		a := heuristicAssessment(fields, vflags, &saturday, false)
		Expect(a.Score).To(Equal(10))
		Expect(a.Flags).To(ConsistOf(FraudFlagWeekend))
	})

	It("carries validation flags into the score", func() {
		vflags = []string{FlagMissingMerchant, FlagFutureDate, FlagAmountExceedsLimit, FlagLowConfidence}
		a := heuristicAssessment(fields, vflags, nil, false)
		// 25 + 30 + 35 + 15
		Expect(a.Score).To(Equal(100))
		Expect(a.RiskLevel).To(Equal(models.RiskLevelCritical))
		Expect(a.RequiresManualReview).To(BeTrue())
	})

	It("caps the score at 100", func() {
		vflags = []string{FlagMissingMerchant, FlagFutureDate, FlagAmountExceedsLimit, FlagLowConfidence}
		fields.TotalAmount = decimal.RequireFromString("9000.00")
		a := heuristicAssessment(fields, vflags, txDate, true)
		Expect(a.Score).To(Equal(100))
	})

	It("requires manual review at 70 and above", func() {
		vflags = []string{FlagMissingMerchant, FlagFutureDate}
		a := heuristicAssessment(fields, vflags, txDate, true)
		// 25 + 30 + 40 = 95
		Expect(a.Score).To(Equal(95))
		Expect(a.RequiresManualReview).To(BeTrue())
	})
})

var _ = Describe("mergeAssessments", func() {
	heuristic := models.RiskAssessment{
		Score:     45,
		RiskLevel: models.RiskLevelMedium,
		Flags:     []string{FraudFlagRoundAmount, FraudFlagWeekend},
	}

	It("takes the higher score", func() {
		merged := mergeAssessments(heuristic, models.RiskAssessment{Score: 75})
		Expect(merged.Score).To(Equal(75))
		Expect(merged.RiskLevel).To(Equal(models.RiskLevelCritical))
		Expect(merged.RequiresManualReview).To(BeTrue())
	})

	It("never lets the model lower the heuristic score", func() {
		merged := mergeAssessments(heuristic, models.RiskAssessment{Score: 5})
		Expect(merged.Score).To(Equal(45))
		Expect(merged.RequiresManualReview).To(BeFalse())
	})

	It("unions flags without duplicates", func() {
		merged := mergeAssessments(heuristic, models.RiskAssessment{
			Score: 50,
			Flags: []string{FraudFlagWeekend, "suspicious_merchant"},
		})
		Expect(merged.Flags).To(ConsistOf(FraudFlagRoundAmount, FraudFlagWeekend, "suspicious_merchant"))
	})

	It("prefers the model explanation when present", func() {
		merged := mergeAssessments(heuristic, models.RiskAssessment{Score: 50, Explanation: "Looks fabricated."})
		Expect(merged.Explanation).To(Equal("Looks fabricated."))
	})

	It("honors the model's manual-review request", func() {
		merged := mergeAssessments(heuristic, models.RiskAssessment{Score: 30, RequiresManualReview: true})
		Expect(merged.RequiresManualReview).To(BeTrue())
	})
})
