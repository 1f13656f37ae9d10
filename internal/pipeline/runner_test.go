package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expense-audit/internal/llm"
	"expense-audit/internal/models"
	"expense-audit/pkg/config"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(ctx context.Context, path string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	fields models.ReceiptFields
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractFields(ctx context.Context, ocrText string) (models.ReceiptFields, error) {
	f.calls++
	if f.err != nil {
		return models.ReceiptFields{}, f.err
	}
	return f.fields, nil
}

type fakeAnalyzer struct {
	assessment models.RiskAssessment
	err        error
	calls      int
}

func (f *fakeAnalyzer) AssessRisk(ctx context.Context, fields models.ReceiptFields, validationFlags []string) (models.RiskAssessment, error) {
	f.calls++
	if f.err != nil {
		return models.RiskAssessment{}, f.err
	}
	return f.assessment, nil
}

type fakeDuplicates struct {
	dup bool
	err error
}

func (f *fakeDuplicates) IsDuplicate(ctx context.Context, receiptID uuid.UUID, merchant string, total decimal.Decimal, date time.Time) (bool, error) {
	return f.dup, f.err
}

func cleanFields() models.ReceiptFields {
	// A weekday in the past, a non-round total, high confidence: raises no
	// validation or fraud indicators.
	return models.ReceiptFields{
		MerchantName:    "STARBUCKS",
		TransactionDate: "2026-01-06",
		TotalAmount:     decimal.RequireFromString("4.50"),
		Currency:        "USD",
		Confidence:      0.92,
	}
}

var _ = Describe("Runner", func() {
	var (
		ocr        *fakeOCR
		extractor  *fakeExtractor
		analyzer   *fakeAnalyzer
		duplicates *fakeDuplicates
		runner     *Runner

		receiptID uuid.UUID
		reportID  uuid.UUID
	)

	policy := &config.PolicyConfig{
		MaxReceiptAmount: "5000.00",
		MinConfidence:    0.5,
	}

	BeforeEach(func() {
		ocr = &fakeOCR{text: "STARBUCKS\nLATTE 4.50\nTOTAL 4.50"}
		extractor = &fakeExtractor{fields: cleanFields()}
		analyzer = &fakeAnalyzer{}
		duplicates = &fakeDuplicates{}
		runner = NewRunner(ocr, extractor, analyzer, duplicates, policy, zap.NewNop())

		receiptID = uuid.New()
		reportID = uuid.New()
	})

	run := func() (State, error) {
		return runner.Run(context.Background(), receiptID, reportID, "/tmp/receipt.jpg")
	}

	Context("with a clean receipt", func() {
		It("completes with status DONE", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(models.ReceiptStatusDone))
			Expect(state.Failed()).To(BeFalse())
		})

		It("carries the extracted fields and OCR text", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.OCRText).To(ContainSubstring("STARBUCKS"))
			Expect(state.Fields).NotTo(BeNil())
			Expect(state.Fields.MerchantName).To(Equal("STARBUCKS"))
			Expect(state.Fields.TotalAmount.StringFixed(2)).To(Equal("4.50"))
		})

		It("raises no validation flags and scores low risk", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ValidationFlags).To(BeEmpty())
			Expect(state.Risk.Score).To(Equal(0))
			Expect(state.Risk.RiskLevel).To(Equal(models.RiskLevelLow))
			Expect(state.Risk.RequiresManualReview).To(BeFalse())
		})

		It("does not consult the model for low scores", func() {
			_, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(analyzer.calls).To(BeZero())
		})
	})

	Context("when OCR produces no text", func() {
		BeforeEach(func() {
			ocr.text = ""
		})

		It("fails terminally with an extraction failure", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Failed()).To(BeTrue())
			Expect(state.FailureReason).To(Equal("ExtractionError"))
		})

		It("never runs later stages", func() {
			_, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(extractor.calls).To(BeZero())
			Expect(analyzer.calls).To(BeZero())
		})
	})

	Context("when OCR errors", func() {
		BeforeEach(func() {
			ocr.err = errors.New("unsupported file format: .bmp")
		})

		It("fails terminally", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Failed()).To(BeTrue())
			Expect(state.FailureReason).To(Equal("ExtractionError"))
		})
	})

	Context("when the model returns unparsable output", func() {
		BeforeEach(func() {
			extractor.err = fmt.Errorf("%w: no JSON object found", llm.ErrInvalidResponse)
		})

		It("fails terminally with a parse failure", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Failed()).To(BeTrue())
			Expect(state.FailureReason).To(Equal("ParseError"))
		})
	})

	Context("when the model is unavailable", func() {
		BeforeEach(func() {
			extractor.err = fmt.Errorf("%w: status 503", llm.ErrUnavailable)
		})

		It("returns the error for the queue to retry", func() {
			state, err := run()
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, llm.ErrUnavailable)).To(BeTrue())
			Expect(state.Failed()).To(BeFalse())
		})
	})

	Context("with validation problems", func() {
		BeforeEach(func() {
			fields := cleanFields()
			fields.TransactionDate = time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
			extractor.fields = fields
		})

		It("still completes; validation never fails the run", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(models.ReceiptStatusDone))
			Expect(state.ValidationFlags).To(ContainElement(FlagFutureDate))
		})
	})

	Context("with an inconclusive heuristic score", func() {
		BeforeEach(func() {
			// Missing merchant (+25) plus round total (+15) lands at 40.
			fields := cleanFields()
			fields.MerchantName = ""
			fields.TotalAmount = decimal.RequireFromString("100.00")
			extractor.fields = fields
		})

		It("consults the model", func() {
			analyzer.assessment = models.RiskAssessment{
				Score:       80,
				RiskLevel:   models.RiskLevelCritical,
				Flags:       []string{"suspicious_merchant"},
				Explanation: "Merchant cannot be identified and amount is suspiciously round.",
			}

			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(analyzer.calls).To(Equal(1))
			Expect(state.Risk.Score).To(Equal(80))
			Expect(state.Risk.RequiresManualReview).To(BeTrue())
			Expect(state.Risk.Flags).To(ContainElement("suspicious_merchant"))
		})

		It("keeps heuristic flags after the merge", func() {
			analyzer.assessment = models.RiskAssessment{Score: 10}

			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Risk.Score).To(Equal(40))
			Expect(state.Risk.Flags).To(ContainElement(FraudFlagMissingMerchant))
		})

		It("falls back to heuristics when the model fails", func() {
			analyzer.err = fmt.Errorf("%w: timeout", llm.ErrUnavailable)

			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(models.ReceiptStatusDone))
			Expect(state.Risk.Score).To(Equal(40))
		})
	})

	Context("with a duplicate receipt", func() {
		BeforeEach(func() {
			duplicates.dup = true
			analyzer.err = errors.New("should not matter")
		})

		It("adds the duplicate indicator", func() {
			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Risk.Flags).To(ContainElement(FraudFlagDuplicate))
			Expect(state.Risk.Score).To(BeNumerically(">=", 40))
		})

		It("survives duplicate-checker failures", func() {
			duplicates.dup = false
			duplicates.err = errors.New("db down")

			state, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Status).To(Equal(models.ReceiptStatusDone))
			Expect(state.Risk.Flags).NotTo(ContainElement(FraudFlagDuplicate))
		})
	})
})
