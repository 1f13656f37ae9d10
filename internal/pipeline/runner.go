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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TextExtractor turns a stored receipt image into raw text.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// FieldExtractor turns OCR text into structured receipt fields.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, ocrText string) (models.ReceiptFields, error)
}

// FraudAnalyzer gives a second opinion on receipts the heuristics cannot
// confidently score. It is optional; the runner falls back to heuristics.
type FraudAnalyzer interface {
	AssessRisk(ctx context.Context, fields models.ReceiptFields, validationFlags []string) (models.RiskAssessment, error)
}

// DuplicateChecker reports whether another receipt with the same merchant,
// total and date already exists.
type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, receiptID uuid.UUID, merchant string, total decimal.Decimal, date time.Time) (bool, error)
}

// Runner executes the four pipeline stages for one receipt. Fatal stage
// failures are recorded in the returned State; Run returns a non-nil error
// only for transient conditions the queue should retry.
type Runner struct {
	ocr        TextExtractor
	extractor  FieldExtractor
	analyzer   FraudAnalyzer
	duplicates DuplicateChecker

	maxAmount     decimal.Decimal
	minConfidence float64

	logger *zap.Logger
}

func NewRunner(
	ocr TextExtractor,
	extractor FieldExtractor,
	analyzer FraudAnalyzer,
	duplicates DuplicateChecker,
	policy *config.PolicyConfig,
	logger *zap.Logger,
) *Runner {
	maxAmount := decimal.Zero
	if policy.MaxReceiptAmount != "" {
		parsed, err := decimal.NewFromString(policy.MaxReceiptAmount)
		if err != nil {
			logger.Warn("Invalid max receipt amount, limit disabled",
				zap.String("value", policy.MaxReceiptAmount),
				zap.Error(err),
			)
		} else {
			maxAmount = parsed
		}
	}

	return &Runner{
		ocr:           ocr,
		extractor:     extractor,
		analyzer:      analyzer,
		duplicates:    duplicates,
		maxAmount:     maxAmount,
		minConfidence: policy.MinConfidence,
		logger:        logger,
	}
}

// Run processes one receipt end to end.
func (r *Runner) Run(ctx context.Context, receiptID, reportID uuid.UUID, imagePath string) (State, error) {
	st := NewState(receiptID, reportID, imagePath)
	log := r.logger.With(zap.String("receipt_id", receiptID.String()))

	st, err := r.extractTextStage(ctx, st)
	if err != nil {
		return r.settle(st, err, log)
	}

	st, err = r.extractFieldsStage(ctx, st)
	if err != nil {
		return r.settle(st, err, log)
	}

	st = r.validateStage(st)
	st = r.scoreStage(ctx, st)

	st.Status = models.ReceiptStatusDone
	st.CompletedAt = time.Now().UTC()
	log.Info("Pipeline completed",
		zap.Int("fraud_score", st.Risk.Score),
		zap.String("risk_level", string(st.Risk.RiskLevel)),
		zap.Duration("elapsed", st.CompletedAt.Sub(st.StartedAt)),
	)
	return st, nil
}

// settle converts a stage error into the run's outcome: fatal errors are
// recorded on the state and swallowed, transient ones are returned for the
// queue to retry.
func (r *Runner) settle(st State, err error, log *zap.Logger) (State, error) {
	if IsFatal(err) {
		log.Warn("Pipeline failed terminally", zap.Error(err))
		return st.failed(FailureReason(err), err.Error()), nil
	}
	return st, err
}

func (r *Runner) extractTextStage(ctx context.Context, st State) (State, error) {
	text, err := r.ocr.ExtractText(ctx, st.ImagePath)
	if err != nil {
		return st, &ExtractionError{Reason: fmt.Sprintf("text extraction failed: %v", err)}
	}
	if text == "" {
		return st, &ExtractionError{Reason: "no text could be extracted from the image"}
	}

	st.OCRText = text
	return st.withNote(fmt.Sprintf("ocr: extracted %d characters", len(text))), nil
}

func (r *Runner) extractFieldsStage(ctx context.Context, st State) (State, error) {
	fields, err := r.extractor.ExtractFields(ctx, st.OCRText)
	if err != nil {
		if errors.Is(err, llm.ErrInvalidResponse) {
			return st, &ParseError{Reason: "model response failed validation", Err: err}
		}
		// Transient (model unavailable, timeout); the queue retries.
		return st, err
	}

	st.Fields = &fields
	st.Status = models.ReceiptStatusExtracted
	return st.withNote(fmt.Sprintf("extract: merchant=%q total=%s confidence=%.2f",
		fields.MerchantName, fields.TotalAmount.StringFixed(2), fields.Confidence)), nil
}

func (r *Runner) validateStage(st State) State {
	flags, txDate := validateFields(*st.Fields, r.maxAmount, r.minConfidence, time.Now().UTC())
	st.ValidationFlags = flags
	st.TxDate = txDate
	st.Status = models.ReceiptStatusValidated
	if len(flags) > 0 {
		st = st.withNote(fmt.Sprintf("validate: %d flag(s) raised", len(flags)))
	}
	return st
}

func (r *Runner) scoreStage(ctx context.Context, st State) State {
	duplicate := false
	if r.duplicates != nil && st.Fields.MerchantName != "" && st.TxDate != nil {
		dup, err := r.duplicates.IsDuplicate(ctx, st.ReceiptID, st.Fields.MerchantName, st.Fields.TotalAmount, *st.TxDate)
		if err != nil {
			r.logger.Warn("Duplicate check failed, assuming not duplicate",
				zap.String("receipt_id", st.ReceiptID.String()),
				zap.Error(err),
			)
		} else {
			duplicate = dup
		}
	}

	assessment := heuristicAssessment(*st.Fields, st.ValidationFlags, st.TxDate, duplicate)

	// Inconclusive scores get a model second opinion; heuristics win on
	// model failure so scoring never blocks the pipeline.
	if r.analyzer != nil && assessment.Score >= grayBandLow && assessment.Score < grayBandHigh {
		llmAssessment, err := r.analyzer.AssessRisk(ctx, *st.Fields, st.ValidationFlags)
		if err != nil {
			r.logger.Warn("Model risk assessment unavailable, using heuristic score",
				zap.String("receipt_id", st.ReceiptID.String()),
				zap.Error(err),
			)
			st = st.withNote("score: model assessment unavailable, heuristic score kept")
		} else {
			assessment = mergeAssessments(assessment, llmAssessment)
			st = st.withNote("score: model assessment merged")
		}
	}

	st.Risk = &assessment
	st.Status = models.ReceiptStatusScored
	return st
}
