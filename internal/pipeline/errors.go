package pipeline

import (
	"errors"
	"fmt"
)

// ExtractionError means OCR produced no usable text. Fatal for the run; the
// receipt is marked failed and later stages never execute.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ExtractionError: %s", e.Reason)
}

// ParseError means the LLM response failed structured-data validation.
// Fatal for the run.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ParseError: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error is a terminal stage failure rather than
// a transient one the queue should retry.
func IsFatal(err error) bool {
	var extractionErr *ExtractionError
	var parseErr *ParseError
	return errors.As(err, &extractionErr) || errors.As(err, &parseErr)
}

// FailureReason returns the stable reason string recorded on failed receipts.
func FailureReason(err error) string {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return "ExtractionError"
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return "ParseError"
	}
	return "Error"
}
