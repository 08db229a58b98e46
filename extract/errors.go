package extract

import (
	"errors"
	"fmt"
)

// ExtractError represents errors that can occur during structured extraction.
// Raw holds the text of the last attempt for diagnostics.
type ExtractError struct {
	Op       string
	Code     string
	Message  string
	Attempts int
	Raw      string
	Err      error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract.%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("extract.%s: %s", e.Op, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeInvalidInput     = "InvalidInput"
	ErrCodeRetriesExhausted = "RetriesExhausted"
	ErrCodeCanceled         = "Canceled"
)

var (
	errNoObject  = errors.New("no JSON object in response")
	errNoRecords = errors.New("stream ended without a valid record")
)

func newExtractError(op, code, message string, err error) *ExtractError {
	return &ExtractError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsExhausted reports whether err is a terminal failure after the retry
// ceiling was reached.
func IsExhausted(err error) bool {
	var e *ExtractError
	return errors.As(err, &e) && e.Code == ErrCodeRetriesExhausted
}

// IsCanceled reports whether extraction stopped because its context ended.
func IsCanceled(err error) bool {
	var e *ExtractError
	return errors.As(err, &e) && e.Code == ErrCodeCanceled
}
