package library

import "errors"

// LibraryError represents errors that can occur during library operations
type LibraryError struct {
	Op      string
	ID      string
	Err     error
	Code    string
	Message string
}

// Error implements the error interface
func (e *LibraryError) Error() string {
	msg := "library." + e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *LibraryError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeNotFound     = "NotFound"
	ErrCodeInvalidInput = "InvalidInput"
	ErrCodeUnsupported  = "Unsupported"
	ErrCodeInternal     = "Internal"
)

// NewLibraryError creates a new LibraryError
func NewLibraryError(op, id string, err error, code, message string) *LibraryError {
	return &LibraryError{
		Op:      op,
		ID:      id,
		Err:     err,
		Code:    code,
		Message: message,
	}
}

// IsNotFound reports whether err is a LibraryError for a missing exploration or note
func IsNotFound(err error) bool {
	var le *LibraryError
	return errors.As(err, &le) && le.Code == ErrCodeNotFound
}
