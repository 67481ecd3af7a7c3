package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeDecode            = "DECODE_ERROR"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeRender            = "RENDER_ERROR"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeExpression        = "EXPRESSION_ERROR"
)

// LensError is the structured error type returned across package boundaries.
type LensError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	ElementID string         `json:"element_id,omitempty"`
	Cause     error          `json:"-"`
}

func (e *LensError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("[%s] element %s: %s", e.Code, e.ElementID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LensError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LensError.
func NewError(code, message string) *LensError {
	return &LensError{Code: code, Message: message}
}

// NewErrorf creates a new LensError with a formatted message.
func NewErrorf(code, format string, args ...any) *LensError {
	return &LensError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithElement attaches a diagram element ID to the error.
func (e *LensError) WithElement(elementID string) *LensError {
	e.ElementID = elementID
	return e
}

// WithCause attaches an underlying cause.
func (e *LensError) WithCause(err error) *LensError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *LensError) WithDetails(details map[string]any) *LensError {
	e.Details = details
	return e
}

// IsCode reports whether err is a LensError carrying the given code.
func IsCode(err error, code string) bool {
	var le *LensError
	return errors.As(err, &le) && le.Code == code
}
