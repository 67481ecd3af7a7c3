package schema

import "fmt"

// IssueSeverity indicates whether an import issue is fatal or informational.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ImportIssue is a single problem found while reading a diagram model.
// Ref names the offending element or flow ID ("" for document-level issues).
type ImportIssue struct {
	Ref      string        `json:"ref,omitempty"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
}

// ImportReport aggregates the issues collected while importing one diagram.
// Dangling flows and shapes without geometry are warnings: the graph
// primitives tolerate them, so they never block a load.
type ImportReport struct {
	Errors   []ImportIssue `json:"errors,omitempty"`
	Warnings []ImportIssue `json:"warnings,omitempty"`
}

// Valid returns true if there are no errors.
func (r *ImportReport) Valid() bool {
	return len(r.Errors) == 0
}

// AddError appends an error-severity issue.
func (r *ImportReport) AddError(ref, code, message string) {
	r.Errors = append(r.Errors, ImportIssue{
		Ref: ref, Code: code, Message: message, Severity: SeverityError,
	})
}

// AddWarningf appends a warning-severity issue with a formatted message.
func (r *ImportReport) AddWarningf(ref, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, ImportIssue{
		Ref: ref, Code: code, Message: fmt.Sprintf(format, args...), Severity: SeverityWarning,
	})
}

// Merge combines another report into this one.
func (r *ImportReport) Merge(other *ImportReport) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError converts the report to a LensError if invalid, nil if valid.
func (r *ImportReport) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("import failed with %d errors", len(r.Errors))
	}

	return NewError(ErrCodeValidation, msg).
		WithDetails(map[string]any{
			"error_count":   len(r.Errors),
			"warning_count": len(r.Warnings),
			"errors":        r.Errors,
			"warnings":      r.Warnings,
		})
}
