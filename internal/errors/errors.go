// Package errors defines the coded errors every leadcap surface reports.
// MCP, HTTP and CLI render a LeadError as {"error":{code,message,status}}.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a leadcap error code.
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"   // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrFileNotFound     ErrorCode = "FILE_NOT_FOUND"    // 404
	ErrUnknownForm      ErrorCode = "UNKNOWN_FORM"      // 409 (host form out of sync with config)
	ErrUnknownFormStep  ErrorCode = "UNKNOWN_FORM_STEP" // 409
	ErrCancelled        ErrorCode = "CANCELLED"         // 499
	ErrNotConfigured    ErrorCode = "NOT_CONFIGURED"    // 500
	ErrInternal         ErrorCode = "INTERNAL"          // 500
	ErrSubmissionFailed ErrorCode = "SUBMISSION_FAILED" // 502
)

var statusOf = map[ErrorCode]int{
	ErrInvalidRequest:   400,
	ErrNotFound:         404,
	ErrFileNotFound:     404,
	ErrUnknownForm:      409,
	ErrUnknownFormStep:  409,
	ErrCancelled:        499,
	ErrNotConfigured:    500,
	ErrInternal:         500,
	ErrSubmissionFailed: 502,
}

// LeadError is a coded error with an HTTP-style status and optional details.
type LeadError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

func (e *LeadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, details map[string]any, format string, args ...any) *LeadError {
	return &LeadError{
		Code:    code,
		Status:  statusOf[code],
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}
}

// NewInvalidRequest reports a malformed or out-of-range argument.
func NewInvalidRequest(msg string) *LeadError {
	return newError(ErrInvalidRequest, nil, "%s", msg)
}

// NewNotFound reports a missing lead or session.
func NewNotFound(identifier string) *LeadError {
	return newError(ErrNotFound, map[string]any{"identifier": identifier}, "not found: %s", identifier)
}

// NewFileNotFound reports a missing file on disk.
func NewFileNotFound(path string) *LeadError {
	return newError(ErrFileNotFound, map[string]any{"path": path}, "file not found: %s", path)
}

// NewUnknownForm reports a form name missing from configuration.
func NewUnknownForm(name string) *LeadError {
	return newError(ErrUnknownForm, map[string]any{"form": name}, "unknown form: %q", name)
}

// NewUnknownFormStep reports a step the named form does not declare.
func NewUnknownFormStep(form, step string) *LeadError {
	return newError(ErrUnknownFormStep, map[string]any{"form": form, "step": step},
		"form %q has no step %q", form, step)
}

// NewCancelled reports an operation interrupted by its context.
func NewCancelled(op string) *LeadError {
	return newError(ErrCancelled, map[string]any{"operation": op}, "%s cancelled", op)
}

// NewNotConfigured reports missing required configuration.
func NewNotConfigured(what string) *LeadError {
	return newError(ErrNotConfigured, map[string]any{"missing": what}, "not configured: %s", what)
}

// NewSubmissionFailed reports a sink that rejected a lead.
func NewSubmissionFailed(status, msg string) *LeadError {
	return newError(ErrSubmissionFailed, map[string]any{"sink_status": status},
		"lead submission failed: %s", msg)
}

// NewInternal wraps an unexpected error. The cause goes to Details for
// logging; Message stays generic.
func NewInternal(err error) *LeadError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return newError(ErrInternal, details, "an internal error occurred")
}

// Is reports whether err is, or wraps, a LeadError with the given code.
func Is(err error, code ErrorCode) bool {
	lErr, ok := As(err)
	return ok && lErr.Code == code
}

// As returns the LeadError in err's chain, if any.
func As(err error) (*LeadError, bool) {
	var lErr *LeadError
	if stderrors.As(err, &lErr) {
		return lErr, true
	}
	return nil, false
}
