package scheduling

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error identifier
type ErrorCode string

const (
	CodeValidation       ErrorCode = "validation_error"
	CodeConflict         ErrorCode = "conflict"
	CodeNotFound         ErrorCode = "not_found"
	CodeDeadlineExceeded ErrorCode = "deadline_exceeded"
	CodeInternal         ErrorCode = "internal_error"
)

// Error carries a stable code, a human-readable message, and enough
// identifying detail for callers to retry idempotently.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetail returns the error with an added detail field
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError rejects malformed input
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports an illegal state transition or an unschedulable item
func NewConflictError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing entity
func NewNotFoundError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewDeadlineExceededError reports a breached processing deadline
func NewDeadlineExceededError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeDeadlineExceeded, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(err error) *Error {
	return &Error{Code: CodeInternal, Message: err.Error()}
}

// NewTransitionError reports an illegal state transition, naming the attempted
// and current states.
func NewTransitionError(entity, id string, current, attempted string) *Error {
	e := NewConflictError("illegal %s transition from %q to %q", entity, current, attempted)
	e.Details = map[string]interface{}{
		"id":              id,
		"current_state":   current,
		"attempted_state": attempted,
	}
	return e
}

// CodeOf extracts the error code, defaulting to internal_error
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// AsError converts any error into a typed *Error
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err)
}
