package controlplane

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for handling and
// reporting. Business rejections never surface as errors; these classes
// cover collaborator faults and caller mistakes only.
type ErrorClass string

const (
	// ErrorClassValidation indicates malformed input that cannot be
	// processed. Examples: unparseable request bodies, unknown enum values.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassConflict indicates a concurrent-modification conflict.
	// Examples: an operation token already held by another caller.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassUnavailable indicates a collaborator could not serve the
	// request. Examples: config manager read failures. May succeed on retry.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassInternal indicates an unexpected fault in the control plane
	// itself.
	ErrorClassInternal ErrorClass = "internal"
)

// ControlError represents a classified error with context.
// nolint:revive // ControlError is intentionally named to distinguish from standard errors
type ControlError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource ID involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ControlError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ControlError) Unwrap() error {
	return e.Err
}

func (e *ControlError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *ControlError) Is(target error) bool {
	t, ok := target.(*ControlError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *ControlError {
	return &ControlError{
		Class:   ErrorClassValidation,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *ControlError {
	return &ControlError{
		Class:   ErrorClassConflict,
		Message: message,
		Err:     err,
	}
}

// NewUnavailableError creates a new unavailable error.
func NewUnavailableError(message string, err error) *ControlError {
	return &ControlError{
		Class:   ErrorClassUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *ControlError {
	return &ControlError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *ControlError) WithResource(resourceID string) *ControlError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *ControlError) WithOperation(operation string) *ControlError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *ControlError) WithCode(code string) *ControlError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ControlError) WithDetail(key string, value interface{}) *ControlError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *ControlError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *ControlError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsUnavailable returns true if the error is classified as unavailable.
func IsUnavailable(err error) bool {
	var e *ControlError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnavailable
	}
	return false
}

// IsInternal returns true if the error is classified as internal.
func IsInternal(err error) bool {
	var e *ControlError
	if errors.As(err, &e) {
		return e.Class == ErrorClassInternal
	}
	return false
}

// IsRetryable returns true if the error may succeed on retry.
// Unavailable and conflict errors are retryable.
func IsRetryable(err error) bool {
	return IsUnavailable(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeTicketNotFound     = "TICKET_NOT_FOUND"
	ErrCodeWorkflowNotFound   = "WORKFLOW_NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeConfigUnavailable  = "CONFIG_UNAVAILABLE"
	ErrCodeRuntimeUnavailable = "RUNTIME_UNAVAILABLE"
	ErrCodePolicyFailed       = "POLICY_FAILED"
	ErrCodeRollbackFailed     = "ROLLBACK_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
