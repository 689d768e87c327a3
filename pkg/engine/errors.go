package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/noironetworks/neutron/pkg/schema"
	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

// ErrHostNotConfigured is returned when a host has no recorded link to the
// fabric, so no path can be bound for it.
var ErrHostNotConfigured = errors.New("host not configured on the fabric")

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: unreachable controllers, timeouts.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates the controller refused a change because of
	// the current state of another object.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: bad credentials, unknown classes, missing inventory.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the logical key of the resource being reconciled.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Resource != "" && e.Operation != "":
		msg += fmt.Sprintf(" (resource=%s, operation=%s)", e.Resource, e.Operation)
	case e.Resource != "":
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// Classify maps an error from any layer onto an ErrorClass.
func Classify(err error) ErrorClass {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Class
	}

	var noResponse *apic.HostNoResponseError
	if errors.As(err, &noResponse) {
		return ErrorClassTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTransient
	}
	if rejected, ok := apic.IsRejected(err); ok {
		switch {
		case rejected.Status >= http.StatusInternalServerError:
			return ErrorClassTransient
		case rejected.Status == http.StatusConflict:
			return ErrorClassConflict
		}
		return ErrorClassPermanent
	}
	return ErrorClassPermanent
}

// CodeOf returns the error code matching err.
func CodeOf(err error) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Code != "" {
		return engineErr.Code
	}
	var authErr *apic.AuthenticationFailedError
	switch {
	case errors.Is(err, ErrHostNotConfigured):
		return ErrCodeHostNotConfigured
	case errors.Is(err, schema.ErrUnknownClass), errors.Is(err, schema.ErrArityMismatch):
		return ErrCodeValidation
	case errors.Is(err, stores.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, apic.ErrNotAuthenticated), errors.As(err, &authErr):
		return ErrCodePermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	}
	var noResponse *apic.HostNoResponseError
	if errors.As(err, &noResponse) {
		return ErrCodeUnreachable
	}
	if _, ok := apic.IsRejected(err); ok {
		return ErrCodeRejected
	}
	return ErrCodeInternal
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ErrorClassTransient
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return err != nil && Classify(err) == ErrorClassConflict
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	return err != nil && Classify(err) == ErrorClassPermanent
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsConflict(err)
}

// Common error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeUnreachable       = "UNREACHABLE"
	ErrCodeRejected          = "REJECTED"
	ErrCodeHostNotConfigured = "HOST_NOT_CONFIGURED"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
