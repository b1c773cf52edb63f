package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeCancelled   ErrorType = "cancelled"
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeUpstream    ErrorType = "upstream"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeInternal    ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	// StatusCode is the upstream HTTP status for ErrorTypeUpstream, zero otherwise.
	StatusCode int
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewUpstreamError creates an error for a non-2xx response from a remote source
func NewUpstreamError(statusCode int, message string) *DomainError {
	e := NewDomainError(ErrorTypeUpstream, message, nil)
	e.StatusCode = statusCode
	return e
}

// Domain error variables

var (
	ErrPlatformNotReady    = NewDomainError(ErrorTypeUnavailable, "platform client not initialized", nil)
	ErrPlatformConfig      = NewDomainError(ErrorTypeUnavailable, "platform configuration not available", nil)
	ErrAlertsNotConfigured = NewDomainError(ErrorTypeUnavailable, "alert webhook not configured", nil)
)

// Error type checking helper functions

// IsCancelledError reports whether err is a cancellation, including plain context.Canceled
func IsCancelledError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	return GetErrorType(err) == ErrorTypeCancelled
}

// IsTransportError checks if an error is a transport-level failure with no response
func IsTransportError(err error) bool {
	return GetErrorType(err) == ErrorTypeTransport
}

// IsUpstreamError checks if an error carries a non-2xx upstream status
func IsUpstreamError(err error) bool {
	return GetErrorType(err) == ErrorTypeUpstream
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsUnavailableError checks if an error is an unavailable error
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// StatusCode returns the upstream HTTP status of err, or 0
func StatusCode(err error) int {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.StatusCode
	}
	return 0
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapTransport wraps a failure that produced no response
func WrapTransport(message string, err error) error {
	return NewDomainError(ErrorTypeTransport, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
