// Package errors defines the structured error taxonomy for the security
// pipeline. Every failure that can reach a connection is one of three
// kinds: a recoverable rate-limit rejection, a recoverable validation
// rejection, or a fail-closed security error. The orchestrator converts
// any of them into a wire rejection payload; nothing else is allowed to
// propagate to the connection layer.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Stable machine-readable rejection codes.
const (
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeSecurityError     = "SECURITY_ERROR"
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ChatError is a structured error with a stable code and recovery hint.
type ChatError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	Recoverable bool

	// RetryAfter is set on rate-limit errors so callers know when a
	// retry can succeed.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("[%s] %s", e.Code, msg)
	}
	if e.Component != "" {
		msg = "component:" + e.Component + " " + msg
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Is matches errors by type and code so callers can use errors.Is with
// sentinel-style ChatErrors.
func (e *ChatError) Is(target error) bool {
	var t *ChatError
	if errors.As(target, &t) {
		return e.Type == t.Type && (t.Code == "" || e.Code == t.Code)
	}
	return false
}

// WithComponent adds component context.
func (e *ChatError) WithComponent(component string) *ChatError {
	e.Component = component
	return e
}

// NewRateLimitError creates a recoverable rate-limit rejection.
func NewRateLimitError(message string, retryAfter time.Duration) *ChatError {
	return &ChatError{
		Type:        ErrorTypeRateLimit,
		Code:        CodeRateLimitExceeded,
		Message:     message,
		Recoverable: true,
		RetryAfter:  retryAfter,
	}
}

// NewValidationError creates a validation rejection.
func NewValidationError(message string) *ChatError {
	return &ChatError{
		Type:        ErrorTypeValidation,
		Code:        CodeValidationError,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a fail-closed security error.
func NewSecurityError(message string, cause error) *ChatError {
	return &ChatError{
		Type:        ErrorTypeSecurity,
		Code:        CodeSecurityError,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *ChatError {
	return &ChatError{
		Type:        ErrorTypeConfig,
		Code:        CodeConfigInvalid,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *ChatError {
	return &ChatError{
		Type:        ErrorTypeInternal,
		Code:        CodeInternalError,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRateLimit reports whether err is a rate-limit rejection.
func IsRateLimit(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Type == ErrorTypeRateLimit
}

// IsValidation reports whether err is a validation rejection.
func IsValidation(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Type == ErrorTypeValidation
}

// IsSecurity reports whether err is a security error.
func IsSecurity(err error) bool {
	var ce *ChatError
	return errors.As(err, &ce) && ce.Type == ErrorTypeSecurity
}

// IsRecoverable reports whether the caller may retry.
func IsRecoverable(err error) bool {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Recoverable
	}
	return false
}

// Rejection is the user-visible payload for a rejected message. It
// carries a stable code and a non-technical message; internal detail
// never crosses this boundary.
type Rejection struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	ErrorCode string `json:"error_code"`
}

// ToRejection maps any pipeline error onto the wire rejection payload.
// Unknown errors fail closed as SECURITY_ERROR.
func ToRejection(err error) Rejection {
	var ce *ChatError
	if !errors.As(err, &ce) {
		return Rejection{
			Type:      "security_error",
			Content:   "Security processing failed. Please try again.",
			ErrorCode: CodeSecurityError,
		}
	}

	switch ce.Type {
	case ErrorTypeRateLimit:
		return Rejection{
			Type:      "security_error",
			Content:   "Rate limit exceeded. Please wait before sending another message.",
			ErrorCode: CodeRateLimitExceeded,
		}
	case ErrorTypeValidation:
		return Rejection{
			Type:      "security_error",
			Content:   "Message validation failed. Please check your input.",
			ErrorCode: CodeValidationError,
		}
	default:
		return Rejection{
			Type:      "security_error",
			Content:   "Security processing failed. Please try again.",
			ErrorCode: CodeSecurityError,
		}
	}
}
