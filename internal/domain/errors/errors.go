package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures so every layer can branch on them without string matching.
type ErrorType string

const (
	ErrorTypeValidation             ErrorType = "validation"
	ErrorTypeInternal               ErrorType = "internal"
	ErrorTypeNotFound               ErrorType = "not_found"
	ErrorTypeUnauthorized           ErrorType = "unauthorized"
	ErrorTypeNotPermitted           ErrorType = "not_permitted"
	ErrorTypeDenied                 ErrorType = "denied"
	ErrorTypeConcurrentModification ErrorType = "concurrent_modification"
	ErrorTypeNoRoleAssigned         ErrorType = "no_role_assigned"
	ErrorTypeTransient              ErrorType = "transient"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

// NewNotPermittedError is returned when the permission matrix rejects an action for the
// caller's true role. Decided in process; the backend is never contacted.
func NewNotPermittedError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotPermitted,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
	}
}

// NewDeniedError is returned when the persistence layer's own policy rejects an operation.
func NewDeniedError(operation string) *AppError {
	return &AppError{
		Type:       ErrorTypeDenied,
		Code:       "PERSISTENCE_DENIED",
		Message:    fmt.Sprintf("%s denied by persistence policy", operation),
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"operation": operation},
	}
}

func NewConcurrentModificationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConcurrentModification,
		Code:       "CONCURRENT_MODIFICATION",
		Message:    message,
		Retryable:  true,
		StatusCode: 409,
	}
}

func NewNoRoleAssignedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNoRoleAssigned,
		Code:       "NO_ROLE_ASSIGNED",
		Message:    message,
		Retryable:  false,
		StatusCode: 401,
	}
}

func NewTransientError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeTransient,
		Code:       "TRANSIENT_FAILURE",
		Message:    message,
		Retryable:  true,
		StatusCode: 503,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

// Predefined common errors
var (
	ErrIncidentNotFound  = NewNotFoundError("incident")
	ErrResponderNotFound = NewNotFoundError("responder")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

func IsNotPermitted(err error) bool { return IsType(err, ErrorTypeNotPermitted) }
func IsNotFound(err error) bool     { return IsType(err, ErrorTypeNotFound) }
func IsDenied(err error) bool       { return IsType(err, ErrorTypeDenied) }
func IsTransient(err error) bool    { return IsType(err, ErrorTypeTransient) }
func IsValidation(err error) bool   { return IsType(err, ErrorTypeValidation) }

func IsConcurrentModification(err error) bool {
	return IsType(err, ErrorTypeConcurrentModification)
}

func IsNoRoleAssigned(err error) bool {
	return IsType(err, ErrorTypeNoRoleAssigned)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}

// UserMessage returns the short text shown to end users. Persistence denials read the same
// as in-process rejections so nothing about backend policy leaks.
func UserMessage(err error) string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "something went wrong, please try again"
	}
	switch appErr.Type {
	case ErrorTypeNotPermitted, ErrorTypeDenied:
		return "no access"
	case ErrorTypeNotFound:
		return appErr.Message
	case ErrorTypeConcurrentModification:
		return "this incident changed while you were working on it, refresh and try again"
	case ErrorTypeNoRoleAssigned:
		return "your account has no role assigned, please sign in again"
	case ErrorTypeTransient:
		return "temporary problem, refresh the incident before retrying"
	case ErrorTypeValidation, ErrorTypeUnauthorized:
		return appErr.Message
	default:
		return "something went wrong, please try again"
	}
}
