package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeConnection  ErrorType = "connection"
	ErrTypeValidation  ErrorType = "validation"
	ErrTypeConfig      ErrorType = "config"
	ErrTypeAuth        ErrorType = "authentication"
	ErrTypeForbidden   ErrorType = "forbidden"
	ErrTypeConflict    ErrorType = "conflict"
	ErrTypeNotFound    ErrorType = "not_found"
	ErrTypeUnavailable ErrorType = "unavailable"
	ErrTypeInternal    ErrorType = "internal"
	ErrTypeTimeout     ErrorType = "timeout"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface. Context keys are printed in sorted order.
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ConnectionError creates a new connection error
func ConnectionError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeConnection, Message: msg, Cause: cause}
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// UnavailableError creates an error for a backing service that could not be reached
func UnavailableError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeUnavailable, Message: msg, Cause: cause}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string) *AppError {
	return &AppError{Type: ErrTypeTimeout, Message: fmt.Sprintf("timeout during %s", operation)}
}

// IsType checks if err, or anything it wraps, is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// GetType returns the error type if it's an AppError, otherwise returns ErrTypeInternal
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return ErrTypeInternal
	}
	return appErr.Type
}
