// Package apperr carries error codes and HTTP statuses from the services up to
// the API error handler.
package apperr

import (
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeForbidden    = "FORBIDDEN"

	// Request
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"

	// Resources
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Rules engine
	CodeMalformedRule       = "MALFORMED_RULE"
	CodeUnknownAction       = "UNKNOWN_ACTION"
	CodeContactNotFound     = "CONTACT_NOT_FOUND"
	CodeStageNotFound       = "STAGE_NOT_FOUND"
	CodeOpportunityNotFound = "OPPORTUNITY_NOT_FOUND"
	CodeNotImplemented      = "NOT_IMPLEMENTED"

	// Dependencies
	CodeDatabaseError = "DATABASE_ERROR"
	CodeExternalError = "EXTERNAL_ERROR"

	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
)

// AppError is an error with a stable code and the HTTP status it maps to.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds one key to Details and returns the same error.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidToken(message string) *AppError {
	return New(CodeInvalidToken, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func ValidationFailed(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

func InvalidInput(field, reason string) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

func MissingField(field string) *AppError {
	return New(CodeMissingField, fmt.Sprintf("missing required field: %s", field), http.StatusBadRequest).
		WithDetail("field", field)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// MalformedRule reports a stored rule whose conditions or actions cannot be decoded.
func MalformedRule(ruleID int64, err error) *AppError {
	appErr := New(CodeMalformedRule, fmt.Sprintf("rule %d is malformed", ruleID), http.StatusUnprocessableEntity).
		WithDetail("rule_id", ruleID)
	appErr.Err = err
	return appErr
}

func NotImplemented(feature string) *AppError {
	return New(CodeNotImplemented, fmt.Sprintf("%s is not configured", feature), http.StatusNotImplemented)
}

func DatabaseError(operation string, err error) *AppError {
	appErr := New(CodeDatabaseError, "database error: "+operation, http.StatusInternalServerError)
	appErr.Err = err
	return appErr
}

func ExternalError(service string, err error) *AppError {
	appErr := New(CodeExternalError, "external service error: "+service, http.StatusBadGateway).
		WithDetail("service", service)
	appErr.Err = err
	return appErr
}

func InternalWithError(err error) *AppError {
	appErr := New(CodeInternalError, "internal server error", http.StatusInternalServerError)
	appErr.Err = err
	return appErr
}

func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}
