package errors

import (
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code and error code
type AppError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	cause      error
}

// Error codes shared by the HTTP and WebSocket surfaces
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnknownPersona   = "UNKNOWN_PERSONA"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodePersonaMismatch  = "PERSONA_MISMATCH"
	CodeSessionClosed    = "SESSION_CLOSED"
	CodeThreadNotFound   = "THREAD_NOT_FOUND"
	CodeThreadConflict   = "THREAD_KEY_CONFLICT"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeInvalidTicket    = "INVALID_TICKET"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeAnalysisFailed   = "ANALYSIS_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeServiceDegraded  = "SERVICE_DEGRADED"
	CodeValidationFailed = "VALIDATION_FAILED"
)

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Wrap records the domain error that produced this AppError
func (e *AppError) Wrap(cause error) *AppError {
	e.cause = cause
	return e
}

// NewError creates a new application error
func NewError(statusCode int, code string, message string) *AppError {
	return &AppError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(http.StatusBadRequest, code, message)
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(code string, message string) *AppError {
	return NewError(http.StatusUnauthorized, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(http.StatusNotFound, code, message)
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(code string, message string) *AppError {
	return NewError(http.StatusConflict, code, message)
}

// NewGoneError creates a 410 Gone error
func NewGoneError(code string, message string) *AppError {
	return NewError(http.StatusGone, code, message)
}

// NewTooManyRequestsError creates a 429 Too Many Requests error
func NewTooManyRequestsError(code string, message string) *AppError {
	return NewError(http.StatusTooManyRequests, code, message)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(http.StatusInternalServerError, code, message)
}

// NewBadGatewayError creates a 502 error for upstream failures
func NewBadGatewayError(code string, message string) *AppError {
	return NewError(http.StatusBadGateway, code, message)
}

// Is checks if the target error is of type AppError
func Is(err error, target *AppError) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	return appErr.Code == target.Code
}
