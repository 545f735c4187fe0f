package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeUnauthorized           ErrorType = "unauthorized"
	ErrorTypeInvalidUpload          ErrorType = "invalid_upload"
	ErrorTypeModelUnavailable       ErrorType = "model_unavailable"
	ErrorTypeDecodeFailed           ErrorType = "decode_failed"
	ErrorTypeInferenceFailed        ErrorType = "inference_failed"
	ErrorTypeUnsupportedImageFormat ErrorType = "unsupported_image_format"
	ErrorTypeCompositeFailed        ErrorType = "composite_failed"
	ErrorTypeTimeout                ErrorType = "timeout"
	ErrorTypeNotFound               ErrorType = "not_found"
	ErrorTypeInternal               ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithStatus returns a copy of the error carrying a different HTTP status.
func (e *AppError) WithStatus(code int) *AppError {
	c := *e
	c.StatusCode = code
	return &c
}

func newError(t ErrorType, code int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: code,
		Cause:      cause,
	}
}

// NewUnauthorizedError creates an error for a missing or wrong bearer token
func NewUnauthorizedError(message string, cause error) *AppError {
	return newError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, cause)
}

// NewInvalidUploadError creates an error for a rejected upload
func NewInvalidUploadError(message string, cause error) *AppError {
	return newError(ErrorTypeInvalidUpload, http.StatusBadRequest, message, cause)
}

// NewModelUnavailableError creates an error for a failed model provisioning
func NewModelUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeModelUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewDecodeFailedError creates an error for bytes that are not a readable image
func NewDecodeFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeDecodeFailed, http.StatusUnprocessableEntity, message, cause)
}

// NewInferenceFailedError creates an error for a failed model run
func NewInferenceFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeInferenceFailed, http.StatusInternalServerError, message, cause)
}

// NewUnsupportedImageFormatError creates an error for a channel layout the compositor cannot handle
func NewUnsupportedImageFormatError(message string, cause error) *AppError {
	return newError(ErrorTypeUnsupportedImageFormat, http.StatusUnsupportedMediaType, message, cause)
}

// NewCompositeFailedError creates an error for a broken mask/raster invariant
func NewCompositeFailedError(message string, cause error) *AppError {
	return newError(ErrorTypeCompositeFailed, http.StatusInternalServerError, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := As(err); ok {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
