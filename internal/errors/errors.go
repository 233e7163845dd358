package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeOffline represents operations rejected because connectivity is absent
	ErrTypeOffline ErrorType = "offline"
	// ErrTypeAlreadyCached represents downloads rejected because the item is already local
	ErrTypeAlreadyCached ErrorType = "already_cached"
	// ErrTypeAudioFetch represents a failed mandatory audio payload fetch
	ErrTypeAudioFetch ErrorType = "audio_fetch"
	// ErrTypeImageFetch represents a failed optional artwork payload fetch
	ErrTypeImageFetch ErrorType = "image_fetch"
	// ErrTypeStorage represents local store write/read failures
	ErrTypeStorage ErrorType = "storage"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeNetwork represents transport-level errors
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewOfflineError creates an error for operations attempted without connectivity.
// Retryable means an explicit retry after reconnection may succeed; nothing in
// this package retries on its own.
func NewOfflineError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeOffline,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// NewAlreadyCachedError creates an error for a download of an item that is
// already present in the local store. This is an idempotent guard, not a fault.
func NewAlreadyCachedError(itemID string) *AppError {
	return &AppError{
		Type:       ErrTypeAlreadyCached,
		Message:    fmt.Sprintf("item %s is already downloaded", itemID),
		StatusCode: http.StatusConflict,
		Retryable:  false,
	}
}

// NewAudioFetchError creates an error for a failed mandatory audio fetch
func NewAudioFetchError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeAudioFetch,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewImageFetchError creates an error for a failed optional artwork fetch.
// Callers log this and continue; it never aborts a download.
func NewImageFetchError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeImageFetch,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewStorageError creates an error for local store failures
func NewStorageError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeStorage,
		Message:    message,
		StatusCode: http.StatusInsufficientStorage,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
	}
}

// NewNetworkError creates a new transport-level error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Retryable
	}
	return false
}

// IsOffline checks if an error is an offline rejection
func IsOffline(err error) bool {
	return GetErrorType(err) == ErrTypeOffline
}

// IsAlreadyCached checks if an error is an already-cached rejection
func IsAlreadyCached(err error) bool {
	return GetErrorType(err) == ErrTypeAlreadyCached
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsStorage checks if an error is a local store failure
func IsStorage(err error) bool {
	return GetErrorType(err) == ErrTypeStorage
}

// UserMessage returns the single human-readable message for an error,
// keeping every terminal kind distinguishable rather than collapsing
// them into a generic failure.
func UserMessage(err error) string {
	switch GetErrorType(err) {
	case ErrTypeOffline:
		return "You're offline. Check your connection and try again."
	case ErrTypeAlreadyCached:
		return "This item is already downloaded."
	case ErrTypeAudioFetch:
		return "Couldn't fetch the audio. Try again later."
	case ErrTypeStorage:
		return "Device storage is full or unavailable."
	case ErrTypeNotFound:
		return "This audio is not available offline."
	default:
		return "Something went wrong. Please try again."
	}
}
