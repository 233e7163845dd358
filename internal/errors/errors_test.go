package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Type:    ErrTypeOffline,
				Message: "no connectivity",
			},
			expected: "offline: no connectivity",
		},
		{
			name: "error with cause",
			err: &AppError{
				Type:    ErrTypeAudioFetch,
				Message: "fetch failed",
				Cause:   fmt.Errorf("dial tcp: timeout"),
			},
			expected: "audio_fetch: fetch failed (caused by: dial tcp: timeout)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := &AppError{
		Type:  ErrTypeStorage,
		Cause: cause,
	}

	if unwrapped := err.Unwrap(); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantType   ErrorType
		wantStatus int
		retryable  bool
	}{
		{"offline", NewOfflineError("no network"), ErrTypeOffline, http.StatusServiceUnavailable, true},
		{"already cached", NewAlreadyCachedError("song-1"), ErrTypeAlreadyCached, http.StatusConflict, false},
		{"audio fetch", NewAudioFetchError("unreachable", nil), ErrTypeAudioFetch, http.StatusBadGateway, true},
		{"image fetch", NewImageFetchError("unreachable", nil), ErrTypeImageFetch, http.StatusBadGateway, true},
		{"storage", NewStorageError("disk full", nil), ErrTypeStorage, http.StatusInsufficientStorage, false},
		{"not found", NewNotFoundError("no such blob"), ErrTypeNotFound, http.StatusNotFound, false},
		{"network", NewNetworkError("transport", nil), ErrTypeNetwork, http.StatusServiceUnavailable, true},
		{"validation", NewValidationError("bad id"), ErrTypeValidation, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.wantType)
			}
			if tt.err.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %v, want %v", tt.err.StatusCode, tt.wantStatus)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsOffline(NewOfflineError("x")) {
		t.Error("IsOffline should be true for offline error")
	}
	if !IsAlreadyCached(NewAlreadyCachedError("song-1")) {
		t.Error("IsAlreadyCached should be true for already-cached error")
	}
	if !IsNotFound(NewNotFoundError("x")) {
		t.Error("IsNotFound should be true for not found error")
	}
	if !IsStorage(NewStorageError("x", nil)) {
		t.Error("IsStorage should be true for storage error")
	}
	if IsOffline(fmt.Errorf("plain")) {
		t.Error("IsOffline should be false for plain error")
	}
	if GetErrorType(fmt.Errorf("plain")) != ErrTypeUnknown {
		t.Error("plain errors should map to unknown type")
	}
}

func TestUserMessage_DistinctPerKind(t *testing.T) {
	errs := []error{
		NewOfflineError("x"),
		NewAlreadyCachedError("song-1"),
		NewAudioFetchError("x", nil),
		NewStorageError("x", nil),
		NewNotFoundError("x"),
	}

	seen := make(map[string]ErrorType)
	for _, err := range errs {
		msg := UserMessage(err)
		if msg == "" {
			t.Fatalf("empty user message for %v", err)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("message %q shared by %v and %v", msg, prev, GetErrorType(err))
		}
		seen[msg] = GetErrorType(err)
	}
}
