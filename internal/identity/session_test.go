package identity

import (
	"context"
	"fmt"
	"testing"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
)

func TestUserIDBeforeRevalidate(t *testing.T) {
	s := NewSession(ProviderFunc(func(ctx context.Context) (string, error) {
		return "user-a", nil
	}), nil)

	if _, err := s.UserID(); !apperrors.IsNotFound(err) {
		t.Errorf("UserID() before revalidate error = %v, want not found", err)
	}
}

func TestRevalidate(t *testing.T) {
	s := NewSession(ProviderFunc(func(ctx context.Context) (string, error) {
		return "user-a", nil
	}), nil)

	if err := s.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}

	userID, err := s.UserID()
	if err != nil {
		t.Fatalf("UserID() error = %v", err)
	}
	if userID != "user-a" {
		t.Errorf("UserID() = %s, want user-a", userID)
	}
}

func TestRevalidateFailureKeepsPreviousIdentity(t *testing.T) {
	fail := false
	s := NewSession(ProviderFunc(func(ctx context.Context) (string, error) {
		if fail {
			return "", fmt.Errorf("provider unavailable")
		}
		return "user-a", nil
	}), nil)

	if err := s.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate() error = %v", err)
	}

	fail = true
	if err := s.Revalidate(context.Background()); err == nil {
		t.Error("Revalidate() should report provider failure")
	}

	userID, err := s.UserID()
	if err != nil || userID != "user-a" {
		t.Errorf("UserID() = %q, %v; want cached user-a", userID, err)
	}
}
