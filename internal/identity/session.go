// Package identity wraps the external identity provider behind a cached
// session. The provider supplies the stable user identifier used as the
// owner of every cached item; everything else about authentication lives
// outside this system.
package identity

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/tunecache/tunecache-go/internal/errors"
)

// Provider resolves the current session's stable user identifier
type Provider interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context) (string, error)

func (f ProviderFunc) CurrentUserID(ctx context.Context) (string, error) {
	return f(ctx)
}

// Session caches the resolved user identifier. Revalidate re-queries the
// provider; it runs once at startup and again after each reconnection.
type Session struct {
	provider Provider
	logger   *zap.Logger

	mu     sync.RWMutex
	userID string
}

// NewSession creates a session backed by the given provider
func NewSession(provider Provider, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{provider: provider, logger: logger}
}

// UserID returns the cached user identifier, or a typed not found error if
// no identity has been resolved yet.
func (s *Session) UserID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", apperrors.NewNotFoundError("no authenticated user")
	}
	return s.userID, nil
}

// Revalidate re-queries the provider. On failure the previous identifier is
// kept; a transient identity outage must not wipe the session mid-flight.
func (s *Session) Revalidate(ctx context.Context) error {
	userID, err := s.provider.CurrentUserID(ctx)
	if err != nil {
		s.logger.Warn("identity revalidation failed", zap.Error(err))
		return apperrors.NewNetworkError("failed to revalidate identity", err)
	}

	s.mu.Lock()
	changed := s.userID != userID
	s.userID = userID
	s.mu.Unlock()

	if changed {
		s.logger.Info("session identity resolved", zap.String("user_id", userID))
	}
	return nil
}
