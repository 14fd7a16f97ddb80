package auth

import (
	"context"
	"sync"
)

// NewInMemoryTokenStore returns a TokenStore backed by an in-memory map.
func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]string)}
}

// InMemoryTokenStore implements TokenStore for tests and local development.
type InMemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// SetRefreshToken stores the refresh token for a user, replacing any prior one.
func (s *InMemoryTokenStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	s.tokens[userID] = token
	s.mu.Unlock()
	return nil
}

// SwapRefreshToken replaces the stored token only if it still matches previous.
func (s *InMemoryTokenStore) SwapRefreshToken(_ context.Context, userID, previous, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens[userID] != previous || previous == "" {
		return ErrTokenSuperseded
	}
	s.tokens[userID] = next
	return nil
}

// ClearRefreshToken removes the stored refresh token for a user.
func (s *InMemoryTokenStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.tokens, userID)
	s.mu.Unlock()
	return nil
}

// Stored returns the refresh token currently held for a user. Useful for tests.
func (s *InMemoryTokenStore) Stored(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[userID]
}
