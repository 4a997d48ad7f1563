// Package auth holds the client-side session identity. Rather than ambient
// global state, the session is an explicit object handed to whoever needs
// the signed-in user.
package auth

import (
	"context"
	"errors"
	"sync"

	"tutor-chatbot/internal/domain"
)

// IdentityClient resolves the current backend session.
type IdentityClient interface {
	Me(ctx context.Context) (domain.User, error)
}

// Session caches the signed-in user. The backend is asked exactly once;
// every later Hydrate returns the cached outcome until Logout resets it.
type Session struct {
	client IdentityClient

	mu       sync.Mutex
	hydrated bool
	user     domain.User
	err      error
}

// NewSession creates a Session backed by the given identity client.
func NewSession(client IdentityClient) (*Session, error) {
	if client == nil {
		return nil, errors.New("auth: identity client must not be nil")
	}
	return &Session{client: client}, nil
}

// Hydrate resolves the current user on the first call and returns the cached
// result afterwards, including a cached failure.
func (s *Session) Hydrate(ctx context.Context) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hydrated {
		return s.user, s.err
	}
	s.user, s.err = s.client.Me(ctx)
	if s.err != nil {
		s.user = domain.User{}
	}
	s.hydrated = true
	return s.user, s.err
}

// User returns the hydrated identity, if hydration succeeded.
func (s *Session) User() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.hydrated && s.err == nil
}

// Logout clears the local identity. The next Hydrate asks the backend
// again.
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = false
	s.user = domain.User{}
	s.err = nil
}
