package auth

import (
	"sync"

	"github.com/Veraticus/tally/internal/model"
)

// SessionStore holds the current session. The zero value is empty.
type SessionStore struct {
	current *model.Session
	mu      sync.RWMutex
}

// Get returns a copy of the current session, or nil when signed out.
func (s *SessionStore) Get() *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil
	}
	session := *s.current
	return &session
}

// Set replaces the current session.
func (s *SessionStore) Set(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session == nil {
		s.current = nil
		return
	}
	copied := *session
	s.current = &copied
}

// Clear removes the current session.
func (s *SessionStore) Clear() {
	s.Set(nil)
}
