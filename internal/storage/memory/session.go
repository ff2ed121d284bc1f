// Package memory holds process-local stores used when no external store is
// configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

var _ auth.Store = (*SessionStore)(nil)

// Option tunes a SessionStore.
type Option func(*SessionStore)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *SessionStore) { s.now = now }
}

// SessionStore keeps sessions in memory. They are lost on restart. Expired
// sessions are dropped when read and by Sweep.
type SessionStore struct {
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]auth.Session
}

// NewSessionStore creates an empty store.
func NewSessionStore(opts ...Option) *SessionStore {
	s := &SessionStore{
		now:      time.Now,
		sessions: make(map[string]auth.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns a copy of session id.
func (s *SessionStore) Load(_ context.Context, id string) (*auth.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	if !sess.ExpiresAt.After(s.now()) {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return nil, auth.ErrSessionNotFound
	}
	return &sess, nil
}

// Save stores a copy of sess until it expires, replacing any session with
// the same ID. An already expired session is not stored.
func (s *SessionStore) Save(_ context.Context, sess *auth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !sess.ExpiresAt.After(s.now()) {
		delete(s.sessions, sess.ID)
		return nil
	}
	s.sessions[sess.ID] = *sess
	return nil
}

// Delete forgets session id. Unknown IDs are ignored.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Sweep removes expired sessions and returns how many were removed.
func (s *SessionStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
