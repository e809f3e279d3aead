// Package memory provides in-memory session and document stores.
// They are the default wiring and the workhorse of the test suite.
package memory

import (
	"context"
	"sync"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// SessionStore implements ports.SessionStore in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

// Save persists a deep copy of the session.
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = cloneSession(sess)
	return nil
}

// Load retrieves a session by ID.
func (s *SessionStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Delete removes a session. Unknown IDs are a no-op.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// List returns all stored sessions.
func (s *SessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out, nil
}

func cloneSession(sess *domain.Session) *domain.Session {
	out := *sess
	out.Scratch = sess.Scratch.Clone()
	return &out
}

// DocumentStore implements ports.DocumentStore in process memory.
type DocumentStore struct {
	mu  sync.RWMutex
	doc *domain.Document
}

// NewDocumentStore creates an empty document store. Load returns
// domain.ErrDocumentNotFound until the first Save.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{}
}

// Load retrieves a copy of the shared document.
func (s *DocumentStore) Load(ctx context.Context) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return nil, domain.ErrDocumentNotFound
	}
	return s.doc.Clone(), nil
}

// Save replaces the shared document with a copy of doc.
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc.Clone()
	return nil
}
