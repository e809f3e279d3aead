package ports

import (
	"context"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// DocumentStore persists the single shared document. It backs the
// preserve/restore discipline around isolated generation calls.
type DocumentStore interface {
	// Load retrieves the shared document.
	// Returns domain.ErrDocumentNotFound if none has been saved yet.
	Load(ctx context.Context) (*domain.Document, error)

	// Save replaces the shared document.
	Save(ctx context.Context, doc *domain.Document) error
}

// SessionStore persists scratch sessions so that sessions orphaned by an
// abnormal termination can be swept on the next startup.
type SessionStore interface {
	// Save persists the session, keyed by its ID.
	Save(ctx context.Context, sess *domain.Session) error

	// Load retrieves a session by ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes a session. Deleting an unknown ID is a no-op.
	Delete(ctx context.Context, id string) error

	// List returns all stored sessions.
	List(ctx context.Context) ([]*domain.Session, error)
}
