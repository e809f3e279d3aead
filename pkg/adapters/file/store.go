// Package file provides filesystem-backed session and document stores.
// Sessions are stored as one JSON file each so that scratch state orphaned
// by a crash is visible (and sweepable) on the next startup.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// SessionStore implements ports.SessionStore on the local filesystem.
type SessionStore struct {
	BasePath string
}

// NewSessionStore creates a store rooted at basePath.
// If basePath is empty, it defaults to ".tka/sessions".
func NewSessionStore(basePath string) *SessionStore {
	if basePath == "" {
		basePath = filepath.Join(".tka", "sessions")
	}
	return &SessionStore{BasePath: basePath}
}

func (s *SessionStore) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Save persists the session atomically (temp file, fsync, rename).
func (s *SessionStore) Save(ctx context.Context, sess *domain.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return writeAtomic(s.BasePath, s.path(sess.ID), data)
}

// Load retrieves a session by ID.
func (s *SessionStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &sess, nil
}

// Delete removes the session file. Missing files are a no-op.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// List returns every parseable session under the base path.
// Unreadable or corrupt files are skipped rather than failing the sweep.
func (s *SessionStore) List(ctx context.Context) ([]*domain.Session, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var out []*domain.Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		sess, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// DocumentStore implements ports.DocumentStore as a single JSON file.
type DocumentStore struct {
	Path string
}

// NewDocumentStore creates a document store at path.
// If path is empty, it defaults to ".tka/document.json".
func NewDocumentStore(path string) *DocumentStore {
	if path == "" {
		path = filepath.Join(".tka", "document.json")
	}
	return &DocumentStore{Path: path}
}

// Load retrieves the shared document.
func (s *DocumentStore) Load(ctx context.Context) (*domain.Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &doc, nil
}

// Save replaces the shared document atomically.
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	return writeAtomic(filepath.Dir(s.Path), s.Path, data)
}

// writeAtomic writes data to destPath via a temp file in the same directory
// (required for atomic rename), fsyncing before the rename.
func writeAtomic(dir, destPath string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, rename fails if the destination exists; remove first. The
	// brief window is acceptable versus risking a partially written file.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
