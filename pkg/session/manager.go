package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
)

// Manager creates and destroys per-job scratch sessions and guards the
// shared document with a scoped preserve/restore pair around every isolated
// generation call.
type Manager struct {
	sessions ports.SessionStore
	docs     ports.DocumentStore
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*domain.Session

	// isoMu serializes isolation scopes: no two isolated generation calls
	// may touch the shared document at once.
	isoMu     sync.Mutex
	preserved *domain.Document
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for deferred/internal errors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager over the given stores.
func NewManager(sessions ports.SessionStore, docs ports.DocumentStore, opts ...Option) *Manager {
	m := &Manager{
		sessions: sessions,
		docs:     docs,
		logger:   logging.NewNop(),
		active:   make(map[string]*domain.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create allocates an empty, isolated scratch session, distinct from the
// shared document.
func (m *Manager) Create(ctx context.Context) (*domain.Session, error) {
	sess := domain.NewSession()
	if err := m.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist scratch session: %w", err)
	}

	m.mu.Lock()
	m.active[sess.ID] = sess
	m.mu.Unlock()
	return sess, nil
}

// Destroy releases a session. Calling it twice, or for an unknown ID, is a
// no-op; other sessions are unaffected.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	if err := m.sessions.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to release scratch session %s: %w", id, err)
	}
	return nil
}

// DestroyAll releases every session the manager still tracks. Best-effort:
// individual failures are logged and the sweep continues.
func (m *Manager) DestroyAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Destroy(ctx, id); err != nil {
			m.logger.Warn("failed to destroy session during teardown", "session_id", id, "err", err)
		}
	}
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Preserve snapshots the shared document. A missing document is preserved
// as the known-good empty default.
func (m *Manager) preserve(ctx context.Context) error {
	doc, err := m.docs.Load(ctx)
	if err != nil {
		if err == domain.ErrDocumentNotFound {
			m.preserved = domain.NewDocument()
			return nil
		}
		return fmt.Errorf("failed to snapshot shared document: %w", err)
	}
	m.preserved = doc.Clone()
	return nil
}

// Restore writes the snapshot back unconditionally. If that fails (the
// shared resource vanished externally), it falls back to saving the empty
// default rather than propagating a half-restored document.
func (m *Manager) restore(ctx context.Context) error {
	snapshot := m.preserved
	if snapshot == nil {
		snapshot = domain.NewDocument()
	}
	m.preserved = nil

	if err := m.docs.Save(ctx, snapshot); err != nil {
		m.logger.Error("failed to restore shared document, falling back to empty default", "err", err)
		if err2 := m.docs.Save(ctx, domain.NewDocument()); err2 != nil {
			return fmt.Errorf("%w: %v", domain.ErrDocumentRestore, err2)
		}
	}
	return nil
}

// WithIsolation runs fn inside a preserve/restore scope. Restore runs
// whether fn succeeds, fails, or panics. A restore error outranks fn's
// error: the shared document is the one thing the pipeline must not lose.
func (m *Manager) WithIsolation(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	m.isoMu.Lock()
	defer m.isoMu.Unlock()

	if perr := m.preserve(ctx); perr != nil {
		return perr
	}

	defer func() {
		if rerr := m.restore(ctx); rerr != nil {
			// Restore failure is batch-fatal and outranks fn's own error.
			err = rerr
		}
	}()

	return fn(ctx)
}

// SweepOrphans deletes stored sessions older than maxAge that no live
// batch owns. Best-effort; returns the number removed.
func (m *Manager) SweepOrphans(ctx context.Context, maxAge time.Duration) (int, error) {
	stored, err := m.sessions.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for sweep: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, sess := range stored {
		m.mu.Lock()
		_, owned := m.active[sess.ID]
		m.mu.Unlock()
		if owned || sess.CreatedAt.After(cutoff) {
			continue
		}
		if err := m.sessions.Delete(ctx, sess.ID); err != nil {
			m.logger.Warn("failed to sweep orphaned session", "session_id", sess.ID, "err", err)
			continue
		}
		removed++
	}
	return removed, nil
}
