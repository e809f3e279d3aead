package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// RunSessionStoreContract verifies that a SessionStore implementation
// adheres to the interface contract. Adapter tests call this against a
// freshly constructed store.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		sess := domain.NewSession()
		sess.Scratch.Beats = append(sess.Scratch.Beats, domain.Beat{Number: 1, Kind: domain.BeatContent, Letter: "A"})

		require.NoError(t, store.Save(ctx, sess))

		loaded, err := store.Load(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, loaded.ID)
		require.Len(t, loaded.Scratch.Beats, 1)
		assert.Equal(t, "A", loaded.Scratch.Beats[0].Letter)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+time.Now().Format("150405.000"))
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete Is Idempotent", func(t *testing.T) {
		sess := domain.NewSession()
		require.NoError(t, store.Save(ctx, sess))

		require.NoError(t, store.Delete(ctx, sess.ID))
		_, err := store.Load(ctx, sess.ID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)

		// Second delete must be a no-op, not an error.
		assert.NoError(t, store.Delete(ctx, sess.ID))
	})

	t.Run("Delete Leaves Others Intact", func(t *testing.T) {
		a, b := domain.NewSession(), domain.NewSession()
		require.NoError(t, store.Save(ctx, a))
		require.NoError(t, store.Save(ctx, b))
		defer func() { _ = store.Delete(ctx, b.ID) }()

		require.NoError(t, store.Delete(ctx, a.ID))

		_, err := store.Load(ctx, b.ID)
		assert.NoError(t, err)
	})

	t.Run("List", func(t *testing.T) {
		a, b := domain.NewSession(), domain.NewSession()
		require.NoError(t, store.Save(ctx, a))
		require.NoError(t, store.Save(ctx, b))
		defer func() {
			_ = store.Delete(ctx, a.ID)
			_ = store.Delete(ctx, b.ID)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)

		ids := make([]string, 0, len(sessions))
		for _, s := range sessions {
			ids = append(ids, s.ID)
		}
		assert.Contains(t, ids, a.ID)
		assert.Contains(t, ids, b.ID)
	})
}
