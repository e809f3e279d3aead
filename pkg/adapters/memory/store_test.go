package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/memory"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
)

func TestMemorySessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, memory.NewSessionStore())
}

func TestMemorySessionStore_Isolation(t *testing.T) {
	// Mutating a loaded session must not leak into the stored copy.
	store := memory.NewSessionStore()
	ctx := context.Background()

	sess := domain.NewSession()
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	loaded.Scratch.Beats = append(loaded.Scratch.Beats, domain.Beat{Number: 1, Kind: domain.BeatContent, Letter: "Q"})

	again, err := store.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Scratch.Beats)
}

func TestMemoryDocumentStore(t *testing.T) {
	store := memory.NewDocumentStore()
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	doc := domain.NewDocument()
	doc.Word = "ABQ"
	require.NoError(t, store.Save(ctx, doc))

	// Mutations after Save must not be visible.
	doc.Word = "changed"

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABQ", loaded.Word)
}
