package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/file"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
)

func TestFileSessionStore_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, file.NewSessionStore(t.TempDir()))
}

func TestFileSessionStore_ListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store := file.NewSessionStore(dir)
	ctx := context.Background()

	sess := domain.NewSession()
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, sess.ID, sessions[0].ID)
}

func TestFileSessionStore_ListMissingDir(t *testing.T) {
	store := file.NewSessionStore(filepath.Join(t.TempDir(), "never-created"))
	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestFileDocumentStore_RoundTrip(t *testing.T) {
	store := file.NewDocumentStore(filepath.Join(t.TempDir(), "document.json"))
	ctx := context.Background()

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)

	doc := domain.NewDocument()
	doc.Word = "AB"
	doc.Beats = []domain.Beat{
		{Number: 1, Kind: domain.BeatContent, Letter: "A"},
		{Number: 2, Kind: domain.BeatContent, Letter: "B"},
	}
	require.NoError(t, store.Save(ctx, doc))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AB", loaded.Word)
	assert.Len(t, loaded.Beats, 2)

	// Overwrite must replace, not append.
	doc.Word = "C"
	doc.Beats = doc.Beats[:1]
	require.NoError(t, store.Save(ctx, doc))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C", loaded.Word)
	assert.Len(t, loaded.Beats, 1)
}
