package batchgen_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	batchgen "github.com/austencloud/tka-desktop-sub001"
	"github.com/austencloud/tka-desktop-sub001/internal/render"
	"github.com/austencloud/tka-desktop-sub001/internal/runtime"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/file"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// fastEngine builds valid sequences and renders instantly, with optional
// scripted generation failures.
type fastEngine struct {
	mu       sync.Mutex
	genCalls int
	failGen  func(call int) error
}

func (e *fastEngine) BuildSequence(ctx context.Context, params domain.GenerationParams, scratch *domain.Document) error {
	e.mu.Lock()
	e.genCalls++
	call := e.genCalls
	fn := e.failGen
	e.mu.Unlock()
	if fn != nil {
		if err := fn(call); err != nil {
			return err
		}
	}
	scratch.Beats = append(scratch.Beats, domain.Beat{Kind: domain.BeatStartPosition})
	for i := 0; i < params.Length; i++ {
		scratch.Beats = append(scratch.Beats, domain.Beat{
			Number: i + 1,
			Kind:   domain.BeatContent,
			Letter: string(rune('A' + i%26)),
		})
	}
	return nil
}

func (e *fastEngine) RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 16, 16)), nil
}

func shortParams() domain.GenerationParams {
	p := domain.DefaultParams()
	p.Length = 3
	return p
}

func TestFacade_Integration(t *testing.T) {
	orch, err := batchgen.New(batchgen.WithEngine(&fastEngine{}))
	require.NoError(t, err)
	defer orch.Close()

	ctx := context.Background()
	batchID, err := orch.StartBatch(ctx, shortParams(), 5)
	require.NoError(t, err)
	require.NoError(t, orch.Wait(ctx, batchID))

	state, err := orch.State(batchID)
	require.NoError(t, err)
	assert.Equal(t, runtime.StateCompleted, state)

	done, total, err := orch.Progress(batchID)
	require.NoError(t, err)
	assert.Equal(t, 5, done)
	assert.Equal(t, 5, total)

	artifacts, err := orch.Artifacts(batchID)
	require.NoError(t, err)
	require.Len(t, artifacts, 5)
	for _, a := range artifacts {
		assert.NotNil(t, a.Preview)
		assert.False(t, a.Fallback)
		assert.Equal(t, "ABC", a.Word)
	}

	approved, err := orch.Approve(batchID, artifacts[0].ID)
	require.NoError(t, err)
	assert.True(t, approved.Approved)

	require.NoError(t, orch.ClearBatch(batchID))
	assert.Empty(t, orch.Batches())
	_, _, err = orch.Progress(batchID)
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestFacade_FallbacksStillComplete(t *testing.T) {
	eng := &fastEngine{
		failGen: func(call int) error { return errors.New("engine down") },
	}
	orch, err := batchgen.New(
		batchgen.WithEngine(eng),
		batchgen.WithMaxRetries(1),
		batchgen.WithRetryBaseDelay(time.Millisecond),
		batchgen.WithBreakerThreshold(50),
	)
	require.NoError(t, err)
	defer orch.Close()

	ctx := context.Background()
	batchID, err := orch.StartBatch(ctx, shortParams(), 3)
	require.NoError(t, err)
	require.NoError(t, orch.Wait(ctx, batchID))

	artifacts, err := orch.Artifacts(batchID)
	require.NoError(t, err)
	require.Len(t, artifacts, 3)
	for _, a := range artifacts {
		assert.True(t, a.Fallback)
		assert.NotNil(t, a.Preview)
	}
}

func TestFacade_ParallelBatchesAreIndependent(t *testing.T) {
	orch, err := batchgen.New(batchgen.WithEngine(&fastEngine{}))
	require.NoError(t, err)
	defer orch.Close()

	ctx := context.Background()
	first, err := orch.StartBatch(ctx, shortParams(), 4)
	require.NoError(t, err)
	second, err := orch.StartBatch(ctx, shortParams(), 2)
	require.NoError(t, err)

	require.NoError(t, orch.Wait(ctx, first))
	require.NoError(t, orch.Wait(ctx, second))

	firstLayout, err := orch.Layout(first)
	require.NoError(t, err)
	secondLayout, err := orch.Layout(second)
	require.NoError(t, err)
	assert.Equal(t, 4, firstLayout.Occupied())
	assert.Equal(t, 2, secondLayout.Occupied())

	assert.ElementsMatch(t, []string{first, second}, orch.Batches())
}

func TestFacade_CooperativeDispatch(t *testing.T) {
	orch, err := batchgen.New(
		batchgen.WithEngine(&fastEngine{}),
		batchgen.WithDispatchMode(render.Cooperative),
	)
	require.NoError(t, err)
	defer orch.Close()

	ctx := context.Background()
	batchID, err := orch.StartBatch(ctx, shortParams(), 4)
	require.NoError(t, err)
	require.NoError(t, orch.Wait(ctx, batchID))

	done, total, err := orch.Progress(batchID)
	require.NoError(t, err)
	assert.Equal(t, total, done)
}

func TestFacade_RejectsInvalidBatch(t *testing.T) {
	orch, err := batchgen.New(batchgen.WithEngine(&fastEngine{}))
	require.NoError(t, err)
	defer orch.Close()

	bad := shortParams()
	bad.Length = 0
	_, err = orch.StartBatch(context.Background(), bad, 3)
	require.Error(t, err)

	_, err = orch.StartBatch(context.Background(), shortParams(), 0)
	require.Error(t, err)
}

func TestFacade_UnknownBatchErrors(t *testing.T) {
	orch, err := batchgen.New(batchgen.WithEngine(&fastEngine{}))
	require.NoError(t, err)
	defer orch.Close()

	assert.ErrorIs(t, orch.CancelBatch("nope"), domain.ErrBatchNotFound)
	assert.ErrorIs(t, orch.ForceComplete("nope"), domain.ErrBatchNotFound)
	assert.ErrorIs(t, orch.ClearBatch("nope"), domain.ErrBatchNotFound)
	_, err = orch.Approve("nope", "job")
	assert.ErrorIs(t, err, domain.ErrBatchNotFound)
}

func TestFacade_SweepsOrphanedSessionsOnStartup(t *testing.T) {
	dir := t.TempDir()
	store := file.NewSessionStore(dir)

	// A crash last week left a scratch session behind.
	stale := domain.NewSession()
	stale.CreatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Save(context.Background(), stale))

	_, err := batchgen.New(
		batchgen.WithEngine(&fastEngine{}),
		batchgen.WithSessionStore(store),
	)
	require.NoError(t, err)

	remaining, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
