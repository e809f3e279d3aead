package runtime

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austencloud/tka-desktop-sub001/internal/resilience"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/memory"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
	"github.com/austencloud/tka-desktop-sub001/pkg/session"
)

// pipelineEngine scripts generation and render behavior per call so tests
// can drive jobs through every settlement path.
type pipelineEngine struct {
	mu          sync.Mutex
	genCalls    int
	renderCalls int

	// genErr, when set, decides the outcome of the n-th BuildSequence call
	// (1-based). Nil return means success.
	genErr func(call int) error
	// renderErr does the same for RenderArtifact.
	renderErr func(call int) error
	// blockRender, when set, parks renders until the job context is
	// cancelled.
	blockRender   bool
	renderStarted chan struct{}

	// reviewAfter, when positive, treats render calls beyond that count as
	// review re-renders: they signal reviewStarted and park on
	// reviewRelease.
	reviewAfter   int
	reviewStarted chan struct{}
	reviewRelease chan struct{}
}

func (e *pipelineEngine) BuildSequence(ctx context.Context, params domain.GenerationParams, scratch *domain.Document) error {
	e.mu.Lock()
	e.genCalls++
	call := e.genCalls
	fn := e.genErr
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

func (e *pipelineEngine) RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error) {
	e.mu.Lock()
	e.renderCalls++
	call := e.renderCalls
	fn := e.renderErr
	block := e.blockRender
	started := e.renderStarted
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e.mu.Lock()
	reviewAfter := e.reviewAfter
	e.mu.Unlock()
	if reviewAfter > 0 && call > reviewAfter {
		e.reviewStarted <- struct{}{}
		<-e.reviewRelease
	}
	if fn != nil {
		if err := fn(call); err != nil {
			return nil, err
		}
	}
	return image.NewRGBA(image.Rect(0, 0, 20, 20)), nil
}

// recorder captures batch events. Callbacks all run on the batch control
// goroutine, so plain fields are fine as long as reads wait for Done.
type recorder struct {
	started     int
	settlements []domain.Settlement
	retried     []string
	progress    []int
	completed   []bool
	breaker     []string
}

func (r *recorder) events() domain.BatchEvents {
	return domain.BatchEvents{
		OnBatchStarted: func(ctx context.Context, batchID string, total int) {
			r.started = total
		},
		OnJobSettled: func(ctx context.Context, batchID string, s domain.Settlement) {
			r.settlements = append(r.settlements, s)
		},
		OnJobRetried: func(ctx context.Context, batchID, jobID string, attempt int) {
			r.retried = append(r.retried, jobID)
		},
		OnBatchProgress: func(ctx context.Context, batchID string, done, total int) {
			r.progress = append(r.progress, done)
		},
		OnBatchCompleted: func(ctx context.Context, batchID string, success bool) {
			r.completed = append(r.completed, success)
		},
		OnBreakerState: func(ctx context.Context, batchID, state string) {
			r.breaker = append(r.breaker, state)
		},
	}
}

func (r *recorder) kinds() map[domain.SettlementKind]int {
	out := make(map[domain.SettlementKind]int)
	for _, s := range r.settlements {
		out[s.Kind]++
	}
	return out
}

func testParams() domain.GenerationParams {
	p := domain.DefaultParams()
	p.Length = 4
	return p
}

func newTestBatch(t *testing.T, engine ports.SequenceEngine, count int, rec *recorder, opts ...func(*Config)) (*Batch, *session.Manager) {
	t.Helper()
	sessions := session.NewManager(memory.NewSessionStore(), memory.NewDocumentStore())
	cfg := Config{
		BatchID:  "b1",
		Params:   testParams(),
		Count:    count,
		Sessions: sessions,
		Engine:   engine,
		Retry:    resilience.NewRetryScheduler(resilience.WithBaseDelay(time.Millisecond)),
		Events:   rec.events(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	b, err := NewBatch(cfg)
	require.NoError(t, err)
	return b, sessions
}

func runBatch(t *testing.T, b *Batch) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish in time")
		return nil
	}
}

func TestBatch_AllJobsSucceed(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{}
	b, sessions := newTestBatch(t, eng, 5, rec)

	require.NoError(t, runBatch(t, b))

	assert.Equal(t, StateCompleted, b.State())
	assert.Equal(t, 5, rec.started)
	require.Len(t, rec.settlements, 5)
	assert.Equal(t, 5, rec.kinds()[domain.SettledSuccess])
	for _, s := range rec.settlements {
		require.NotNil(t, s.Artifact)
		assert.NotNil(t, s.Artifact.Preview)
		assert.False(t, s.Artifact.Fallback)
	}
	assert.Equal(t, []bool{true}, rec.completed)
	assert.Equal(t, 5, rec.progress[len(rec.progress)-1])

	done, total := b.Progress()
	assert.Equal(t, 5, done)
	assert.Equal(t, 5, total)

	// Every slot filled, every session released.
	assert.Equal(t, 5, b.Layout().Occupied())
	assert.Equal(t, 0, sessions.Active())
}

func TestBatch_GenerationRetryRecovers(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		// First two generation attempts fail; their retries succeed.
		genErr: func(call int) error {
			if call <= 2 {
				return errors.New("engine hiccup")
			}
			return nil
		},
	}
	b, _ := newTestBatch(t, eng, 5, rec)

	require.NoError(t, runBatch(t, b))

	assert.Equal(t, StateCompleted, b.State())
	require.Len(t, rec.settlements, 5)
	assert.Equal(t, 5, rec.kinds()[domain.SettledSuccess])
	assert.Len(t, rec.retried, 2)
	assert.Equal(t, []bool{true}, rec.completed)
}

func TestBatch_ExhaustedRetriesSettleFallback(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		genErr: func(call int) error { return errors.New("engine down") },
	}
	b, sessions := newTestBatch(t, eng, 2, rec, func(cfg *Config) {
		cfg.Retry = resilience.NewRetryScheduler(
			resilience.WithBaseDelay(time.Millisecond),
			resilience.WithMaxRetries(2),
		)
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.WithThreshold(100))
	})

	require.NoError(t, runBatch(t, b))

	// A batch full of fallbacks still completes; no job is abandoned.
	assert.Equal(t, StateCompleted, b.State())
	require.Len(t, rec.settlements, 2)
	assert.Equal(t, 2, rec.kinds()[domain.SettledFallback])
	for _, s := range rec.settlements {
		require.NotNil(t, s.Artifact)
		assert.True(t, s.Artifact.Fallback)
		assert.NotNil(t, s.Artifact.Preview)
	}
	assert.Equal(t, []bool{true}, rec.completed)
	assert.Equal(t, 0, sessions.Active())
}

func TestBatch_RenderFailureRoutesThroughRetry(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		renderErr: func(call int) error {
			if call == 1 {
				return errors.New("canvas exploded")
			}
			return nil
		},
	}
	b, _ := newTestBatch(t, eng, 3, rec)

	require.NoError(t, runBatch(t, b))

	assert.Equal(t, 3, rec.kinds()[domain.SettledSuccess])
	assert.Len(t, rec.retried, 1)
}

func TestBatch_OpenBreakerShortCircuitsToFallback(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		genErr: func(call int) error { return errors.New("engine down") },
	}
	b, _ := newTestBatch(t, eng, 4, rec, func(cfg *Config) {
		cfg.Breaker = resilience.NewCircuitBreaker(resilience.WithThreshold(2))
	})

	require.NoError(t, runBatch(t, b))

	// Everything settles as fallback: early jobs by exhaustion or the
	// opening circuit, later jobs short-circuited before dispatch.
	assert.Equal(t, StateCompleted, b.State())
	require.Len(t, rec.settlements, 4)
	assert.Equal(t, 4, rec.kinds()[domain.SettledFallback])
	assert.Contains(t, rec.breaker, string(resilience.BreakerOpen))
}

func TestBatch_ValidationFailureSkipsRetry(t *testing.T) {
	rec := &recorder{}
	// Length mismatch: the engine writes one beat fewer than requested, so
	// every artifact is discarded by the validation gate.
	eng := &shortEngine{}
	b, _ := newTestBatch(t, eng, 2, rec)

	require.NoError(t, runBatch(t, b))

	require.Len(t, rec.settlements, 2)
	assert.Equal(t, 2, rec.kinds()[domain.SettledFallback])
	assert.Empty(t, rec.retried)
}

type shortEngine struct{}

func (e *shortEngine) BuildSequence(ctx context.Context, params domain.GenerationParams, scratch *domain.Document) error {
	for i := 0; i < params.Length-1; i++ {
		scratch.Beats = append(scratch.Beats, domain.Beat{Number: i + 1, Kind: domain.BeatContent, Letter: "A"})
	}
	return nil
}

func (e *shortEngine) RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

func TestBatch_ForceCompleteSettlesPendingAsFallback(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		blockRender:   true,
		renderStarted: make(chan struct{}, 8),
	}
	b, _ := newTestBatch(t, eng, 3, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	for i := 0; i < 3; i++ {
		select {
		case <-eng.renderStarted:
		case <-time.After(5 * time.Second):
			t.Fatal("render never started")
		}
	}
	b.ForceComplete()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish after force-complete")
	}

	require.Len(t, rec.settlements, 3)
	assert.Equal(t, 3, rec.kinds()[domain.SettledForced])
	done, total := b.Progress()
	assert.Equal(t, total, done)
	assert.Equal(t, []bool{true}, rec.completed)
}

func TestBatch_CancelStopsWithoutSettling(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{
		blockRender:   true,
		renderStarted: make(chan struct{}, 8),
	}
	b, sessions := newTestBatch(t, eng, 3, rec)

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	select {
	case <-eng.renderStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("render never started")
	}
	b.Cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not stop after cancel")
	}

	assert.Equal(t, StateCancelled, b.State())
	assert.Empty(t, rec.settlements)
	assert.Equal(t, []bool{false}, rec.completed)
	assert.Equal(t, 0, sessions.Active())
}

func TestBatch_TeardownSparesOtherBatchesSessions(t *testing.T) {
	sessions := session.NewManager(memory.NewSessionStore(), memory.NewDocumentStore())

	// Batch B holds live sessions, parked mid-render.
	engB := &pipelineEngine{
		blockRender:   true,
		renderStarted: make(chan struct{}, 8),
	}
	recB := &recorder{}
	batchB, err := NewBatch(Config{
		BatchID:  "bB",
		Params:   testParams(),
		Count:    2,
		Sessions: sessions,
		Engine:   engB,
		Events:   recB.events(),
	})
	require.NoError(t, err)

	errB := make(chan error, 1)
	go func() { errB <- batchB.Run(context.Background()) }()
	for i := 0; i < 2; i++ {
		select {
		case <-engB.renderStarted:
		case <-time.After(5 * time.Second):
			t.Fatal("render never started")
		}
	}
	require.Equal(t, 2, sessions.Active())

	// Batch A shares the manager and runs to completion.
	recA := &recorder{}
	batchA, err := NewBatch(Config{
		BatchID:  "bA",
		Params:   testParams(),
		Count:    3,
		Sessions: sessions,
		Engine:   &pipelineEngine{},
		Events:   recA.events(),
	})
	require.NoError(t, err)
	errA := make(chan error, 1)
	go func() { errA <- batchA.Run(context.Background()) }()
	select {
	case err := <-errA:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch A did not finish")
	}

	// A's teardown must not touch B's live sessions.
	assert.Equal(t, 2, sessions.Active())

	batchB.ForceComplete()
	select {
	case err := <-errB:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch B did not finish")
	}
	require.Len(t, recB.settlements, 2)
	assert.Equal(t, 0, sessions.Active())
}

func TestBatch_CancelledContextFinalizesAsCancelled(t *testing.T) {
	rec := &recorder{}
	b, sessions := newTestBatch(t, &pipelineEngine{}, 3, rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Run(ctx))

	// A batch that never ran its jobs must not report success.
	assert.Equal(t, StateCancelled, b.State())
	assert.Equal(t, []bool{false}, rec.completed)
	assert.Empty(t, rec.settlements)
	assert.Equal(t, 0, sessions.Active())
}

func TestBatch_ReviewRenderFinishesBeforeTerminalState(t *testing.T) {
	eng := &pipelineEngine{
		reviewAfter:   2,
		reviewStarted: make(chan struct{}, 8),
		reviewRelease: make(chan struct{}),
	}
	rec := &recorder{}
	b, _ := newTestBatch(t, eng, 2, rec, func(cfg *Config) {
		cfg.ReviewWidth, cfg.ReviewHeight = 1600, 1200
	})

	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(context.Background()) }()

	select {
	case <-eng.reviewStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("review re-render never started")
	}
	// While previews are being rewritten the batch is still running.
	assert.Equal(t, StateRunning, b.State())

	close(eng.reviewRelease)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish after review render")
	}
	assert.Equal(t, StateCompleted, b.State())
}

// brokenDocStore fails every save so the post-job restore cannot put the
// shared document back.
type brokenDocStore struct{}

func (s *brokenDocStore) Load(ctx context.Context) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}

func (s *brokenDocStore) Save(ctx context.Context, doc *domain.Document) error {
	return errors.New("disk gone")
}

func TestBatch_RestoreFailureIsBatchFatal(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{}
	sessions := session.NewManager(memory.NewSessionStore(), &brokenDocStore{})
	b, err := NewBatch(Config{
		BatchID:  "b1",
		Params:   testParams(),
		Count:    3,
		Sessions: sessions,
		Engine:   eng,
		Events:   rec.events(),
	})
	require.NoError(t, err)

	runErr := runBatch(t, b)
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, domain.ErrDocumentRestore)
	assert.Equal(t, StateFailed, b.State())
	assert.ErrorIs(t, b.Err(), domain.ErrDocumentRestore)
	assert.Equal(t, []bool{false}, rec.completed)
}

func TestBatch_SlotsFillInAllocationOrder(t *testing.T) {
	rec := &recorder{}
	eng := &pipelineEngine{}
	b, _ := newTestBatch(t, eng, 7, rec)

	require.NoError(t, runBatch(t, b))

	slots := b.Layout().Slots()
	require.Len(t, slots, 7)
	for i, s := range slots {
		assert.True(t, s.Occupied(), "slot %d should be filled", i)
	}
}

func TestNewBatch_RejectsBadConfig(t *testing.T) {
	sessions := session.NewManager(memory.NewSessionStore(), memory.NewDocumentStore())

	_, err := NewBatch(Config{Count: 0, Params: testParams(), Sessions: sessions, Engine: &pipelineEngine{}})
	require.Error(t, err)

	bad := testParams()
	bad.Length = -1
	_, err = NewBatch(Config{Count: 1, Params: bad, Sessions: sessions, Engine: &pipelineEngine{}})
	require.Error(t, err)

	_, err = NewBatch(Config{Count: 1, Params: testParams()})
	require.Error(t, err)
}
