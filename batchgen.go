package batchgen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/internal/render"
	"github.com/austencloud/tka-desktop-sub001/internal/resilience"
	"github.com/austencloud/tka-desktop-sub001/internal/runtime"
	engineAdapter "github.com/austencloud/tka-desktop-sub001/pkg/adapters/engine"
	"github.com/austencloud/tka-desktop-sub001/pkg/adapters/memory"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/layout"
	"github.com/austencloud/tka-desktop-sub001/pkg/observability"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
	"github.com/austencloud/tka-desktop-sub001/pkg/session"
)

// DefaultOrphanAge is how old a stored scratch session must be before the
// startup sweep reclaims it.
const DefaultOrphanAge = 24 * time.Hour

// Orchestrator is the high-level entry point for the batch pipeline. It
// wraps the internal batch runtime, owns the shared-document isolation
// manager, and tracks every batch it has started so hosts can cancel,
// force-complete, inspect, and approve by ID.
type Orchestrator struct {
	sessions *session.Manager
	engine   ports.SequenceEngine
	logger   *slog.Logger
	hooks    domain.BatchEvents
	metrics  *observability.Metrics
	mode     render.Mode

	sessionStore ports.SessionStore
	docStore     ports.DocumentStore

	slotsPerPage int
	columns      int
	maxRetries   int
	baseDelay    time.Duration
	threshold    int
	recovery     time.Duration
	cellW, cellH float64
	reviewW      float64
	reviewH      float64
	orphanAge    time.Duration

	mu      sync.Mutex
	batches map[string]*batchEntry
}

type batchEntry struct {
	batch  *runtime.Batch
	cancel context.CancelFunc
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithEngine injects a custom sequence engine, bypassing the built-in one.
func WithEngine(eng ports.SequenceEngine) Option {
	return func(o *Orchestrator) {
		o.engine = eng
	}
}

// WithSessionStore injects a scratch-session store. Defaults to in-memory;
// file or redis stores survive a host crash and feed the startup orphan
// sweep.
func WithSessionStore(store ports.SessionStore) Option {
	return func(o *Orchestrator) {
		o.sessionStore = store
	}
}

// WithDocumentStore injects the shared-document store.
func WithDocumentStore(store ports.DocumentStore) Option {
	return func(o *Orchestrator) {
		o.docStore = store
	}
}

// WithHooks registers host callbacks for batch events.
func WithHooks(hooks domain.BatchEvents) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithMetrics wires a Prometheus bundle; its hooks run after the host's.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithDispatchMode selects the render dispatch discipline.
func WithDispatchMode(mode render.Mode) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithSlotsPerPage sets the placeholder-grid page capacity.
func WithSlotsPerPage(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.slotsPerPage = n
		}
	}
}

// WithColumns sets the placeholder-grid column count.
func WithColumns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.columns = n
		}
	}
}

// WithMaxRetries sets the per-job retry budget.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryBaseDelay sets the backoff base delay.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.baseDelay = d
		}
	}
}

// WithBreakerThreshold sets the failure streak that opens the circuit.
func WithBreakerThreshold(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// WithRecoveryTimeout sets the breaker cool-down before a trial attempt.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.recovery = d
		}
	}
}

// WithCellSize sets the page-cell dimensions thumbnails are fitted into.
func WithCellSize(width, height float64) Option {
	return func(o *Orchestrator) {
		if width > 0 && height > 0 {
			o.cellW, o.cellH = width, height
		}
	}
}

// WithReviewRender enables a full-batch re-render at review scale into the
// given target dimensions once a batch completes.
func WithReviewRender(width, height float64) Option {
	return func(o *Orchestrator) {
		o.reviewW, o.reviewH = width, height
	}
}

// WithOrphanAge sets the startup sweep cutoff for stale stored sessions.
func WithOrphanAge(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.orphanAge = d
		}
	}
}

// New initializes an Orchestrator. By default it uses in-memory stores and
// the built-in sequence engine; persistent deployments inject file or
// redis stores and sweep crash-orphaned sessions on startup.
func New(opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		logger:    logging.NewNop(),
		mode:      render.Concurrent,
		cellW:     400,
		cellH:     300,
		orphanAge: DefaultOrphanAge,
		batches:   make(map[string]*batchEntry),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.sessionStore == nil {
		o.sessionStore = memory.NewSessionStore()
	}
	if o.docStore == nil {
		o.docStore = memory.NewDocumentStore()
	}
	if o.engine == nil {
		o.engine = engineAdapter.New()
	}
	o.sessions = session.NewManager(o.sessionStore, o.docStore, session.WithLogger(o.logger))

	if swept, err := o.sessions.SweepOrphans(context.Background(), o.orphanAge); err != nil {
		o.logger.Warn("orphan session sweep failed", "err", err)
	} else if swept > 0 {
		o.logger.Info("swept orphaned scratch sessions", "count", swept)
	}
	return o, nil
}

// StartBatch launches count generation jobs for params and returns the
// batch ID immediately; the batch runs on its own goroutine. Progress,
// Wait, CancelBatch, and ForceComplete address it by the returned ID.
func (o *Orchestrator) StartBatch(ctx context.Context, params domain.GenerationParams, count int) (string, error) {
	batchID := uuid.NewString()

	events := o.hooks
	if o.metrics != nil {
		events = domain.Merge(events, o.metrics.Hooks())
	}

	retryOpts := []resilience.RetryOption{resilience.WithRetryLogger(o.logger)}
	if o.maxRetries > 0 {
		retryOpts = append(retryOpts, resilience.WithMaxRetries(o.maxRetries))
	}
	if o.baseDelay > 0 {
		retryOpts = append(retryOpts, resilience.WithBaseDelay(o.baseDelay))
	}
	breakerOpts := []resilience.BreakerOption{}
	if o.threshold > 0 {
		breakerOpts = append(breakerOpts, resilience.WithThreshold(o.threshold))
	}
	if o.recovery > 0 {
		breakerOpts = append(breakerOpts, resilience.WithRecoveryTimeout(o.recovery))
	}
	layoutOpts := []layout.Option{}
	if o.slotsPerPage > 0 {
		layoutOpts = append(layoutOpts, layout.WithSlotsPerPage(o.slotsPerPage))
	}
	if o.columns > 0 {
		layoutOpts = append(layoutOpts, layout.WithColumns(o.columns))
	}

	batch, err := runtime.NewBatch(runtime.Config{
		BatchID:      batchID,
		Params:       params,
		Count:        count,
		Sessions:     o.sessions,
		Engine:       o.engine,
		Breaker:      resilience.NewCircuitBreaker(breakerOpts...),
		Retry:        resilience.NewRetryScheduler(retryOpts...),
		Fallback:     resilience.NewFallbackSupplier(),
		Layout:       layout.New(layoutOpts...),
		Events:       events,
		Logger:       o.logger,
		Mode:         o.mode,
		CellWidth:    o.cellW,
		CellHeight:   o.cellH,
		ReviewWidth:  o.reviewW,
		ReviewHeight: o.reviewH,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start batch: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Lock()
	o.batches[batchID] = &batchEntry{batch: batch, cancel: cancel}
	o.mu.Unlock()

	go func() {
		defer cancel()
		if err := batch.Run(runCtx); err != nil {
			o.logger.Error("batch failed", "batch_id", batchID, "err", err)
		}
	}()
	return batchID, nil
}

func (o *Orchestrator) entry(batchID string) (*batchEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.batches[batchID]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return e, nil
}

// Wait blocks until the batch finishes or ctx is done, returning the
// batch's terminal error.
func (o *Orchestrator) Wait(ctx context.Context, batchID string) error {
	e, err := o.entry(batchID)
	if err != nil {
		return err
	}
	select {
	case <-e.batch.Done():
		return e.batch.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Progress reports settled and total job counts for a batch.
func (o *Orchestrator) Progress(batchID string) (done, total int, err error) {
	e, err := o.entry(batchID)
	if err != nil {
		return 0, 0, err
	}
	done, total = e.batch.Progress()
	return done, total, nil
}

// State returns the batch lifecycle state.
func (o *Orchestrator) State(batchID string) (runtime.State, error) {
	e, err := o.entry(batchID)
	if err != nil {
		return "", err
	}
	return e.batch.State(), nil
}

// CancelBatch stops a running batch: no new generation starts, in-flight
// renders are discarded, queued retries are dropped.
func (o *Orchestrator) CancelBatch(batchID string) error {
	e, err := o.entry(batchID)
	if err != nil {
		return err
	}
	e.batch.Cancel()
	return nil
}

// ForceComplete settles every pending job of a batch with fallback output
// and drives progress to completion.
func (o *Orchestrator) ForceComplete(batchID string) error {
	e, err := o.entry(batchID)
	if err != nil {
		return err
	}
	e.batch.ForceComplete()
	return nil
}

// Layout exposes a batch's placement grid for paging hosts. The grid is
// safe to read once the batch has finished; while running, hosts should
// read it from OnJobSettled callbacks instead.
func (o *Orchestrator) Layout(batchID string) (*layout.Layout, error) {
	e, err := o.entry(batchID)
	if err != nil {
		return nil, err
	}
	return e.batch.Layout(), nil
}

// Artifacts returns the settled artifacts of a finished batch in slot
// order. Fallback placeholders are included.
func (o *Orchestrator) Artifacts(batchID string) ([]*domain.Artifact, error) {
	e, err := o.entry(batchID)
	if err != nil {
		return nil, err
	}
	if e.batch.State() == runtime.StateRunning {
		return nil, domain.ErrBatchActive
	}
	var out []*domain.Artifact
	for _, s := range e.batch.Layout().Slots() {
		if s.Artifact != nil {
			out = append(out, s.Artifact)
		}
	}
	return out, nil
}

// Approve marks a job's artifact as accepted for the shared document. Only
// valid once the batch has finished.
func (o *Orchestrator) Approve(batchID, jobID string) (*domain.Artifact, error) {
	e, err := o.entry(batchID)
	if err != nil {
		return nil, err
	}
	if e.batch.State() == runtime.StateRunning {
		return nil, domain.ErrBatchActive
	}
	a, err := e.batch.Artifact(jobID)
	if err != nil {
		return nil, err
	}
	a.Approved = true
	return a, nil
}

// ClearBatch forgets a finished batch and releases its grid. Running
// batches must be cancelled first.
func (o *Orchestrator) ClearBatch(batchID string) error {
	e, err := o.entry(batchID)
	if err != nil {
		return err
	}
	if e.batch.State() == runtime.StateRunning {
		return domain.ErrBatchActive
	}
	e.batch.Layout().Clear()

	o.mu.Lock()
	delete(o.batches, batchID)
	o.mu.Unlock()
	return nil
}

// Batches lists the IDs of every batch the orchestrator still tracks.
func (o *Orchestrator) Batches() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.batches))
	for id := range o.batches {
		ids = append(ids, id)
	}
	return ids
}

// Close cancels every running batch and waits for them to stop.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	entries := make([]*batchEntry, 0, len(o.batches))
	for _, e := range o.batches {
		entries = append(entries, e)
	}
	o.mu.Unlock()

	for _, e := range entries {
		e.batch.Cancel()
	}
	for _, e := range entries {
		<-e.batch.Done()
	}
}
