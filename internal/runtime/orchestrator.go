// Package runtime drives one batch end to end: session-isolated
// generation, render dispatch, fault-tolerant settlement, and progressive
// placement.
//
// All shared mutable state — circuit breaker, retry bookkeeping, layout,
// progress — is touched only from the batch control goroutine. Render
// workers and the retry timer marshal onto it through a message channel.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/austencloud/tka-desktop-sub001/internal/generate"
	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/internal/render"
	"github.com/austencloud/tka-desktop-sub001/internal/resilience"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/layout"
	"github.com/austencloud/tka-desktop-sub001/pkg/ports"
	"github.com/austencloud/tka-desktop-sub001/pkg/scalefit"
	"github.com/austencloud/tka-desktop-sub001/pkg/session"
)

// State is the batch lifecycle position.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Config wires one batch run. Breaker, retry scheduler and fallback
// supplier are per batch, constructor-injected, so parallel batches never
// interfere.
type Config struct {
	BatchID  string
	Params   domain.GenerationParams
	Count    int
	Sessions *session.Manager
	Engine   ports.SequenceEngine
	Breaker  *resilience.CircuitBreaker
	Retry    *resilience.RetryScheduler
	Fallback *resilience.FallbackSupplier
	Layout   *layout.Layout
	Events   domain.BatchEvents
	Logger   *slog.Logger
	Mode     render.Mode

	// CellWidth/CellHeight is the page-cell thumbnails are fitted into.
	CellWidth  float64
	CellHeight float64

	// ReviewWidth/ReviewHeight, when positive, trigger a full-batch
	// re-render at the review ceiling once every job has settled.
	ReviewWidth  float64
	ReviewHeight float64
}

type job struct {
	id       string
	index    int
	sess     *domain.Session
	artifact *domain.Artifact
	started  bool
	settled  bool
}

// Batch runs one batch to completion.
type Batch struct {
	cfg       Config
	generator *generate.Generator
	pool      render.Pool
	progress  *Tracker
	logger    *slog.Logger

	msgs chan func()
	wake chan struct{}
	done chan struct{}

	cancelled  chan struct{} // closed by Cancel
	cancelOnce sync.Once

	// Fields below are owned by the control goroutine.
	jobs         []*job
	byID         map[string]*job
	forced       bool
	breakerState resilience.BreakerState

	mu    sync.Mutex
	state State
	err   error
}

// NewBatch validates the config and prepares a batch. Call Run to start.
func NewBatch(cfg Config) (*Batch, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.Count)
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch params: %w", err)
	}
	if cfg.Sessions == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("sessions manager and engine are required")
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker()
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.NewRetryScheduler()
	}
	if cfg.Fallback == nil {
		cfg.Fallback = resilience.NewFallbackSupplier()
	}
	if cfg.Layout == nil {
		cfg.Layout = layout.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.CellWidth <= 0 {
		cfg.CellWidth = 400
	}
	if cfg.CellHeight <= 0 {
		cfg.CellHeight = 300
	}

	b := &Batch{
		cfg:          cfg,
		generator:    generate.New(cfg.Engine, generate.WithLogger(cfg.Logger)),
		progress:     NewTracker(cfg.Count),
		logger:       cfg.Logger.With("batch_id", cfg.BatchID),
		msgs:         make(chan func(), cfg.Count*8+16),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		cancelled:    make(chan struct{}),
		byID:         make(map[string]*job),
		breakerState: resilience.BreakerClosed,
		state:        StateRunning,
	}
	b.pool = render.New(cfg.Mode, cfg.Engine, b.sink)
	return b, nil
}

// sink marshals render results onto the control goroutine.
func (b *Batch) sink(res render.Result) {
	b.post(func() { b.handleResult(res) })
}

func (b *Batch) post(fn func()) {
	select {
	case b.msgs <- fn:
	case <-b.done:
	}
}

// Run executes the batch. It blocks until every job settles, the batch is
// cancelled, or a batch-fatal error occurs, and is intended to be called
// on its own goroutine.
func (b *Batch) Run(ctx context.Context) error {
	defer close(b.done)

	b.emitStarted(ctx)
	b.cfg.Layout.Allocate(b.cfg.Count)

	// Generation phase: sequential, one isolated session per job, draining
	// marshalled results between jobs so early renders settle promptly.
	for i := 0; i < b.cfg.Count; i++ {
		if ctx.Err() != nil {
			b.Cancel()
		}
		if b.isCancelled() || b.forced {
			break
		}
		b.drainPending()
		if b.forced {
			break
		}
		if err := b.startJob(ctx, i); err != nil {
			// Only preserve/restore failures abort a batch.
			b.fail(ctx, err)
			break
		}
	}

	// Settlement phase: everything happens via marshalled messages.
	for !b.progress.Complete() && !b.isCancelled() && b.pendingJobs() > 0 {
		select {
		case fn := <-b.msgs:
			fn()
		case <-b.wake:
		case <-ctx.Done():
			b.Cancel()
		}
	}

	return b.finalize(ctx)
}

// pendingJobs counts started jobs that have not settled.
func (b *Batch) pendingJobs() int {
	n := 0
	for _, j := range b.jobs {
		if j.started && !j.settled {
			n++
		}
	}
	return n
}

func (b *Batch) drainPending() {
	for {
		select {
		case fn := <-b.msgs:
			fn()
		default:
			return
		}
	}
}

// startJob creates the session, generates inside the isolation scope, and
// submits the render. Job-level failures settle the job and return nil;
// only a shared-document restore failure is returned.
func (b *Batch) startJob(ctx context.Context, index int) error {
	j := &job{
		id:    fmt.Sprintf("%s-job-%d", b.cfg.BatchID, index+1),
		index: index,
	}
	b.jobs = append(b.jobs, j)
	b.byID[j.id] = j
	j.started = true

	// An open circuit short-circuits the whole job to fallback without
	// consuming retry budget.
	if b.cfg.Breaker.IsOpen() {
		b.observeBreaker(ctx)
		b.settleFallback(ctx, j, domain.SettledFallback, domain.NewOverloadFailure(j.id))
		return nil
	}
	b.observeBreaker(ctx)

	sess, err := b.cfg.Sessions.Create(ctx)
	if err != nil {
		rErr := domain.NewResourceFailure(j.id, err)
		b.logger.Error("session create failed", "job_id", j.id, "err", err)
		b.settleFallback(ctx, j, domain.SettledFallback, rErr)
		return nil
	}
	j.sess = sess

	return b.generateAndSubmit(ctx, j)
}

// generateAndSubmit runs one generation attempt inside the preserve/restore
// scope and, on success, hands the artifact to the render pool.
func (b *Batch) generateAndSubmit(ctx context.Context, j *job) error {
	var artifact *domain.Artifact
	err := b.cfg.Sessions.WithIsolation(ctx, func(ctx context.Context) error {
		var genErr error
		artifact, genErr = b.generator.Generate(ctx, b.cfg.Params, j.sess, j.index)
		return genErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrDocumentRestore) {
			return err
		}
		b.handleFailure(ctx, j, domain.FailureOf(j.id, err, domain.FailureGeneration))
		return nil
	}

	j.artifact = artifact
	b.submitRender(ctx, j)
	return nil
}

func (b *Batch) submitRender(ctx context.Context, j *job) {
	scale := scalefit.ComputeScale(b.cfg.CellWidth, b.cfg.CellHeight, b.cfg.Params.Length, true)
	b.pool.Submit(ctx, j.id, j.artifact.Beats, domain.ThumbnailOptions(scale))
}

// handleResult applies one render result. Runs on the control goroutine.
func (b *Batch) handleResult(res render.Result) {
	ctx := context.Background()
	j, ok := b.byID[res.JobID]
	if !ok || j.settled || b.isCancelled() {
		return
	}

	if res.Err == nil {
		b.cfg.Breaker.RecordSuccess()
		b.observeBreaker(ctx)
		j.artifact.Preview = res.Image
		b.settle(ctx, j, domain.Settlement{
			JobID:    j.id,
			Kind:     domain.SettledSuccess,
			Artifact: j.artifact,
		})
		return
	}

	b.handleFailure(ctx, j, domain.FailureOf(j.id, res.Err, domain.FailureRender))
}

// handleFailure routes a retryable-or-not failure through the breaker and
// the retry scheduler, settling with fallback when no retry applies.
func (b *Batch) handleFailure(ctx context.Context, j *job, f *domain.Failure) {
	if !f.Retryable() {
		// Validation and resource failures are final for the job.
		b.settleFallback(ctx, j, domain.SettledFallback, f)
		return
	}

	b.cfg.Breaker.RecordFailure()
	circuitOpen := b.cfg.Breaker.IsOpen()
	b.observeBreaker(ctx)

	if circuitOpen {
		// Overload: immediate fallback, no retry attempt consumed.
		b.settleFallback(ctx, j, domain.SettledFallback, domain.NewOverloadFailure(j.id))
		return
	}

	b.cfg.Retry.RecordFailure(j.id, f)
	if !b.cfg.Retry.ShouldRetry(j.id, circuitOpen) {
		b.settleFallback(ctx, j, domain.SettledFallback, f)
		return
	}

	attempt := b.cfg.Retry.Attempts(j.id)
	b.emitRetried(ctx, j.id, attempt)
	b.logger.Info("scheduling retry", "job_id", j.id, "attempt", attempt, "kind", f.Kind)
	b.cfg.Retry.ScheduleRetry(j.id, func() {
		b.post(func() { b.retryJob(j.id) })
	})
}

// retryJob re-runs a job's failed stage. A retry for a job that settled or
// whose session was torn down in the meantime is a safe no-op.
func (b *Batch) retryJob(jobID string) {
	j, ok := b.byID[jobID]
	if !ok || j.settled || j.sess == nil || b.isCancelled() {
		return
	}
	ctx := context.Background()
	if j.artifact == nil {
		if err := b.generateAndSubmit(ctx, j); err != nil {
			b.fail(ctx, err)
		}
		return
	}
	b.submitRender(ctx, j)
}

// settleFallback commits the fallback image as the job's terminal output.
func (b *Batch) settleFallback(ctx context.Context, j *job, kind domain.SettlementKind, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	img := b.cfg.Fallback.GetOrCreate(j.id, reason)

	artifact := j.artifact
	if artifact == nil {
		artifact = &domain.Artifact{ID: j.id, Params: b.cfg.Params}
	}
	artifact.Preview = img
	artifact.Fallback = true

	b.settle(ctx, j, domain.Settlement{
		JobID:    j.id,
		Kind:     kind,
		Artifact: artifact,
		Err:      cause,
	})
}

// settle is the single terminal path: every job goes through here exactly
// once, whatever its outcome.
func (b *Batch) settle(ctx context.Context, j *job, s domain.Settlement) {
	if j.settled {
		return
	}
	j.settled = true
	b.cfg.Retry.Settle(j.id)

	if j.sess != nil {
		if err := b.cfg.Sessions.Destroy(ctx, j.sess.ID); err != nil {
			b.logger.Warn("session destroy failed", "job_id", j.id, "err", err)
		}
		j.sess = nil
	}

	if !b.cfg.Layout.ReplaceNext(s.Artifact) {
		b.logger.Warn("no placeholder slot left for settled job", "job_id", j.id)
	}

	done := b.progress.Advance()
	b.emitSettled(ctx, s)
	b.emitProgress(ctx, done)
}

// forceCompleteRemaining synchronously applies fallback output to every
// pending job, including jobs whose generation never started, and reports
// 100% completion.
func (b *Batch) forceCompleteRemaining() {
	ctx := context.Background()
	b.forced = true
	b.pool.CancelAll()
	b.cfg.Retry.ClearQueue()
	for _, j := range b.jobs {
		if j.settled {
			continue
		}
		b.settleFallback(ctx, j, domain.SettledForced, nil)
	}
	for i := len(b.jobs); i < b.cfg.Count; i++ {
		j := &job{
			id:      fmt.Sprintf("%s-job-%d", b.cfg.BatchID, i+1),
			index:   i,
			started: true,
		}
		b.jobs = append(b.jobs, j)
		b.byID[j.id] = j
		b.settleFallback(ctx, j, domain.SettledForced, nil)
	}
}

// ForceComplete requests fallback settlement of all pending jobs. Safe to
// call from any goroutine; a no-op once the batch has finished.
func (b *Batch) ForceComplete() {
	b.post(b.forceCompleteRemaining)
	b.wakeLoop()
}

// Cancel stops new generation within one scheduling tick, cancels
// in-flight renders, and drops queued retries. Jobs whose generation never
// started settle nothing.
func (b *Batch) Cancel() {
	b.cancelOnce.Do(func() {
		close(b.cancelled)
		b.pool.CancelAll()
		b.cfg.Retry.ClearQueue()
		b.wakeLoop()
	})
}

func (b *Batch) wakeLoop() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Batch) isCancelled() bool {
	select {
	case <-b.cancelled:
		return true
	default:
		return false
	}
}

// finalize releases this batch's remaining sessions, optionally
// re-renders settled artifacts at review scale, and emits the completion
// event. The terminal state is published only after the review re-render,
// so readers gating on StateRunning never observe previews mid-write.
func (b *Batch) finalize(ctx context.Context) error {
	// The session manager is shared across batches: release only the
	// sessions this batch still owns, never the manager's full set.
	for _, j := range b.jobs {
		if j.sess == nil {
			continue
		}
		if err := b.cfg.Sessions.Destroy(context.Background(), j.sess.ID); err != nil {
			b.logger.Warn("session destroy failed during teardown", "job_id", j.id, "err", err)
		}
		j.sess = nil
	}

	b.mu.Lock()
	err := b.err
	b.mu.Unlock()
	cancelled := b.isCancelled()

	if err == nil && !cancelled && b.cfg.ReviewWidth > 0 && b.cfg.ReviewHeight > 0 {
		b.reviewRender(ctx)
	}

	b.mu.Lock()
	switch {
	case err != nil:
		b.state = StateFailed
	case cancelled:
		b.state = StateCancelled
	default:
		b.state = StateCompleted
	}
	b.mu.Unlock()

	b.emitCompleted(context.Background(), err == nil && !cancelled)
	return err
}

// reviewRender re-renders every successfully generated artifact at the
// larger interactive-review scale, sharing the same fit formula as the
// progressive thumbnails.
func (b *Batch) reviewRender(ctx context.Context) {
	scale := scalefit.ComputeScale(b.cfg.ReviewWidth, b.cfg.ReviewHeight, b.cfg.Params.Length, true,
		scalefit.WithCeiling(scalefit.CeilingReview))
	for _, j := range b.jobs {
		a := j.artifact
		if a == nil || a.Fallback {
			continue
		}
		img, err := b.cfg.Engine.RenderArtifact(ctx, a.Beats, domain.ThumbnailOptions(scale))
		if err != nil {
			b.logger.Warn("review re-render failed", "job_id", j.id, "err", err)
			continue
		}
		a.Preview = img
	}
}

// fail records a batch-fatal error and tears the batch down.
func (b *Batch) fail(ctx context.Context, err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	b.logger.Error("batch-fatal error", "err", err)
	b.Cancel()
}

// Progress returns settled/total counts. Safe from any goroutine.
func (b *Batch) Progress() (done, total int) {
	return b.progress.Done(), b.progress.Total()
}

// State returns the batch lifecycle state. Safe from any goroutine.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the batch-fatal error, if any.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed when Run returns.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Layout exposes the placement grid. Callers must not touch it until Done
// is closed.
func (b *Batch) Layout() *layout.Layout { return b.cfg.Layout }

// Artifact looks a job's output up by job ID or artifact ID, for the
// approval flow. Only valid after Done.
func (b *Batch) Artifact(ref string) (*domain.Artifact, error) {
	if j, ok := b.byID[ref]; ok && j.artifact != nil {
		return j.artifact, nil
	}
	for _, j := range b.jobs {
		if j.artifact != nil && j.artifact.ID == ref {
			return j.artifact, nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (b *Batch) emitStarted(ctx context.Context) {
	if fn := b.cfg.Events.OnBatchStarted; fn != nil {
		fn(ctx, b.cfg.BatchID, b.cfg.Count)
	}
}

func (b *Batch) emitSettled(ctx context.Context, s domain.Settlement) {
	if fn := b.cfg.Events.OnJobSettled; fn != nil {
		fn(ctx, b.cfg.BatchID, s)
	}
}

func (b *Batch) emitRetried(ctx context.Context, jobID string, attempt int) {
	if fn := b.cfg.Events.OnJobRetried; fn != nil {
		fn(ctx, b.cfg.BatchID, jobID, attempt)
	}
}

func (b *Batch) emitProgress(ctx context.Context, done int) {
	if fn := b.cfg.Events.OnBatchProgress; fn != nil {
		fn(ctx, b.cfg.BatchID, done, b.progress.Total())
	}
}

func (b *Batch) emitCompleted(ctx context.Context, success bool) {
	if fn := b.cfg.Events.OnBatchCompleted; fn != nil {
		fn(ctx, b.cfg.BatchID, success)
	}
}

func (b *Batch) observeBreaker(ctx context.Context) {
	state := b.cfg.Breaker.State()
	if state == b.breakerState {
		return
	}
	b.breakerState = state
	b.logger.Info("circuit breaker state changed", "state", string(state))
	if fn := b.cfg.Events.OnBreakerState; fn != nil {
		fn(ctx, b.cfg.BatchID, string(state))
	}
}
