package resilience

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/austencloud/tka-desktop-sub001/internal/logging"
	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

const (
	// DefaultMaxRetries is the per-job retry budget.
	DefaultMaxRetries = 3
	// DefaultBaseDelay seeds the exponential backoff and paces the drain.
	DefaultBaseDelay = time.Second
	// DefaultMaxDelay caps the computed backoff.
	DefaultMaxDelay = 10 * time.Second
	// DefaultBackoffMultiplier doubles the delay per attempt.
	DefaultBackoffMultiplier = 2.0
)

type retryEntry struct {
	jobID    string
	callback func()
}

// RetryScheduler keeps per-job failure records and a time-delayed retry
// queue drained serially by a single timer: the computed backoff gates only
// the first queued retry, each subsequent queued callback fires one
// baseDelay after the previous.
//
// Callbacks run on the timer goroutine; callers marshal onto their own
// control context. A callback for a job whose session was already torn
// down must be a safe no-op on the caller's side.
type RetryScheduler struct {
	mu      sync.Mutex
	records map[string]*domain.FailureRecord
	queue   []retryEntry
	timer   *time.Timer

	base       time.Duration
	max        time.Duration
	multiplier float64
	maxRetries int
	logger     *slog.Logger
}

// RetryOption configures a RetryScheduler.
type RetryOption func(*RetryScheduler)

// WithMaxRetries sets the per-job retry budget.
func WithMaxRetries(n int) RetryOption {
	return func(r *RetryScheduler) {
		if n >= 0 {
			r.maxRetries = n
		}
	}
}

// WithBaseDelay sets the backoff base and the drain pacing.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(r *RetryScheduler) {
		if d > 0 {
			r.base = d
		}
	}
}

// WithMaxDelay caps the computed backoff.
func WithMaxDelay(d time.Duration) RetryOption {
	return func(r *RetryScheduler) {
		if d > 0 {
			r.max = d
		}
	}
}

// WithBackoffMultiplier sets the exponential growth factor.
func WithBackoffMultiplier(m float64) RetryOption {
	return func(r *RetryScheduler) {
		if m >= 1 {
			r.multiplier = m
		}
	}
}

// WithRetryLogger configures a logger.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryScheduler) {
		r.logger = logger
	}
}

// NewRetryScheduler creates a scheduler with default backoff parameters.
func NewRetryScheduler(opts ...RetryOption) *RetryScheduler {
	r := &RetryScheduler{
		records:    make(map[string]*domain.FailureRecord),
		base:       DefaultBaseDelay,
		max:        DefaultMaxDelay,
		multiplier: DefaultBackoffMultiplier,
		maxRetries: DefaultMaxRetries,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordFailure counts an attempt against the job.
func (r *RetryScheduler) RecordFailure(jobID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[jobID]
	if !ok {
		rec = &domain.FailureRecord{JobID: jobID, BackoffMultiplier: r.multiplier}
		r.records[jobID] = rec
	}
	rec.Attempts++
	if err != nil {
		rec.LastErr = err.Error()
	}
	rec.LastAttempt = time.Now().UnixNano()
}

// Attempts returns the recorded failure count for a job.
func (r *RetryScheduler) Attempts(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[jobID]; ok {
		return rec.Attempts
	}
	return 0
}

// ShouldRetry reports whether the job has budget left. An open circuit
// vetoes retries outright.
func (r *RetryScheduler) ShouldRetry(jobID string, circuitOpen bool) bool {
	if circuitOpen {
		return false
	}
	return r.Attempts(jobID) < r.maxRetries
}

// Delay computes the backoff for the job's current attempt count:
// min(baseDelay * multiplier^(attempts-1), maxDelay).
func (r *RetryScheduler) Delay(jobID string) time.Duration {
	attempts := r.Attempts(jobID)
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(r.base) * math.Pow(r.multiplier, float64(attempts-1)))
	if d > r.max {
		d = r.max
	}
	return d
}

// ScheduleRetry enqueues the callback and ensures the drain timer is armed.
// The first queued entry waits the job's computed backoff; the queue then
// drains one callback per tick, re-arming after baseDelay.
func (r *RetryScheduler) ScheduleRetry(jobID string, callback func()) {
	delay := r.Delay(jobID)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, retryEntry{jobID: jobID, callback: callback})
	if r.timer == nil {
		r.arm(delay)
	}
}

// arm must be called with r.mu held.
func (r *RetryScheduler) arm(d time.Duration) {
	r.timer = time.AfterFunc(d, r.drain)
}

// drain pops and invokes one queued callback, then re-arms for the next.
func (r *RetryScheduler) drain() {
	r.mu.Lock()
	if len(r.queue) == 0 {
		r.timer = nil
		r.mu.Unlock()
		return
	}
	entry := r.queue[0]
	r.queue = r.queue[1:]
	if len(r.queue) > 0 {
		r.arm(r.base)
	} else {
		r.timer = nil
	}
	r.mu.Unlock()

	r.logger.Debug("retrying job", "job_id", entry.jobID)
	entry.callback()
}

// Settle drops the job's failure record once it reaches a terminal state.
func (r *RetryScheduler) Settle(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, jobID)
}

// Pending returns the number of queued retries.
func (r *RetryScheduler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// ClearQueue cancels every pending retry and stops the drain timer.
func (r *RetryScheduler) ClearQueue() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = nil
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
