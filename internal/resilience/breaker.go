// Package resilience holds the fault-tolerance pieces of the batch
// pipeline: the batch-wide circuit breaker, per-job retry scheduling with
// exponential backoff, and the fallback image supplier.
package resilience

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

const (
	// DefaultBreakerThreshold is the consecutive-failure count that opens
	// the circuit.
	DefaultBreakerThreshold = 5
	// DefaultRecoveryTimeout is the cool-down before a trial attempt.
	DefaultRecoveryTimeout = 30 * time.Second
)

// CircuitBreaker throttles dispatch after a failure streak. One instance is
// shared across an entire batch, never per job: a streak anywhere throttles
// all subsequent dispatch.
//
// The OPEN -> HALF_OPEN transition is lazy: it happens on the next IsOpen
// query after the recovery timeout, which then permits exactly one trial
// attempt.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probeUsed   bool

	threshold int
	recovery  time.Duration
	now       func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithThreshold sets the failure count that opens the circuit.
func WithThreshold(n int) BreakerOption {
	return func(b *CircuitBreaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithRecoveryTimeout sets the cool-down before a trial attempt.
func WithRecoveryTimeout(d time.Duration) BreakerOption {
	return func(b *CircuitBreaker) {
		if d > 0 {
			b.recovery = d
		}
	}
}

// WithBreakerClock injects a clock for tests.
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(b *CircuitBreaker) {
		b.now = now
	}
}

// NewCircuitBreaker creates a closed breaker with default thresholds.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		state:     BreakerClosed,
		threshold: DefaultBreakerThreshold,
		recovery:  DefaultRecoveryTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeUsed = false
	b.state = BreakerClosed
}

// RecordFailure counts a failure and opens the circuit once the threshold
// is reached. A failure during the half-open trial re-opens immediately.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	b.probeUsed = false
	if b.failures >= b.threshold {
		b.state = BreakerOpen
	}
}

// IsOpen reports whether dispatch should be throttled. An OPEN circuit
// whose recovery timeout has elapsed converts to HALF_OPEN and answers
// false exactly once, admitting a single trial attempt.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return false
	case BreakerOpen:
		if b.now().Sub(b.lastFailure) >= b.recovery {
			b.state = BreakerHalfOpen
			b.probeUsed = true
			return false
		}
		return true
	case BreakerHalfOpen:
		if !b.probeUsed {
			b.probeUsed = true
			return false
		}
		return true
	}
	return false
}

// State returns the current state without triggering lazy transitions.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually closes the circuit and clears all counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probeUsed = false
	b.lastFailure = time.Time{}
}
