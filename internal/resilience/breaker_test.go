package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.Equal(t, BreakerOpen, b.State())
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b := NewCircuitBreaker(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen(), "non-consecutive failures must not open the circuit")
}

func TestBreaker_HalfOpenAdmitsSingleProbe(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	b := NewCircuitBreaker(WithThreshold(1), WithRecoveryTimeout(30*time.Second), WithBreakerClock(clock))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	// Recovery elapses; the next query converts to half-open and admits
	// exactly one trial attempt.
	now = now.Add(31 * time.Second)
	assert.False(t, b.IsOpen())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.True(t, b.IsOpen(), "only one probe is admitted while half-open")
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker(WithThreshold(1), WithBreakerClock(func() time.Time { return now }))

	b.RecordFailure()
	now = now.Add(DefaultRecoveryTimeout + time.Second)
	assert.False(t, b.IsOpen())

	b.RecordSuccess()
	assert.Equal(t, BreakerClosed, b.State())
	assert.False(t, b.IsOpen())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewCircuitBreaker(WithThreshold(2), WithBreakerClock(func() time.Time { return now }))

	b.RecordFailure()
	b.RecordFailure()
	now = now.Add(DefaultRecoveryTimeout + time.Second)
	assert.False(t, b.IsOpen())

	// The trial attempt fails: the accumulated streak re-opens the circuit
	// with a fresh cool-down.
	b.RecordFailure()
	assert.Equal(t, BreakerOpen, b.State())
	assert.True(t, b.IsOpen())
}

func TestBreaker_Reset(t *testing.T) {
	b := NewCircuitBreaker(WithThreshold(1))
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, BreakerClosed, b.State())
}
