package runtime

import "sync/atomic"

// Tracker counts settled jobs for one batch. Writes happen only on the
// batch control goroutine; reads may come from anywhere.
type Tracker struct {
	total int64
	done  atomic.Int64
}

// NewTracker creates a tracker for total jobs.
func NewTracker(total int) *Tracker {
	return &Tracker{total: int64(total)}
}

// Advance counts one settlement and returns the new done count.
func (t *Tracker) Advance() int {
	return int(t.done.Add(1))
}

// Done returns the settled count.
func (t *Tracker) Done() int { return int(t.done.Load()) }

// Total returns the batch size.
func (t *Tracker) Total() int { return int(t.total) }

// Complete reports whether every job has settled.
func (t *Tracker) Complete() bool { return t.done.Load() >= t.total }
