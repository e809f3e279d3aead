package domain

import "context"

// SettlementKind names the terminal state of a job. Every job reaches
// exactly one of these.
type SettlementKind string

const (
	SettledSuccess  SettlementKind = "success"
	SettledFallback SettlementKind = "fallback"
	SettledForced   SettlementKind = "forced_fallback"
)

// Settlement is the terminal event of one job. Artifact is always non-nil;
// for fallback settlements it carries the placeholder preview.
type Settlement struct {
	JobID    string
	Kind     SettlementKind
	Artifact *Artifact
	Err      error
}

// BatchEvents defines host callbacks for batch observability.
// All callbacks are invoked from the batch control goroutine; hosts that
// need another goroutine must hand off themselves. Nil members are skipped.
type BatchEvents struct {
	OnBatchStarted   func(ctx context.Context, batchID string, total int)
	OnJobSettled     func(ctx context.Context, batchID string, s Settlement)
	OnJobRetried     func(ctx context.Context, batchID, jobID string, attempt int)
	OnBatchProgress  func(ctx context.Context, batchID string, done, total int)
	OnBatchCompleted func(ctx context.Context, batchID string, success bool)
	OnBreakerState   func(ctx context.Context, batchID, state string)
}

// Merge combines two event sets; for each callback, a fires before b.
func Merge(a, b BatchEvents) BatchEvents {
	out := a
	if b.OnBatchStarted != nil {
		prev := out.OnBatchStarted
		out.OnBatchStarted = func(ctx context.Context, id string, total int) {
			if prev != nil {
				prev(ctx, id, total)
			}
			b.OnBatchStarted(ctx, id, total)
		}
	}
	if b.OnJobSettled != nil {
		prev := out.OnJobSettled
		out.OnJobSettled = func(ctx context.Context, id string, s Settlement) {
			if prev != nil {
				prev(ctx, id, s)
			}
			b.OnJobSettled(ctx, id, s)
		}
	}
	if b.OnJobRetried != nil {
		prev := out.OnJobRetried
		out.OnJobRetried = func(ctx context.Context, id, job string, attempt int) {
			if prev != nil {
				prev(ctx, id, job, attempt)
			}
			b.OnJobRetried(ctx, id, job, attempt)
		}
	}
	if b.OnBatchProgress != nil {
		prev := out.OnBatchProgress
		out.OnBatchProgress = func(ctx context.Context, id string, done, total int) {
			if prev != nil {
				prev(ctx, id, done, total)
			}
			b.OnBatchProgress(ctx, id, done, total)
		}
	}
	if b.OnBatchCompleted != nil {
		prev := out.OnBatchCompleted
		out.OnBatchCompleted = func(ctx context.Context, id string, ok bool) {
			if prev != nil {
				prev(ctx, id, ok)
			}
			b.OnBatchCompleted(ctx, id, ok)
		}
	}
	if b.OnBreakerState != nil {
		prev := out.OnBreakerState
		out.OnBreakerState = func(ctx context.Context, id, state string) {
			if prev != nil {
				prev(ctx, id, state)
			}
			b.OnBreakerState(ctx, id, state)
		}
	}
	return out
}
