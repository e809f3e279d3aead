// Package render dispatches render jobs and marshals results back to the
// batch control goroutine.
//
// Two dispatch disciplines implement the same contract: Concurrent fans
// out one worker per job; Cooperative keeps a single job active at a time
// so a host event loop stays responsive. Either way there is at most one
// in-flight render per job ID, and late results from cancelled jobs are
// dropped, never applied.
package render

import (
	"context"
	"fmt"
	"image"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// Mode selects a dispatch discipline.
type Mode string

const (
	// Concurrent dispatches one goroutine per job, unbounded fan-out.
	Concurrent Mode = "concurrent"
	// Cooperative renders one job at a time on a single worker.
	Cooperative Mode = "cooperative"
)

// Result is one settled render attempt. Err, when set, is a
// *domain.Failure of kind render.
type Result struct {
	JobID string
	Image image.Image
	Err   error
}

// Sink receives results. Pools invoke it from their worker goroutines; the
// orchestrator's sink forwards into its control channel so shared state is
// only ever touched from one goroutine.
type Sink func(Result)

// Pool is the render dispatch contract.
type Pool interface {
	// Submit starts a render for the job. It reports false without
	// dispatching when the pool is cancelled or the job already has an
	// in-flight render.
	Submit(ctx context.Context, jobID string, beats []domain.Beat, opts domain.RenderOptions) bool

	// Cancel drops a single job: pending dispatch is removed and a late
	// result, if the render already started, is discarded.
	Cancel(jobID string)

	// CancelAll stops new dispatch and discards all late results.
	CancelAll()
}

// New creates a pool of the given mode.
func New(mode Mode, engine renderer, sink Sink) Pool {
	if mode == Cooperative {
		return newCooperativePool(engine, sink)
	}
	return newConcurrentPool(engine, sink)
}

// renderer is the slice of ports.SequenceEngine the pools need.
type renderer interface {
	RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error)
}

// validate gates a successful render: a nil image or one without positive
// dimensions is converted to a render failure.
func validate(jobID string, img image.Image) error {
	if img == nil {
		return domain.NewRenderFailure(jobID, fmt.Errorf("renderer returned nil image"))
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return domain.NewRenderFailure(jobID, fmt.Errorf("renderer returned empty image %dx%d", b.Dx(), b.Dy()))
	}
	return nil
}
