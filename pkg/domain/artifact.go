package domain

import "image"

// Artifact is a generated sequence plus its rendered preview.
//
// Ownership is split by field: the generator creates the value, the render
// pool sets Preview/RenderPath on success, and only the orchestrator's
// approval flow mutates Approved.
type Artifact struct {
	ID         string
	Word       string
	Beats      []Beat
	Params     GenerationParams
	Approved   bool
	Preview    image.Image
	RenderPath string
	// Fallback marks previews substituted by the fallback supplier.
	Fallback bool
}

// FailureRecord tracks the retry bookkeeping of one job. It exists only
// while the job has outstanding failures and is dropped on settlement.
type FailureRecord struct {
	JobID             string
	Attempts          int
	LastErr           string
	LastAttempt       int64 // unix nanos
	BackoffMultiplier float64
}
