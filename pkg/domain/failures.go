package domain

import "fmt"

// FailureKind classifies job-level failures. The kind decides routing:
// validation failures are fatal to the job, generation and render failures
// are retryable, overload skips retry bookkeeping entirely, and resource
// errors mark the job failed without aborting the batch.
type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureGeneration FailureKind = "generation"
	FailureRender     FailureKind = "render"
	FailureOverload   FailureKind = "overload"
	FailureResource   FailureKind = "resource"
)

// Failure is a classified job-level error. It never propagates out of the
// orchestrator as a panic or batch error; it always converts to a settlement.
type Failure struct {
	Kind  FailureKind
	JobID string
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("job %s: %s failure", f.JobID, f.Kind)
	}
	return fmt.Sprintf("job %s: %s failure: %v", f.JobID, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Retryable reports whether the failure may be routed through the retry
// scheduler. Validation failures are final by contract and overload is
// short-circuited to fallback without consuming an attempt.
func (f *Failure) Retryable() bool {
	return f.Kind == FailureGeneration || f.Kind == FailureRender
}

// NewValidationFailure rejects a wrong-length artifact.
func NewValidationFailure(jobID string, err error) *Failure {
	return &Failure{Kind: FailureValidation, JobID: jobID, Err: err}
}

// NewGenerationFailure wraps an engine error during sequence construction.
func NewGenerationFailure(jobID string, err error) *Failure {
	return &Failure{Kind: FailureGeneration, JobID: jobID, Err: err}
}

// NewRenderFailure wraps a renderer error or an invalid rendered image.
func NewRenderFailure(jobID string, err error) *Failure {
	return &Failure{Kind: FailureRender, JobID: jobID, Err: err}
}

// NewOverloadFailure marks a job short-circuited by an open circuit breaker.
func NewOverloadFailure(jobID string) *Failure {
	return &Failure{Kind: FailureOverload, JobID: jobID}
}

// NewResourceFailure wraps a session create/destroy error.
func NewResourceFailure(jobID string, err error) *Failure {
	return &Failure{Kind: FailureResource, JobID: jobID, Err: err}
}

// FailureOf extracts a *Failure from err, classifying unknown errors as the
// given default kind.
func FailureOf(jobID string, err error, def FailureKind) *Failure {
	if f, ok := err.(*Failure); ok {
		return f
	}
	return &Failure{Kind: def, JobID: jobID, Err: err}
}
