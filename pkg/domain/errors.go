package domain

import "errors"

// ErrSessionNotFound is returned when a scratch session ID is unknown to the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrDocumentNotFound is returned when no shared document has been saved yet.
var ErrDocumentNotFound = errors.New("shared document not found")

// ErrDocumentRestore marks a failure of the preserve/restore discipline.
// Unlike job-level failures, this one is batch-fatal.
var ErrDocumentRestore = errors.New("shared document restore failed")

// ErrBatchNotFound is returned for commands addressing an unknown batch ID.
var ErrBatchNotFound = errors.New("batch not found")

// ErrBatchActive is returned when a command requires the batch to have finished.
var ErrBatchActive = errors.New("batch still active")

// ErrJobNotFound is returned when a job ID is unknown within a batch.
var ErrJobNotFound = errors.New("job not found")

// ErrNoPlaceholders is returned when every slot of a layout is already occupied.
var ErrNoPlaceholders = errors.New("no placeholder slots remain")
