package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is an isolated scratch working context for one generation job.
// It is exclusively owned by the job that created it and destroyed when the
// job settles or the batch is torn down.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Scratch   *Document `json:"scratch"`
}

// NewSession allocates an empty scratch session with a fresh ID.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Scratch:   NewDocument(),
	}
}
