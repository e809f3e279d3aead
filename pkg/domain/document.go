package domain

import "time"

// Document is the shared mutable sequence the user may be editing while a
// batch runs. Exactly one logical instance exists per workspace; background
// generation must never be visible through it.
type Document struct {
	Word      string    `json:"word,omitempty"`
	Beats     []Beat    `json:"beats"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument returns an empty, known-good document.
func NewDocument() *Document {
	return &Document{Beats: []Beat{}}
}

// Clone returns a deep copy, safe to hand to an isolated session.
func (d *Document) Clone() *Document {
	if d == nil {
		return NewDocument()
	}
	out := &Document{
		Word:      d.Word,
		Beats:     make([]Beat, len(d.Beats)),
		UpdatedAt: d.UpdatedAt,
	}
	copy(out.Beats, d.Beats)
	return out
}

// Reset empties the document in place.
func (d *Document) Reset() {
	d.Word = ""
	d.Beats = d.Beats[:0]
	d.UpdatedAt = time.Time{}
}
