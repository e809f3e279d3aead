package domain

// PlacementSlot is one pre-allocated grid position of a batch layout.
// A nil Artifact means the slot still holds its placeholder. The transition
// placeholder -> artifact happens at most once and is never reversed.
type PlacementSlot struct {
	Page     int
	Row      int
	Col      int
	Artifact *Artifact
}

// Occupied reports whether the placeholder has been replaced.
func (s *PlacementSlot) Occupied() bool { return s.Artifact != nil }
