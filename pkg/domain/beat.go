package domain

// BeatKind distinguishes content beats from the records the renderer and
// persistence layer interleave with them.
type BeatKind string

const (
	// BeatContent is a counted beat of the sequence.
	BeatContent BeatKind = "content"
	// BeatStartPosition is the opening-position sentinel. It is rendered as a
	// tile when requested but never counted toward sequence length.
	BeatStartPosition BeatKind = "start_position"
	// BeatMetadata carries word/author records. Never counted, never rendered.
	BeatMetadata BeatKind = "metadata"
)

// Beat is one record of a raw sequence.
type Beat struct {
	Number   int      `json:"number"`
	Kind     BeatKind `json:"kind"`
	Letter   string   `json:"letter,omitempty"`
	Turns    float64  `json:"turns,omitempty"`
	Reversal bool     `json:"reversal,omitempty"`
}

// ContentBeats filters a raw sequence down to its counted beats.
func ContentBeats(beats []Beat) []Beat {
	out := make([]Beat, 0, len(beats))
	for _, b := range beats {
		if b.Kind == BeatContent {
			out = append(out, b)
		}
	}
	return out
}

// Word derives the label of a sequence by concatenating content-beat letters.
func Word(beats []Beat) string {
	var w []byte
	for _, b := range beats {
		if b.Kind == BeatContent {
			w = append(w, b.Letter...)
		}
	}
	return string(w)
}
