package domain

// RenderOptions is the fixed option set accepted by the sequence renderer.
// A zero ScaleOverride lets the renderer pick its own scale.
type RenderOptions struct {
	ShowBeatNumbers      bool
	ShowReversalSymbols  bool
	ShowAuthorDate       bool
	ShowWordLabel        bool
	ShowDifficultyBadge  bool
	IncludeStartPosition bool
	ScaleOverride        float64
}

// ThumbnailOptions returns the option set used for page-cell previews.
func ThumbnailOptions(scale float64) RenderOptions {
	return RenderOptions{
		ShowBeatNumbers:      true,
		ShowWordLabel:        true,
		IncludeStartPosition: true,
		ScaleOverride:        scale,
	}
}
