// Package scalefit reverse-calculates the render scale needed to fit a
// fixed-size sequence composition into a target cell.
//
// Every call site that fits a rendered sequence into a box (page-cell
// thumbnails, the full-batch completion re-render, interactive review
// previews) must go through this package; a second copy of the grid rule
// drifting from the renderer's makes the fit silently wrong.
package scalefit

import "math"

const (
	// DefaultTileSize is the edge of one beat tile at full scale.
	DefaultTileSize = 950.0

	// topMargin and bottomMargin approximate the word-label and footer
	// space of a full-scale composition.
	topMargin    = 300.0
	bottomMargin = 50.0

	// MinScale is the floor below which output becomes unreadable.
	MinScale = 0.05

	// CeilingThumbnail caps page-cell previews at natural size.
	CeilingThumbnail = 1.0
	// CeilingReview caps the larger interactive review rendering at half
	// size. Intentionally lower than the thumbnail ceiling: review images
	// are big enough that full scale wastes memory for no visible gain.
	CeilingReview = 0.5
)

// Grid derives the column/row layout the renderer uses for n tiles.
// This is the renderer's own rule; keep the two in lockstep.
func Grid(tiles int) (cols, rows int) {
	switch {
	case tiles <= 0:
		return 0, 0
	case tiles <= 4:
		cols = tiles
	case tiles <= 8:
		cols = 4
	case tiles <= 20:
		cols = 5
	default:
		cols = 6
	}
	rows = (tiles + cols - 1) / cols
	return cols, rows
}

// Options tune the fit computation.
type Options struct {
	TileSize float64
	Ceiling  float64
}

// Option mutates Options.
type Option func(*Options)

// WithTileSize overrides the full-scale tile edge.
func WithTileSize(px float64) Option {
	return func(o *Options) { o.TileSize = px }
}

// WithCeiling sets the clamp ceiling (CeilingThumbnail or CeilingReview).
func WithCeiling(c float64) Option {
	return func(o *Options) { o.Ceiling = c }
}

// ComputeScale returns the scale factor that fits a composition of
// contentLength beats (plus the start-position tile when requested) into a
// targetWidth x targetHeight cell, clamped to [MinScale, ceiling].
func ComputeScale(targetWidth, targetHeight float64, contentLength int, includeStartPosition bool, opts ...Option) float64 {
	o := Options{TileSize: DefaultTileSize, Ceiling: CeilingThumbnail}
	for _, opt := range opts {
		opt(&o)
	}

	tiles := contentLength
	if includeStartPosition {
		tiles++
	}
	cols, rows := Grid(tiles)
	if cols == 0 || targetWidth <= 0 || targetHeight <= 0 {
		return MinScale
	}

	fullWidth := float64(cols) * o.TileSize
	fullHeight := float64(rows)*o.TileSize + topMargin + bottomMargin

	scale := math.Min(targetWidth/fullWidth, targetHeight/fullHeight)
	return math.Min(math.Max(scale, MinScale), o.Ceiling)
}
