// Package engine provides the built-in sequence engine: a deterministic
// generator and renderer that stand in for the full notation engine. It
// keeps the engine's defining trait — it builds into whatever document it
// is pointed at — which is exactly why the pipeline only ever hands it an
// isolated scratch document.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
	"github.com/austencloud/tka-desktop-sub001/pkg/scalefit"
)

// startPositions is the pool used when the caller leaves the start "any".
var startPositions = []string{
	"alpha1", "alpha3", "alpha5", "alpha7",
	"beta1", "beta3", "beta5", "beta7",
	"gamma1", "gamma5", "gamma9", "gamma13",
}

// levelAlphabets widen with difficulty.
var levelAlphabets = map[int]string{
	1: "ABCDEFGH",
	2: "ABCDEFGHIJKLMNOP",
	3: "ABCDEFGHIJKLMNOPQRSTUVWX",
}

// Engine implements ports.SequenceEngine.
//
// Generation is seeded from the parameters, so a pinned start position
// reproduces the same sequence on every call — the same trap the batch
// pipeline works around by varying the start position for later jobs.
// "any" starts draw from an internal counter instead.
type Engine struct {
	tileSize float64
	counter  atomic.Uint64
}

// Option configures the Engine.
type Option func(*Engine)

// WithTileSize overrides the full-scale tile edge in pixels.
func WithTileSize(px float64) Option {
	return func(e *Engine) {
		if px > 0 {
			e.tileSize = px
		}
	}
}

// New creates the built-in engine.
func New(opts ...Option) *Engine {
	e := &Engine{tileSize: scalefit.DefaultTileSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildSequence populates scratch with params.Length content beats plus a
// start-position sentinel and a metadata record.
func (e *Engine) BuildSequence(ctx context.Context, params domain.GenerationParams, scratch *domain.Document) error {
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid generation params: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	seed := paramSeed(params)
	start := params.StartPosition
	if start == domain.StartPositionAny {
		// Each "any" request draws a fresh start so batches vary.
		n := e.counter.Add(1)
		seed ^= n * 0x9E3779B97F4A7C15
		start = startPositions[int(n)%len(startPositions)]
	}
	rng := rand.New(rand.NewSource(int64(seed)))

	alphabet := levelAlphabets[params.Level]
	scratch.Reset()
	scratch.Beats = append(scratch.Beats, domain.Beat{
		Kind:   domain.BeatStartPosition,
		Letter: start,
	})

	half := params.Length
	circular := params.Mode == domain.ModeCircular && params.Length > 1
	if circular {
		half = (params.Length + 1) / 2
	}

	letters := make([]byte, 0, params.Length)
	for i := 0; i < half; i++ {
		letters = append(letters, alphabet[rng.Intn(len(alphabet))])
	}
	if circular {
		// The back half closes the loop by transforming the front half
		// according to the cap type.
		for i := 0; len(letters) < params.Length; i++ {
			letters = append(letters, capLetter(params.Cap, alphabet, letters[i]))
		}
	}

	reversal := false
	for i := 0; i < params.Length; i++ {
		if params.Continuity == domain.ContinuityRandom {
			reversal = rng.Float64() < 0.3
		}
		turns := float64(rng.Intn(3)) * params.TurnIntensity / 2
		scratch.Beats = append(scratch.Beats, domain.Beat{
			Number:   i + 1,
			Kind:     domain.BeatContent,
			Letter:   string(letters[i]),
			Turns:    turns,
			Reversal: reversal,
		})
	}

	scratch.Word = domain.Word(scratch.Beats)
	scratch.Beats = append(scratch.Beats, domain.Beat{
		Kind:   domain.BeatMetadata,
		Letter: scratch.Word,
	})
	scratch.UpdatedAt = time.Now().UTC()
	return nil
}

// capLetter maps a front-half letter to its closing counterpart.
func capLetter(cap domain.CapType, alphabet string, b byte) byte {
	idx := 0
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == b {
			idx = i
			break
		}
	}
	n := len(alphabet)
	switch cap {
	case domain.CapStrictRotated, domain.CapRotatedComplementary, domain.CapRotatedSwapped, domain.CapMirroredRotated:
		return alphabet[(idx+n/2)%n]
	case domain.CapStrictMirrored, domain.CapMirroredSwapped, domain.CapMirroredComplementary:
		return alphabet[n-1-idx]
	case domain.CapStrictSwapped, domain.CapSwappedComplementary:
		return alphabet[(idx+1)%n]
	case domain.CapStrictComplementary:
		return alphabet[(n-idx)%n]
	default:
		return b
	}
}

// RenderArtifact paints the sequence as a grid of letter tiles using the
// same layout rule scalefit exposes. A zero ScaleOverride renders at a
// quarter of natural size.
func (e *Engine) RenderArtifact(ctx context.Context, beats []domain.Beat, opts domain.RenderOptions) (image.Image, error) {
	scale := opts.ScaleOverride
	if scale <= 0 {
		scale = 0.25
	}

	tiles := domain.ContentBeats(beats)
	if opts.IncludeStartPosition {
		for _, b := range beats {
			if b.Kind == domain.BeatStartPosition {
				tiles = append([]domain.Beat{b}, tiles...)
				break
			}
		}
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("nothing to render: no content beats")
	}

	cols, rows := scalefit.Grid(len(tiles))
	cell := int(e.tileSize * scale)
	if cell < 4 {
		cell = 4
	}
	top := 0
	if opts.ShowWordLabel {
		top = labelHeight(cell)
	}

	width := cols * cell
	height := rows*cell + top
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	if opts.ShowWordLabel {
		drawLabel(img, domain.Word(beats), width, top)
	}

	for i, b := range tiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		x := (i % cols) * cell
		y := (i/cols)*cell + top
		tileRect := image.Rect(x+1, y+1, x+cell-1, y+cell-1)
		draw.Draw(img, tileRect, image.NewUniform(letterColor(b)), image.Point{}, draw.Src)
		if opts.ShowReversalSymbols && b.Reversal {
			mark := image.Rect(x+1, y+1, x+1+cell/8, y+1+cell/8)
			draw.Draw(img, mark, image.NewUniform(color.Black), image.Point{}, draw.Src)
		}
		if opts.ShowBeatNumbers && b.Kind == domain.BeatContent && cell >= 24 {
			drawText(img, strconv.Itoa(b.Number), x+3, y+cell-4)
		}
	}
	return img, nil
}

func labelHeight(cell int) int {
	h := cell / 3
	if h < 16 {
		h = 16
	}
	return h
}

func drawLabel(img *image.RGBA, word string, width, top int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	w := d.MeasureString(word).Ceil()
	d.Dot = fixed.P((width-w)/2, top/2+basicfont.Face7x13.Height/2)
	d.DrawString(word)
}

func drawText(img *image.RGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// letterColor hashes the letter so identical beats render identically.
func letterColor(b domain.Beat) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(b.Letter))
	h.Write([]byte(b.Kind))
	v := h.Sum32()
	return color.RGBA{
		R: 64 + uint8(v)%160,
		G: 64 + uint8(v>>8)%160,
		B: 64 + uint8(v>>16)%160,
		A: 0xFF,
	}
}

func paramSeed(p domain.GenerationParams) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%.3f|%s|%s|%s|%s|%s",
		p.Length, p.Level, p.TurnIntensity, p.Continuity, p.Mode, p.Rotation, p.Cap, p.StartPosition)
	return h.Sum64()
}
