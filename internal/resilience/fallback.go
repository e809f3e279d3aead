package resilience

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	fallbackWidth  = 380
	fallbackHeight = 330
)

// FallbackSupplier produces deterministic placeholder previews for jobs
// that exhausted their retries or were force-completed. Placeholders are
// cached per job so repeated settlement paths hand back the same image.
type FallbackSupplier struct {
	mu      sync.Mutex
	cache   map[string]image.Image
	generic image.Image
	width   int
	height  int
}

// NewFallbackSupplier creates a supplier producing images sized for page
// cells.
func NewFallbackSupplier() *FallbackSupplier {
	return &FallbackSupplier{
		cache:  make(map[string]image.Image),
		width:  fallbackWidth,
		height: fallbackHeight,
	}
}

// GetOrCreate returns the job's cached fallback if one exists, the shared
// generic error image when no reason is available, or a freshly synthesized
// placeholder containing the error text.
func (f *FallbackSupplier) GetOrCreate(jobID, reason string) image.Image {
	f.mu.Lock()
	defer f.mu.Unlock()

	if img, ok := f.cache[jobID]; ok {
		return img
	}
	if reason == "" {
		return f.genericLocked()
	}
	img := f.synthesize("Preview unavailable", reason)
	f.cache[jobID] = img
	return img
}

// genericLocked lazily builds the shared generic error image.
func (f *FallbackSupplier) genericLocked() image.Image {
	if f.generic == nil {
		f.generic = f.synthesize("Preview unavailable", "generation failed")
	}
	return f.generic
}

// Clear drops all cached placeholders.
func (f *FallbackSupplier) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[string]image.Image)
}

func (f *FallbackSupplier) synthesize(title, reason string) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))

	bg := color.RGBA{R: 0xEE, G: 0xEE, B: 0xF2, A: 0xFF}
	border := color.RGBA{R: 0xB0, G: 0x3A, B: 0x3A, A: 0xFF}
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	for x := 0; x < f.width; x++ {
		img.Set(x, 0, border)
		img.Set(x, f.height-1, border)
	}
	for y := 0; y < f.height; y++ {
		img.Set(0, y, border)
		img.Set(f.width-1, y, border)
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 0x40, G: 0x40, B: 0x48, A: 0xFF}),
		Face: face,
	}

	lines := append([]string{title, ""}, wrapText(reason, f.width/face.Advance-2)...)
	y := f.height/2 - len(lines)*face.Height/2
	for _, line := range lines {
		w := drawer.MeasureString(line).Ceil()
		drawer.Dot = fixed.P((f.width-w)/2, y)
		drawer.DrawString(line)
		y += face.Height + 2
	}
	return img
}

// wrapText splits s into lines of at most width runes, breaking on spaces
// where possible. Rune-indexed so multi-byte error text never gets split
// mid-character.
func wrapText(s string, width int) []string {
	if width < 8 {
		width = 8
	}
	var lines []string
	runes := []rune(s)
	for len(runes) > width {
		cut := width
		for i := width; i > 0; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		lines = append(lines, string(runes[:cut]))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return lines
}
