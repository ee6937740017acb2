// Package fonts loads the display font shared by layout and rendering.
package fonts

import (
	"fmt"
	"os"
	"sync"
	"unicode"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Font is a parsed TrueType font with a per-size face cache.
// Faces are not safe for concurrent use, so Face hands out a fresh face for
// each caller; the cache only stores metrics.
type Font struct {
	Path string
	ttf  *truetype.Font

	mu      sync.Mutex
	metrics map[float64]font.Metrics
}

// Load parses the TrueType file at path. An empty path loads the embedded Go
// Regular font, which has no CJK glyphs.
func Load(path string) (*Font, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read font %q: %w", path, err)
		}
		data = b
	}
	ttf, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %q: %w", path, err)
	}
	return &Font{Path: path, ttf: ttf, metrics: make(map[float64]font.Metrics)}, nil
}

// Face returns a new face at size px (72 DPI, so points equal pixels).
func (f *Font) Face(size float64) font.Face {
	return truetype.NewFace(f.ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// Measure returns the advance width and line height of text at size px.
// Safe for concurrent use.
func (f *Font) Measure(text string, size float64) (w, h float64) {
	face := f.Face(size)
	defer face.Close()

	adv := font.MeasureString(face, text)
	m := f.lineMetrics(size, face)
	return float64(adv.Ceil()), float64((m.Ascent + m.Descent).Ceil())
}

// Covers reports whether the font has a glyph for every non-space rune of
// text.
func (f *Font) Covers(text string) bool {
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		if f.ttf.Index(r) == 0 {
			return false
		}
	}
	return true
}

func (f *Font) lineMetrics(size float64, face font.Face) font.Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.metrics[size]
	if !ok {
		m = face.Metrics()
		f.metrics[size] = m
	}
	return m
}
