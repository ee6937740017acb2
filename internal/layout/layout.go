// Package layout packs a word frequency table into a fixed-size canvas.
//
// Words are sized from their count relative to the most frequent word, sorted
// largest first, and each one walks an Archimedean spiral out from the canvas
// center until its bounding box fits without touching any earlier word. Words
// that run out of spiral are dropped; the result never contains overlaps.
//
// Coordinates in a Placement are relative to the canvas center, matching a
// renderer that translates its origin to (Width/2, Height/2).
package layout

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"unicode/utf8"

	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

// Measurer reports the rendered size of text at a font size in pixels.
type Measurer interface {
	Measure(text string, size float64) (w, h float64)
}

// SizeMode selects how a word's font size is derived.
type SizeMode string

const (
	// SizeRatio interpolates between FontMin and FontMax by count/maxCount.
	SizeRatio SizeMode = "ratio"
	// SizeWeighted interpolates by count/maxCount * runes(text), normalized to
	// the largest such weight in the table, so long frequent words dominate.
	SizeWeighted SizeMode = "weighted"
)

// RotationPolicy selects each word's orientation.
type RotationPolicy string

const (
	// RotateRandom turns each word 0 or 90 degrees with equal probability.
	RotateRandom RotationPolicy = "random"
	// RotateParity keeps words with an even count horizontal and turns words
	// with an odd count 90 degrees.
	RotateParity RotationPolicy = "parity"
)

// ParseSizeMode validates s.
func ParseSizeMode(s string) (SizeMode, error) {
	switch m := SizeMode(s); m {
	case SizeRatio, SizeWeighted:
		return m, nil
	}
	return "", fmt.Errorf("unknown size mode %q (want ratio or weighted)", s)
}

// ParseRotationPolicy validates s.
func ParseRotationPolicy(s string) (RotationPolicy, error) {
	switch p := RotationPolicy(s); p {
	case RotateRandom, RotateParity:
		return p, nil
	}
	return "", fmt.Errorf("unknown rotation policy %q (want random or parity)", s)
}

// Config holds the canvas geometry and sizing rules.
type Config struct {
	Width, Height    int
	Padding          float64
	FontMin, FontMax float64
	SizeMode         SizeMode
	Rotation         RotationPolicy
	// MaxAttempts bounds the spiral steps tried per word.
	MaxAttempts int
}

// DefaultConfig returns a 420x180 canvas with 20..50px fonts and 2px padding.
func DefaultConfig() Config {
	return Config{
		Width:       420,
		Height:      180,
		Padding:     2,
		FontMin:     20,
		FontMax:     50,
		SizeMode:    SizeRatio,
		Rotation:    RotateRandom,
		MaxAttempts: 5000,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("canvas must be positive, got %dx%d", c.Width, c.Height)
	case c.Padding < 0:
		return fmt.Errorf("padding must not be negative, got %v", c.Padding)
	case c.FontMin <= 0:
		return fmt.Errorf("minimum font size must be positive, got %v", c.FontMin)
	case c.FontMin > c.FontMax:
		return fmt.Errorf("minimum font size %v exceeds maximum %v", c.FontMin, c.FontMax)
	case c.MaxAttempts <= 0:
		return errors.New("placement attempt budget must be positive")
	}
	if _, err := ParseSizeMode(string(c.SizeMode)); err != nil {
		return err
	}
	_, err := ParseRotationPolicy(string(c.Rotation))
	return err
}

// Word is a table entry with its derived sizing inputs.
type Word struct {
	Text   string
	Count  int
	Ratio  float64
	Weight float64
	Size   float64
}

// Placement is a positioned word. X and Y locate the center of the word
// relative to the canvas center; W and H are the unrotated text extents.
type Placement struct {
	Text   string
	X, Y   float64
	Rotate int
	Size   float64
	W, H   float64
}

// Bounds returns the axis-aligned box covered by p, grown by pad on every side.
func (p Placement) Bounds(pad float64) Rect {
	w, h := p.W, p.H
	if p.Rotate == 90 {
		w, h = h, w
	}
	return Rect{
		MinX: p.X - w/2 - pad,
		MinY: p.Y - h/2 - pad,
		MaxX: p.X + w/2 + pad,
		MaxY: p.Y + h/2 + pad,
	}
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Intersects reports whether r and o share interior area. Touching edges do
// not count.
func (r Rect) Intersects(o Rect) bool {
	return r.MinX < o.MaxX && o.MinX < r.MaxX && r.MinY < o.MaxY && o.MinY < r.MaxY
}

// Engine lays out frequency tables. It is safe for concurrent use as long as
// each call gets its own random source.
type Engine struct {
	cfg Config
	m   Measurer
}

// New returns an Engine after validating cfg.
func New(m Measurer, cfg Config) (*Engine, error) {
	if m == nil {
		return nil, errors.New("layout: nil measurer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	return &Engine{cfg: cfg, m: m}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Words derives sizes for every entry and returns them largest first. Entries
// with equal size keep table order.
func (e *Engine) Words(table wordfreq.Table) []Word {
	maxCount := table.Max()
	if maxCount == 0 {
		return nil
	}

	words := make([]Word, len(table))
	maxWeight := 0.0
	for i, ent := range table {
		ratio := float64(ent.Count) / float64(maxCount)
		weight := ratio * float64(utf8.RuneCountInString(ent.Text))
		words[i] = Word{Text: ent.Text, Count: ent.Count, Ratio: ratio, Weight: weight}
		maxWeight = math.Max(maxWeight, weight)
	}

	span := e.cfg.FontMax - e.cfg.FontMin
	for i := range words {
		scale := words[i].Ratio
		if e.cfg.SizeMode == SizeWeighted && maxWeight > 0 {
			scale = words[i].Weight / maxWeight
		}
		words[i].Size = e.cfg.FontMin + scale*span
	}

	sort.SliceStable(words, func(i, j int) bool { return words[i].Size > words[j].Size })
	return words
}

// Layout places the words of table. rng drives rotation and spiral direction;
// nil seeds a fresh source.
func (e *Engine) Layout(table wordfreq.Table, rng *rand.Rand) []Placement {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	words := e.Words(table)
	placed := make([]Placement, 0, len(words))
	boxes := make([]Rect, 0, len(words))
	for _, w := range words {
		p := Placement{Text: w.Text, Size: w.Size, Rotate: e.rotation(w, rng)}
		p.W, p.H = e.m.Measure(w.Text, w.Size)

		if !e.place(&p, boxes, rng) {
			continue
		}
		placed = append(placed, p)
		boxes = append(boxes, p.Bounds(e.cfg.Padding))
	}
	return placed
}

func (e *Engine) rotation(w Word, rng *rand.Rand) int {
	if e.cfg.Rotation == RotateParity {
		if w.Count%2 == 0 {
			return 0
		}
		return 90
	}
	if rng.IntN(2) == 0 {
		return 0
	}
	return 90
}

// place walks the spiral and sets p.X, p.Y to the first free spot.
func (e *Engine) place(p *Placement, boxes []Rect, rng *rand.Rand) bool {
	halfW, halfH := float64(e.cfg.Width)/2, float64(e.cfg.Height)/2
	aspect := float64(e.cfg.Width) / float64(e.cfg.Height)
	maxDelta := math.Hypot(float64(e.cfg.Width), float64(e.cfg.Height))

	dt := 1.0
	if rng.IntN(2) == 0 {
		dt = -1
	}

	t := 0.0
	for range e.cfg.MaxAttempts {
		dx, dy := archimedean(aspect, t)
		t += dt
		if math.Min(math.Abs(dx), math.Abs(dy)) >= maxDelta {
			return false
		}

		p.X, p.Y = dx, dy
		b := p.Bounds(0)
		if b.MinX < -halfW || b.MaxX > halfW || b.MinY < -halfH || b.MaxY > halfH {
			continue
		}
		if collides(p.Bounds(e.cfg.Padding), boxes) {
			continue
		}
		return true
	}
	return false
}

// archimedean returns the spiral point for step t, stretched horizontally by
// the canvas aspect ratio.
func archimedean(aspect, t float64) (float64, float64) {
	t *= 0.1
	return aspect * t * math.Cos(t), t * math.Sin(t)
}

func collides(b Rect, boxes []Rect) bool {
	for _, o := range boxes {
		if b.Intersects(o) {
			return true
		}
	}
	return false
}
