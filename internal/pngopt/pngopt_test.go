package pngopt

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnechkaShv/notecloud/internal/fonts"
	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/render"
)

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&buf, img))
	return buf.Bytes()
}

// assertSamePixels compares premultiplied values, which is what a viewer sees.
func assertSamePixels(t *testing.T, want, got []byte) {
	t.Helper()
	a, err := png.Decode(bytes.NewReader(want))
	require.NoError(t, err)
	b, err := png.Decode(bytes.NewReader(got))
	require.NoError(t, err)
	require.Equal(t, a.Bounds(), b.Bounds())

	r := a.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			r1, g1, b1, a1 := a.At(x, y).RGBA()
			r2, g2, b2, a2 := b.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
				t.Fatalf("pixel (%d,%d) differs: %v vs %v", x, y, a.At(x, y), b.At(x, y))
			}
		}
	}
}

func TestOptimizeFewColors(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 64, 32))
	for y := range 32 {
		for x := range 64 {
			img.SetNRGBA(x, y, color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: uint8(x * 4)})
		}
	}
	src := encode(t, img)

	out, err := Optimize(src)
	require.NoError(t, err)
	assert.Less(t, len(out), len(src))
	assertSamePixels(t, src, out)
}

func TestToPaletted(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 1))
	for x := range 20 {
		img.SetNRGBA(x, 0, color.NRGBA{R: uint8(x % 3), A: 0xff})
	}
	p, ok := toPaletted(img)
	require.True(t, ok)
	assert.Len(t, p.Palette, 3)

	wide := image.NewNRGBA(image.Rect(0, 0, 300, 1))
	for x := range 300 {
		wide.SetNRGBA(x, 0, color.NRGBA{R: uint8(x), G: uint8(x >> 8), A: 0xff})
	}
	_, ok = toPaletted(wide)
	assert.False(t, ok)
}

func TestOptimizeManyColors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 0x80, A: 0xff})
		}
	}
	src := encode(t, img)

	out, err := Optimize(src)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), len(src))
	assertSamePixels(t, src, out)
}

func TestOptimizeNeverGrows(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	var buf bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(&buf, img))

	out, err := Optimize(buf.Bytes())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), buf.Len())
}

func TestOptimizeRenderedCloud(t *testing.T) {
	f, err := fonts.Load("")
	require.NoError(t, err)
	r, err := render.New(f, 420, 180)
	require.NoError(t, err)
	src, err := r.Render([]layout.Placement{
		{Text: "gopher", Size: 50},
		{Text: "cloud", X: 0, Y: 60, Size: 24},
		{Text: "png", X: 150, Size: 30, Rotate: 90},
	})
	require.NoError(t, err)

	out, err := Optimize(src)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), len(src))
	assertSamePixels(t, src, out)
}

func TestOptimizeRejectsGarbage(t *testing.T) {
	_, err := Optimize([]byte("definitely not a png"))
	assert.Error(t, err)
}
