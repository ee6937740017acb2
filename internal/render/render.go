// Package render rasterizes word placements into PNG images.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"

	"github.com/fogleman/gg"

	"github.com/AnechkaShv/notecloud/internal/fonts"
	"github.com/AnechkaShv/notecloud/internal/layout"
)

// Category10 is the ten-color categorical palette words cycle through in
// placement order.
var Category10 = []color.Color{
	color.RGBA{0x1f, 0x77, 0xb4, 0xff},
	color.RGBA{0xff, 0x7f, 0x0e, 0xff},
	color.RGBA{0x2c, 0xa0, 0x2c, 0xff},
	color.RGBA{0xd6, 0x27, 0x28, 0xff},
	color.RGBA{0x94, 0x67, 0xbd, 0xff},
	color.RGBA{0x8c, 0x56, 0x4b, 0xff},
	color.RGBA{0xe3, 0x77, 0xc2, 0xff},
	color.RGBA{0x7f, 0x7f, 0x7f, 0xff},
	color.RGBA{0xbc, 0xbd, 0x22, 0xff},
	color.RGBA{0x17, 0xbe, 0xcf, 0xff},
}

// Renderer draws placements on a transparent canvas.
type Renderer struct {
	font          *fonts.Font
	width, height int
	palette       []color.Color
}

// New returns a Renderer for a width x height canvas.
func New(f *fonts.Font, width, height int) (*Renderer, error) {
	if f == nil {
		return nil, errors.New("render: nil font")
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("render: canvas must be positive, got %dx%d", width, height)
	}
	return &Renderer{font: f, width: width, height: height, palette: Category10}, nil
}

// Render draws each placement inside its layout box, rotated by its angle
// about the box center, and returns the canvas encoded as PNG.
func (r *Renderer) Render(placements []layout.Placement) ([]byte, error) {
	dc := gg.NewContext(r.width, r.height)
	cx, cy := float64(r.width)/2, float64(r.height)/2

	for i, p := range placements {
		face := r.font.Face(p.Size)
		// The box is ascent+descent tall, so the baseline sits one ascent
		// below its top edge.
		ascent := float64(face.Metrics().Ascent) / 64
		dc.SetFontFace(face)
		dc.SetColor(r.palette[i%len(r.palette)])
		dc.Push()
		dc.Translate(cx+p.X, cy+p.Y)
		dc.Rotate(gg.Radians(float64(p.Rotate)))
		dc.DrawString(p.Text, -p.W/2, -p.H/2+ascent)
		dc.Pop()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
