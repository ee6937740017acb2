// Package pngopt shrinks PNG buffers without changing a single pixel.
//
// The image is decoded and re-encoded at best compression. Images with at most
// 256 distinct colors (alpha included) are written as paletted PNGs. The
// smallest of the candidates and the input is returned.
package pngopt

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

const maxPalette = 256

// Optimize returns the smallest lossless encoding of src it can find.
func Optimize(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}

	best := src
	enc := png.Encoder{CompressionLevel: png.BestCompression}

	candidates := []image.Image{img}
	if p, ok := toPaletted(img); ok {
		candidates = append(candidates, p)
	}
	for _, c := range candidates {
		var buf bytes.Buffer
		if err := enc.Encode(&buf, c); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		if buf.Len() < len(best) {
			best = buf.Bytes()
		}
	}
	return best, nil
}

// toPaletted converts img to a paletted image when it has few enough distinct
// non-premultiplied colors. Palette entries are color.NRGBA so the encoder
// writes them back unchanged.
func toPaletted(img image.Image) (*image.Paletted, bool) {
	if _, ok := img.(*image.Paletted); ok {
		return nil, false
	}

	b := img.Bounds()
	index := make(map[color.NRGBA]uint8, maxPalette)
	var pal color.Palette
	out := image.NewPaletted(b, nil)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				c = color.NRGBA{}
			}
			i, ok := index[c]
			if !ok {
				if len(pal) == maxPalette {
					return nil, false
				}
				i = uint8(len(pal))
				index[c] = i
				pal = append(pal, c)
			}
			out.SetColorIndex(x, y, i)
		}
	}
	out.Palette = pal
	return out, true
}
