package render

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"

	"github.com/psykhi/wordclouds"

	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

// Cloud renders a frequency table in one step with the wordclouds packer.
// It ignores rotation and padding settings and needs a font file on disk.
type Cloud struct {
	fontPath string
	cfg      layout.Config
}

// NewCloud returns a Cloud using the font at fontPath.
func NewCloud(fontPath string, cfg layout.Config) (*Cloud, error) {
	if fontPath == "" {
		return nil, errors.New("render: the wordclouds engine needs a font file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return &Cloud{fontPath: fontPath, cfg: cfg}, nil
}

// Render packs and draws table, returning PNG bytes.
func (c *Cloud) Render(table wordfreq.Table) (out []byte, err error) {
	// wordclouds panics when the font cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wordclouds: %v", r)
		}
	}()

	wc := wordclouds.NewWordcloud(table.Counts(),
		wordclouds.FontFile(c.fontPath),
		wordclouds.Width(c.cfg.Width),
		wordclouds.Height(c.cfg.Height),
		wordclouds.FontMaxSize(int(c.cfg.FontMax)),
		wordclouds.FontMinSize(int(c.cfg.FontMin)),
		wordclouds.Colors(Category10),
		wordclouds.BackgroundColor(color.Transparent),
	)

	var buf bytes.Buffer
	if err := png.Encode(&buf, wc.Draw()); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
