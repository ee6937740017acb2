package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/AnechkaShv/notecloud/internal/layout"
	"github.com/AnechkaShv/notecloud/internal/metrics"
	"github.com/AnechkaShv/notecloud/internal/pngopt"
	"github.com/AnechkaShv/notecloud/internal/render"
	"github.com/AnechkaShv/notecloud/internal/textnorm"
	"github.com/AnechkaShv/notecloud/internal/wordfreq"
)

// ContentSource returns the rich text body of a note.
type ContentSource interface {
	NoteContent(ctx context.Context, id string) (string, error)
}

// Drawer turns a frequency table into an encoded PNG and reports how many
// words it placed.
type Drawer interface {
	Draw(table wordfreq.Table) ([]byte, int, error)
}

// SpiralDrawer lays words out on a spiral and rasterizes them.
type SpiralDrawer struct {
	Engine   *layout.Engine
	Renderer *render.Renderer
}

func (d SpiralDrawer) Draw(table wordfreq.Table) ([]byte, int, error) {
	placements := d.Engine.Layout(table, nil)
	b, err := d.Renderer.Render(placements)
	return b, len(placements), err
}

// CloudDrawer delegates layout and rasterization to the wordclouds library,
// which does not report dropped words.
type CloudDrawer struct {
	Cloud *render.Cloud
}

func (d CloudDrawer) Draw(table wordfreq.Table) ([]byte, int, error) {
	b, err := d.Cloud.Render(table)
	return b, len(table), err
}

// WordCloudGenerator produces the word cloud PNG of a note.
type WordCloudGenerator struct {
	content   ContentSource
	extractor *wordfreq.Extractor
	drawer    Drawer
	optimize  func([]byte) ([]byte, error)
	strict    bool
	metrics   *metrics.Metrics
}

func NewWordCloudGenerator(content ContentSource, extractor *wordfreq.Extractor, drawer Drawer, strict bool, m *metrics.Metrics) *WordCloudGenerator {
	return &WordCloudGenerator{
		content:   content,
		extractor: extractor,
		drawer:    drawer,
		optimize:  pngopt.Optimize,
		strict:    strict,
		metrics:   m,
	}
}

// Generate fetches note id and renders its word cloud. It has the
// imagecache.Generator signature.
func (g *WordCloudGenerator) Generate(ctx context.Context, id string) ([]byte, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("note", id)
	start := time.Now()

	html, err := g.content.NoteContent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch note: %w", err)
	}
	table := g.extractor.Extract(textnorm.ToText(html))

	img, placed, err := g.drawer.Draw(table)
	if err != nil {
		return nil, fmt.Errorf("draw word cloud: %w", err)
	}
	g.metrics.Dropped(len(table) - placed)
	log.Info("Generated word cloud", "words", len(table), "placed", placed, "bytes", len(img))

	optimized, err := g.optimize(img)
	if err != nil {
		if g.strict {
			return nil, fmt.Errorf("optimize png: %w", err)
		}
		g.metrics.OptimizeFallback()
		log.Error(err, "PNG optimization failed, keeping the unoptimized image")
		return img, nil
	}
	log.Info("Optimized word cloud", "bytes", len(optimized), "duration", time.Since(start))
	return optimized, nil
}
