package pdfdoc

import (
	"sort"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
)

// Clustering tolerances in points. Glyphs whose baselines sit within
// yTolerance share a line; a horizontal gap above xTolerance, or
// nearly a third of the glyph's own width, starts a new word.
const (
	xTolerance = 3.0
	yTolerance = 3.0
)

// groupWords clusters raw text items into word runs with boxes in the
// page's display orientation. Offsets are -1 since fixed-layout text
// has no content stream behind it.
func groupWords(items []lpdf.Text, info pageInfo) []document.BoundedText {
	glyphs := make([]lpdf.Text, 0, len(items))
	for _, it := range items {
		if it.S == "" {
			continue
		}
		glyphs = append(glyphs, it)
	}
	if len(glyphs) == 0 {
		return nil
	}

	// Reading order: PDF Y grows upward, so the top line has the
	// largest baseline Y.
	sort.SliceStable(glyphs, func(i, j int) bool {
		if diff := glyphs[i].Y - glyphs[j].Y; diff > yTolerance || diff < -yTolerance {
			return glyphs[i].Y > glyphs[j].Y
		}
		return glyphs[i].X < glyphs[j].X
	})

	var (
		runs []document.BoundedText
		w    wordRun
	)
	flush := func() {
		if run, ok := w.finish(info); ok {
			runs = append(runs, run)
		}
		w = wordRun{}
	}

	lineY := glyphs[0].Y
	for _, g := range glyphs {
		if diff := g.Y - lineY; diff > yTolerance || diff < -yTolerance {
			flush()
			lineY = g.Y
		}
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		if !w.empty() {
			gap := g.X - w.endX
			if gap > xTolerance || gap > advance(g)*0.3 {
				flush()
			}
		}
		w.add(g)
	}
	flush()
	return runs
}

// wordRun accumulates adjacent glyphs of one word.
type wordRun struct {
	text     strings.Builder
	startX   float64
	endX     float64
	baseline float64
	size     float64
}

func (w *wordRun) empty() bool { return w.text.Len() == 0 }

func (w *wordRun) add(g lpdf.Text) {
	if w.empty() {
		w.startX = g.X
		w.baseline = g.Y
	}
	w.text.WriteString(g.S)
	w.endX = g.X + advance(g)
	if g.FontSize > w.size {
		w.size = g.FontSize
	}
}

func (w *wordRun) finish(info pageInfo) (document.BoundedText, bool) {
	if w.empty() {
		return document.BoundedText{}, false
	}
	height := w.size
	if height <= 0 {
		height = 1
	}
	// Flip to top-left origin. The box top sits an ascent (taken as
	// 0.8 of the size) above the baseline.
	box := geom.NewBBox(w.startX, info.size.Height-(w.baseline+height*0.8), w.endX-w.startX, height)
	return document.BoundedText{
		Text:  w.text.String(),
		Box:   rotateBox(box, info.rotate, info.size),
		Start: -1,
		End:   -1,
	}, true
}

// advance is the horizontal space a glyph occupies. Some producers
// zero the width entry; estimate from the font size then.
func advance(g lpdf.Text) float64 {
	if g.W > 0 {
		return g.W
	}
	return g.FontSize * 0.5 * float64(utf8.RuneCountInString(g.S))
}

// rotateBox maps a box from the natural page frame into the displayed
// frame, mirroring how raster.Rotate maps pixels.
func rotateBox(b geom.BBox, rot geom.Rotation, size geom.Size) geom.BBox {
	switch rot.Normalize() {
	case geom.Rotate90:
		return geom.NewBBox(size.Height-b.Y-b.Height, b.X, b.Height, b.Width)
	case geom.Rotate180:
		return geom.NewBBox(size.Width-b.X-b.Width, size.Height-b.Y-b.Height, b.Width, b.Height)
	case geom.Rotate270:
		return geom.NewBBox(b.Y, size.Width-b.X-b.Width, b.Height, b.Width)
	}
	return b
}
