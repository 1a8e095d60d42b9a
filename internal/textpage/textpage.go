// Package textpage typesets content streams onto grayscale pages. It is
// the shared rendering path of the reflowable codecs: a codec resolves a
// page reference to a content range, and textpage lays the range out
// and draws it at the effective viewport size.
package textpage

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/reflow"
)

// Measurer adapts a library face to the layout engine's measurement
// interface. The face is resolved once from the params typography.
func Measurer(lib *font.Library, params document.LayoutParams) reflow.Measurer {
	return faceMeasurer{face: lib.Face(params.FontFamily, params.FontSize)}
}

type faceMeasurer struct {
	face *font.Face
}

func (m faceMeasurer) Advance(text string) (float64, error) { return m.face.Advance(text) }
func (m faceMeasurer) LineHeight() float64                  { return m.face.LineHeight() }
func (m faceMeasurer) Ascent() float64                      { return m.face.Ascent() }

// Range validates a content-range reference against the stream and
// returns its bounds. Physical page references are rejected: reflowable
// pages exist only as ranges produced by pagination.
func Range(ref document.PageRef, c *document.Content) (start, end int, err error) {
	if !ref.IsRange() {
		return 0, 0, fmt.Errorf("%w: %v on a reflowable document", document.ErrPageRange, ref)
	}
	if ref.Start < 0 || ref.End < ref.Start || ref.End > c.Len() {
		return 0, 0, fmt.Errorf("%w: %v outside content [0:%d)", document.ErrPageRange, ref, c.Len())
	}
	return ref.Start, ref.End, nil
}

// Render typesets the content range onto a white page sized to the
// effective (rotation-swapped) viewport. Lines are laid out exactly as
// pagination laid them out, so a range produced by Paginate fills at
// most one page.
func Render(c *document.Content, start, end int, lib *font.Library, params document.LayoutParams) (*image.Gray, error) {
	lines, err := reflow.LayoutRange(c, start, end, Measurer(lib, params), params)
	if err != nil {
		return nil, err
	}

	eff := params.Rotated()
	img := image.NewGray(image.Rect(0, 0, eff.Width, eff.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	margin := float64(eff.MarginWidth)
	width := eff.ContentSize().Width
	y := margin
	for _, ln := range lines {
		drawLine(img, c, ln, lib, eff.FontFamily, margin, y, width)
		y += ln.Height
	}
	return img, nil
}

// Text returns one positioned run per laid-out text line of the range,
// in reading order, with boxes in effective viewport pixels.
func Text(c *document.Content, start, end int, lib *font.Library, params document.LayoutParams) ([]document.BoundedText, error) {
	lines, err := reflow.LayoutRange(c, start, end, Measurer(lib, params), params)
	if err != nil {
		return nil, err
	}

	margin := float64(params.Rotated().MarginWidth)
	runs := make([]document.BoundedText, 0, len(lines))
	y := margin
	for _, ln := range lines {
		if ln.Kind != document.ImageRef && ln.Kind != document.Rule {
			runs = append(runs, document.BoundedText{
				Text:  c.Text[ln.Start:ln.End],
				Box:   geom.NewBBox(margin, y, ln.Width, ln.Height),
				Start: ln.Start,
				End:   ln.End,
			})
		}
		y += ln.Height
	}
	return runs, nil
}

func drawLine(dst *image.Gray, c *document.Content, ln reflow.Line, lib *font.Library, family string, x, y, width float64) {
	switch ln.Kind {
	case document.ImageRef:
		drawPlaceholder(dst, x, y, width, ln.Height)
	case document.Rule:
		drawRule(dst, x, y+ln.Height/2, width)
	default:
		face := lib.Face(family, ln.FontSize)
		// Center the natural line box inside the (possibly taller)
		// layout box, then drop to the baseline.
		baseline := y + (ln.Height-face.LineHeight())/2 + face.Ascent()
		face.Draw(dst, x, baseline, c.Text[ln.Start:ln.End])
	}
}

// drawPlaceholder frames the area reserved for an image that is not
// rasterized inline.
func drawPlaceholder(dst *image.Gray, x, y, w, h float64) {
	const inset = 2
	x0, y0 := int(x)+inset, int(y)+inset
	x1, y1 := int(x+w)-inset, int(y+h)-inset
	if x1-x0 < 2 || y1-y0 < 2 {
		return
	}
	border := color.Gray{Y: 0x60}
	for px := x0; px < x1; px++ {
		dst.SetGray(px, y0, border)
		dst.SetGray(px, y1-1, border)
	}
	for py := y0; py < y1; py++ {
		dst.SetGray(x0, py, border)
		dst.SetGray(x1-1, py, border)
	}
}

func drawRule(dst *image.Gray, x, y, w float64) {
	line := color.Gray{Y: 0x40}
	for px := int(x); px < int(x+w); px++ {
		dst.SetGray(px, int(y), line)
	}
}
