// Package reflow paginates the continuous content stream of a
// reflowable document into logical pages. Pagination is a pure
// function of the content and the layout parameters: the same inputs
// always produce the same page sequence, so saved reading positions
// and cached renders stay valid across runs.
//
// The engine measures text through the Measurer capability rather than
// a concrete font type, and never cuts inside a wrapped line: pages
// begin and end at line boundaries.
package reflow

import (
	"errors"
	"fmt"

	"github.com/OGKevin/plato/document"
)

// ErrMeasurement indicates that text measurement failed while laying
// out content. Callers keep the previous valid layout when they see it.
var ErrMeasurement = errors.New("reflow: text measurement failed")

// Measurer is the text measurement capability the engine depends on.
// *font.Face satisfies it. Advances are in pixels at the base text
// size; the engine derives heading sizes by scaling.
type Measurer interface {
	// Advance returns the advance width of the text in pixels.
	Advance(text string) (float64, error)

	// LineHeight returns the natural baseline-to-baseline distance.
	LineHeight() float64

	// Ascent returns the baseline-to-top distance.
	Ascent() float64
}

// Line is one laid-out line: a byte range of the content stream plus
// its geometry. FontSize is the size the line must be drawn at, which
// differs from the base size for headings.
type Line struct {
	Start, End  int
	Width       float64
	Height      float64
	FontSize    float64
	Kind        document.BlockKind
	Level       int
	BreakBefore bool
}

// HeadingScale returns the factor applied to the base font size for a
// heading of the given depth.
func HeadingScale(level int) float64 {
	switch level {
	case 1:
		return 1.6
	case 2:
		return 1.4
	case 3:
		return 1.25
	default:
		return 1.1
	}
}

// imageEms is the height, in multiples of the base line height, that
// an embedded image placeholder reserves. On small viewports this can
// exceed a page, in which case the placeholder gets a page to itself.
const imageEms = 8.0

// Layout lays out the whole content stream as a flat line sequence.
// Lines appear in stream order; within a block they tile the block's
// text, and the first line of a block carries its BreakBefore flag.
func Layout(c *document.Content, m Measurer, params document.LayoutParams) ([]Line, error) {
	size := params.Rotated().ContentSize()
	var lines []Line
	for i := range c.Blocks {
		blockLines, err := layoutBlock(c, i, m, params, size.Width)
		if err != nil {
			return nil, err
		}
		lines = append(lines, blockLines...)
	}
	return lines, nil
}

// LayoutRange lays out only the lines whose range starts inside
// [start, end). For a range produced by Paginate this reproduces
// exactly the lines of that page, because layout is deterministic.
func LayoutRange(c *document.Content, start, end int, m Measurer, params document.LayoutParams) ([]Line, error) {
	if start > end {
		return nil, fmt.Errorf("reflow: inverted range [%d:%d)", start, end)
	}
	size := params.Rotated().ContentSize()

	var lines []Line
	for i := range c.Blocks {
		b := c.Blocks[i]
		if b.End <= start || b.Start >= end {
			continue
		}
		blockLines, err := layoutBlock(c, i, m, params, size.Width)
		if err != nil {
			return nil, err
		}
		for _, ln := range blockLines {
			if ln.Start >= start && ln.Start < end {
				lines = append(lines, ln)
			}
		}
	}
	return lines, nil
}

// layoutBlock wraps one block into lines with global offsets.
func layoutBlock(c *document.Content, i int, m Measurer, params document.LayoutParams, maxWidth float64) ([]Line, error) {
	b := c.Blocks[i]
	text := c.BlockText(i)

	baseLine := m.LineHeight() * params.LineHeight

	switch b.Kind {
	case document.ImageRef:
		return []Line{{
			Start:       b.Start,
			End:         b.Start + len(text),
			Width:       maxWidth,
			Height:      baseLine * imageEms,
			FontSize:    params.FontSize,
			Kind:        b.Kind,
			BreakBefore: b.Flags&document.BreakBefore != 0,
		}}, nil

	case document.Rule:
		return []Line{{
			Start:       b.Start,
			End:         b.Start + len(text),
			Width:       maxWidth,
			Height:      baseLine,
			FontSize:    params.FontSize,
			Kind:        b.Kind,
			BreakBefore: b.Flags&document.BreakBefore != 0,
		}}, nil
	}

	scale := 1.0
	if b.Kind == document.Heading {
		scale = HeadingScale(b.Level)
	}

	// A heading scaled by s fits in width w exactly when the base-size
	// text fits in w/s, so one measurer serves every block kind.
	spans, err := wrap(text, m, maxWidth/scale)
	if err != nil {
		return nil, fmt.Errorf("%w: block %d: %v", ErrMeasurement, i, err)
	}

	lines := make([]Line, len(spans))
	for j, sp := range spans {
		lines[j] = Line{
			Start:    b.Start + sp.start,
			End:      b.Start + sp.end,
			Width:    sp.width * scale,
			Height:   baseLine * scale,
			FontSize: params.FontSize * scale,
			Kind:     b.Kind,
			Level:    b.Level,
		}
	}
	lines[0].BreakBefore = b.Flags&document.BreakBefore != 0
	return lines, nil
}

// Paginate computes the page map of a content stream under the given
// layout parameters. The resulting pages tile [0, len(Text)): every
// byte of the stream belongs to exactly one page, and no page begins
// or ends inside a line. An empty stream yields a single empty page.
func Paginate(c *document.Content, m Measurer, params document.LayoutParams) (*PageMap, error) {
	fp := params.Fingerprint()

	lines, err := Layout(c, m, params)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return &PageMap{
			pages:  []document.LogicalPage{{Start: 0, End: c.Len()}},
			params: fp,
		}, nil
	}

	maxHeight := params.Rotated().ContentSize().Height

	var pages []document.LogicalPage
	pageStart := 0
	used := 0.0
	empty := true

	cut := func(at int) {
		pages = append(pages, document.LogicalPage{Start: pageStart, End: at})
		pageStart = at
		used = 0
		empty = true
	}

	for _, ln := range lines {
		if !empty && (ln.BreakBefore || used+ln.Height > maxHeight) {
			cut(ln.Start)
		}
		// A line taller than the page stands alone: it is placed on
		// its own (empty) page and the next line forces a cut.
		used += ln.Height
		empty = false
	}
	pages = append(pages, document.LogicalPage{Start: pageStart, End: c.Len()})

	return &PageMap{pages: pages, params: fp}, nil
}
