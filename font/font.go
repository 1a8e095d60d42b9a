// Package font provides the text measurement and drawing capability the
// layout engine and rasterizer depend on. A Library owns parsed font
// files and hands out lightweight Faces bound to a family and pixel
// size. Measurement goes through HarfBuzz shaping (go-text/typesetting)
// so advances include kerning and ligatures; drawing goes through
// x/image's opentype rasterizer.
//
// A Library with no loaded fonts still works: it falls back to a
// deterministic built-in face with a fixed advance table, so layout is
// reproducible on systems without font files. Tests rely on this.
package font

import (
	"image/draw"
)

// Metrics holds face metrics at a specific pixel size. Ascent and
// Descent are positive distances from the baseline.
type Metrics struct {
	Ascent  float64
	Descent float64
	LineGap float64
}

// LineHeight returns the natural baseline-to-baseline distance,
// ascent + descent + line gap.
func (m Metrics) LineHeight() float64 {
	return m.Ascent + m.Descent + m.LineGap
}

// Face measures and draws text of one family at one pixel size. Faces
// are cheap values; the heavy parsed font lives in the Library. A Face
// is safe for concurrent use.
type Face struct {
	lib    *Library
	src    *source // nil for the built-in fallback
	family string
	size   float64
}

// Family returns the resolved family name, which may differ from the
// requested one when the library fell back.
func (f *Face) Family() string { return f.family }

// Size returns the face size in pixels.
func (f *Face) Size() float64 { return f.size }

// Builtin reports whether the face is the deterministic fallback
// rather than a loaded font file.
func (f *Face) Builtin() bool { return f.src == nil }

// Metrics returns the face metrics at the face size.
func (f *Face) Metrics() Metrics {
	if f.src == nil {
		return builtinMetrics(f.size)
	}
	return f.src.metrics(f.size)
}

// LineHeight returns the natural baseline-to-baseline distance in
// pixels.
func (f *Face) LineHeight() float64 { return f.Metrics().LineHeight() }

// Ascent returns the baseline-to-top distance in pixels.
func (f *Face) Ascent() float64 { return f.Metrics().Ascent }

// Advance returns the advance width of the text in pixels. Loaded
// faces shape the whole string, so kerning and ligatures are included;
// the built-in face sums a fixed per-rune table.
func (f *Face) Advance(text string) (float64, error) {
	if text == "" {
		return 0, nil
	}
	if f.src == nil {
		return builtinAdvance(text, f.size), nil
	}
	return f.lib.shapeAdvance(f.src, f.size, text)
}

// Draw renders the text onto dst with the baseline starting at (x, y),
// drawn in black. The destination is typically an 8-bit grayscale page.
func (f *Face) Draw(dst draw.Image, x, y float64, text string) {
	if text == "" {
		return
	}
	if f.src == nil {
		builtinDraw(dst, x, y, text)
		return
	}
	f.src.draw(dst, x, y, f.size, text)
}
