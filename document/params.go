package document

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/OGKevin/plato/geom"
)

// ZoomMode selects how a fixed-layout page is scaled into the viewport.
type ZoomMode int

const (
	// ZoomFitWidth scales the page so its width fills the viewport
	// width; excess height is cropped at the bottom edge.
	ZoomFitWidth ZoomMode = iota
	// ZoomFitPage scales the page so it is fully visible, centered on
	// the unused axis.
	ZoomFitPage
	// ZoomCustom applies LayoutParams.Scale directly.
	ZoomCustom
)

// String returns the zoom mode name used in settings and logs.
func (z ZoomMode) String() string {
	switch z {
	case ZoomFitPage:
		return "fit-page"
	case ZoomCustom:
		return "custom"
	default:
		return "fit-width"
	}
}

// LayoutParams is an immutable snapshot of everything that affects how
// a page is laid out and rasterized: the device viewport, rotation,
// scaling of fixed pages, and the typography of reflowable content.
// Values are copied, never mutated; two snapshots with equal fields
// have equal fingerprints.
type LayoutParams struct {
	// Width and Height are the device viewport in pixels, before
	// rotation is applied.
	Width, Height int

	// Rotation turns the rendered page clockwise in degrees.
	Rotation geom.Rotation

	// Zoom selects the scaling mode for fixed-layout pages, with
	// Scale supplying the factor for ZoomCustom.
	Zoom  ZoomMode
	Scale float64

	// Crop is a normalized sub-rectangle of a fixed page ((0,0)-(1,1)
	// space) rendered instead of the full page. The zero value crops
	// nothing.
	Crop geom.BBox

	// Typography for reflowable content. FontSize is in pixels,
	// LineHeight a multiplier of the face's natural line height,
	// MarginWidth the page margin in pixels on all four sides.
	FontFamily  string
	FontSize    float64
	LineHeight  float64
	MarginWidth int
}

// DefaultLayoutParams returns layout parameters for a viewport at the
// given pixel density with the reader's standard typography: an 11 pt
// serif face, 1.2 line height, 8 mm margins, fit-to-width scaling.
func DefaultLayoutParams(width, height int, dpi float64) LayoutParams {
	return LayoutParams{
		Width:       width,
		Height:      height,
		Zoom:        ZoomFitWidth,
		FontFamily:  "Libertinus Serif",
		FontSize:    11 * dpi / 72,
		LineHeight:  1.2,
		MarginWidth: int(8*dpi/25.4 + 0.5),
	}
}

// Rotated returns the snapshot with the viewport swapped to the
// orientation the page is actually laid out in. For 90 and 270 degree
// rotations width and height trade places; otherwise the receiver is
// returned unchanged.
func (p LayoutParams) Rotated() LayoutParams {
	if !p.Rotation.Swaps() {
		return p
	}
	p.Width, p.Height = p.Height, p.Width
	return p
}

// ContentSize returns the area available to reflowed content: the
// viewport minus margins, clamped to at least one pixel per axis.
func (p LayoutParams) ContentSize() geom.Size {
	w := p.Width - 2*p.MarginWidth
	h := p.Height - 2*p.MarginWidth
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return geom.Size{Width: float64(w), Height: float64(h)}
}

// Fingerprint returns a stable hash of the snapshot, used to key
// render cache entries and page maps. Equal parameters always produce
// equal fingerprints.
func (p LayoutParams) Fingerprint() uint64 {
	h := fnv.New64a()
	var buf [8]byte

	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}

	writeInt(p.Width)
	writeInt(p.Height)
	writeInt(int(p.Rotation.Normalize()))
	writeInt(int(p.Zoom))
	writeFloat(p.Scale)
	writeFloat(p.Crop.X)
	writeFloat(p.Crop.Y)
	writeFloat(p.Crop.Width)
	writeFloat(p.Crop.Height)
	h.Write([]byte(p.FontFamily))
	h.Write([]byte{0})
	writeFloat(p.FontSize)
	writeFloat(p.LineHeight)
	writeInt(p.MarginWidth)

	return h.Sum64()
}
