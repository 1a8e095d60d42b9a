package font

import (
	"image"
	"image/color"
	"image/draw"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// builtinFamily is the family name reported by the fallback face.
const builtinFamily = "builtin"

var blackSource = image.NewUniform(color.Black)

// builtinMetrics returns the fallback metrics: a conventional 80/20
// ascent/descent split of the em with no extra gap, so the natural
// line height equals the face size exactly.
func builtinMetrics(size float64) Metrics {
	return Metrics{Ascent: 0.8 * size, Descent: 0.2 * size}
}

// builtinAdvance sums a fixed per-rune width table scaled by size.
// The table is coarse on purpose: layout produced with it is stable
// across platforms and monotonic in the face size, which is what the
// layout tests depend on.
func builtinAdvance(text string, size float64) float64 {
	var w float64
	for _, r := range text {
		w += builtinRuneWidth(r)
	}
	return w * size
}

func builtinRuneWidth(r rune) float64 {
	switch r {
	case ' ':
		return 0.25
	case 'i', 'j', 'l', 'I', '.', ',', '\'', '`', '!', ':', ';', '|':
		return 0.30
	case 'm', 'w', 'M', 'W':
		return 0.85
	case '\t':
		return 1.0
	}
	// East Asian ranges and everything above them (including the
	// object replacement placeholder) take a full em.
	if r >= 0x2E80 {
		return 1.0
	}
	return 0.5
}

// builtinDraw renders text with the fixed 7x13 bitmap face. Glyph
// shapes do not scale with the face size; positions still follow the
// caller's baseline, which keeps emulator output legible and tests
// independent of installed fonts.
func builtinDraw(dst draw.Image, x, y float64, text string) {
	d := &xfont.Drawer{
		Dst:  dst,
		Src:  blackSource,
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)},
	}
	d.DrawString(text)
}
