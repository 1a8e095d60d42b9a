// Package render turns resolved page references into viewport-sized
// frames and caches them. The rasterizer applies the transforms codecs
// do not do natively (crop, zoom scaling, rotation, centering); the
// cache memoizes frames under a byte budget with LRU eviction and
// drives background prefetch.
package render

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/internal/raster"
)

// Rasterize renders ref through the codec and composes the result onto
// a canvas of exactly params.Width by params.Height pixels. Fixed and
// image pages are cropped to params.Crop, scaled per the zoom mode and
// centered; reflowable pages already arrive laid out for the effective
// viewport. Rotation is applied last so the output always matches the
// device orientation.
func Rasterize(doc document.Document, ref document.PageRef, params document.LayoutParams) (*image.Gray, error) {
	if params.Width < 1 || params.Height < 1 {
		return nil, fmt.Errorf("%w: viewport %dx%d", ErrDimensionMismatch, params.Width, params.Height)
	}

	page, err := doc.Render(ref, params)
	if err != nil {
		return nil, err
	}

	eff := params.Rotated()
	var out *image.Gray
	switch doc.Format().Kind() {
	case document.Reflowable:
		if page.Bounds().Dx() != eff.Width || page.Bounds().Dy() != eff.Height {
			return nil, fmt.Errorf("%w: codec produced %dx%d for a %dx%d layout",
				ErrDimensionMismatch, page.Bounds().Dx(), page.Bounds().Dy(), eff.Width, eff.Height)
		}
		out = raster.Rotate(page, params.Rotation)
	default:
		canvas := image.NewGray(image.Rect(0, 0, eff.Width, eff.Height))
		draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

		sr := cropRect(page.Bounds(), params.Crop)
		dr := scaleRect(sr, eff)
		xdraw.BiLinear.Scale(canvas, dr, page, sr, xdraw.Src, nil)
		out = raster.Rotate(canvas, params.Rotation)
	}

	if out.Bounds().Dx() != params.Width || out.Bounds().Dy() != params.Height {
		return nil, fmt.Errorf("%w: composed %dx%d, viewport %dx%d",
			ErrDimensionMismatch, out.Bounds().Dx(), out.Bounds().Dy(), params.Width, params.Height)
	}
	return out, nil
}

// cropRect resolves the normalized crop box against the page bounds. A
// zero or fully out-of-range crop selects the whole page.
func cropRect(b image.Rectangle, c geom.BBox) image.Rectangle {
	if c.IsEmpty() {
		return b
	}
	w, h := float64(b.Dx()), float64(b.Dy())
	r := image.Rect(
		b.Min.X+int(c.X*w+0.5),
		b.Min.Y+int(c.Y*h+0.5),
		b.Min.X+int((c.X+c.Width)*w+0.5),
		b.Min.Y+int((c.Y+c.Height)*h+0.5),
	).Intersect(b)
	if r.Empty() {
		return b
	}
	return r
}

// scaleRect places the source rectangle inside the effective viewport
// according to the zoom mode. The result may extend past the viewport;
// the scaler clips while drawing.
func scaleRect(src image.Rectangle, eff document.LayoutParams) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())

	var scale float64
	switch eff.Zoom {
	case document.ZoomFitPage:
		scale = math.Min(float64(eff.Width)/sw, float64(eff.Height)/sh)
	case document.ZoomCustom:
		scale = eff.Scale
		if scale <= 0 {
			scale = 1
		}
	default:
		scale = float64(eff.Width) / sw
	}

	dw := int(sw*scale + 0.5)
	dh := int(sh*scale + 0.5)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	ox := (eff.Width - dw) / 2
	oy := (eff.Height - dh) / 2
	if eff.Zoom == document.ZoomFitWidth && oy < 0 {
		// Fit-to-width keeps the top edge and crops the excess below.
		oy = 0
	}
	return image.Rect(ox, oy, ox+dw, oy+dh)
}
