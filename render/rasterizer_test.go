package render

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
)

// fakeDoc serves configurable pages so the compose pipeline can be
// exercised without a real codec.
type fakeDoc struct {
	format document.Format
	render func(ref document.PageRef, params document.LayoutParams) (*image.Gray, error)
}

func (d *fakeDoc) Format() document.Format     { return d.format }
func (d *fakeDoc) Fingerprint() uint64         { return 7 }
func (d *fakeDoc) PageCount() (int, error)     { return 1, nil }
func (d *fakeDoc) Metadata() document.Metadata { return document.Metadata{} }
func (d *fakeDoc) PageDims(int) (geom.Size, error) {
	return geom.Size{Width: 100, Height: 150}, nil
}
func (d *fakeDoc) Render(ref document.PageRef, p document.LayoutParams) (*image.Gray, error) {
	return d.render(ref, p)
}
func (d *fakeDoc) Text(document.PageRef, document.LayoutParams) ([]document.BoundedText, error) {
	return nil, nil
}
func (d *fakeDoc) Outline() ([]document.TocEntry, error) { return nil, nil }
func (d *fakeDoc) Close() error                          { return nil }

func flat(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func fixedDoc(page *image.Gray) *fakeDoc {
	return &fakeDoc{
		format: document.PDF,
		render: func(document.PageRef, document.LayoutParams) (*image.Gray, error) {
			return page, nil
		},
	}
}

func TestRasterizeFitWidthFillsViewport(t *testing.T) {
	doc := fixedDoc(flat(100, 150, 40))
	params := document.LayoutParams{Width: 200, Height: 300, Zoom: document.ZoomFitWidth}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 300 {
		t.Fatalf("bounds = %v, want 200x300", out.Bounds())
	}
	// 100x150 at scale 2 covers the viewport edge to edge.
	for _, pt := range []image.Point{{0, 0}, {199, 299}, {100, 150}} {
		if got := out.GrayAt(pt.X, pt.Y).Y; got != 40 {
			t.Errorf("pixel %v = %d, want 40", pt, got)
		}
	}
}

func TestRasterizeFitPageCenters(t *testing.T) {
	doc := fixedDoc(flat(100, 100, 40))
	params := document.LayoutParams{Width: 200, Height: 400, Zoom: document.ZoomFitPage}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if got := out.GrayAt(100, 200).Y; got != 40 {
		t.Errorf("center pixel = %d, want page gray 40", got)
	}
	if got := out.GrayAt(100, 50).Y; got != 255 {
		t.Errorf("pixel above the page = %d, want white", got)
	}
	if got := out.GrayAt(100, 350).Y; got != 255 {
		t.Errorf("pixel below the page = %d, want white", got)
	}
}

func TestRasterizeFitWidthKeepsTopEdge(t *testing.T) {
	// Top row darker than the rest: after scaling, the dark edge must
	// stay at the top and the overflow must be cut from the bottom.
	page := flat(100, 300, 40)
	for x := 0; x < 100; x++ {
		page.SetGray(x, 0, color.Gray{Y: 10})
	}
	doc := fixedDoc(page)
	params := document.LayoutParams{Width: 200, Height: 300, Zoom: document.ZoomFitWidth}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if out.Bounds().Dx() != 200 || out.Bounds().Dy() != 300 {
		t.Fatalf("bounds = %v, want 200x300", out.Bounds())
	}
	if got := out.GrayAt(100, 0).Y; got >= 40 {
		t.Errorf("top pixel = %d, want the dark source edge", got)
	}
	if got := out.GrayAt(100, 299).Y; got != 40 {
		t.Errorf("bottom pixel = %d, want interior gray 40", got)
	}
}

func TestRasterizeCustomZoom(t *testing.T) {
	doc := fixedDoc(flat(50, 50, 40))
	params := document.LayoutParams{Width: 200, Height: 200, Zoom: document.ZoomCustom, Scale: 2}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	// 100x100 page centered in the 200x200 viewport.
	if got := out.GrayAt(100, 100).Y; got != 40 {
		t.Errorf("center pixel = %d, want 40", got)
	}
	if got := out.GrayAt(10, 10).Y; got != 255 {
		t.Errorf("margin pixel = %d, want white", got)
	}
}

func TestRasterizeCrop(t *testing.T) {
	// Left half dark, right half light; crop selects the right half.
	page := flat(100, 100, 10)
	for y := 0; y < 100; y++ {
		for x := 50; x < 100; x++ {
			page.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	doc := fixedDoc(page)
	params := document.LayoutParams{
		Width: 100, Height: 100,
		Zoom: document.ZoomFitWidth,
		Crop: geom.NewBBox(0.5, 0, 0.5, 1),
	}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if got := out.GrayAt(50, 50).Y; got != 200 {
		t.Errorf("center pixel = %d, want the cropped right half (200)", got)
	}
}

func TestRasterizeRotation(t *testing.T) {
	page := flat(100, 150, 255)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			page.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	doc := fixedDoc(page)
	params := document.LayoutParams{
		Width: 300, Height: 200,
		Rotation: geom.Rotate90,
		Zoom:     document.ZoomFitWidth,
	}

	out, err := Rasterize(doc, document.PageIndex(0), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if out.Bounds().Dx() != 300 || out.Bounds().Dy() != 200 {
		t.Fatalf("bounds = %v, want the 300x200 device viewport", out.Bounds())
	}
	// The source corner lands at the top right after a clockwise turn.
	if got := out.GrayAt(299, 0).Y; got >= 128 {
		t.Errorf("rotated corner pixel = %d, want dark", got)
	}
}

func TestRasterizeReflowablePassthrough(t *testing.T) {
	doc := &fakeDoc{
		format: document.EPUB,
		render: func(_ document.PageRef, p document.LayoutParams) (*image.Gray, error) {
			eff := p.Rotated()
			return flat(eff.Width, eff.Height, 70), nil
		},
	}
	params := document.LayoutParams{Width: 100, Height: 80}

	out, err := Rasterize(doc, document.ContentRange(0, 10), params)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 80 {
		t.Errorf("bounds = %v, want 100x80", out.Bounds())
	}
	if got := out.GrayAt(50, 40).Y; got != 70 {
		t.Errorf("pixel = %d, want 70", got)
	}
}

func TestRasterizeReflowableWrongSize(t *testing.T) {
	doc := &fakeDoc{
		format: document.EPUB,
		render: func(document.PageRef, document.LayoutParams) (*image.Gray, error) {
			return flat(50, 50, 70), nil
		},
	}
	params := document.LayoutParams{Width: 100, Height: 80}

	if _, err := Rasterize(doc, document.ContentRange(0, 10), params); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Rasterize = %v, want ErrDimensionMismatch", err)
	}
}

func TestRasterizeZeroViewport(t *testing.T) {
	doc := fixedDoc(flat(10, 10, 40))

	if _, err := Rasterize(doc, document.PageIndex(0), document.LayoutParams{}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Rasterize = %v, want ErrDimensionMismatch", err)
	}
}

func TestRasterizeCodecErrorPassthrough(t *testing.T) {
	doc := &fakeDoc{
		format: document.PDF,
		render: func(document.PageRef, document.LayoutParams) (*image.Gray, error) {
			return nil, document.ErrDecode
		},
	}
	params := document.LayoutParams{Width: 10, Height: 10}

	if _, err := Rasterize(doc, document.PageIndex(0), params); !errors.Is(err, document.ErrDecode) {
		t.Errorf("Rasterize = %v, want the codec's ErrDecode", err)
	}
}
