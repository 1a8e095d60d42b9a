// Package imagedoc implements the raster codecs: standalone image
// files (PNG, JPEG, GIF, WebP, TIFF) and CBZ comic archives. Pages
// render at their native pixel size; cropping, zooming and rotation
// happen downstream in the rasterizer. Raster pages have no text layer
// of their own, but a document.TextRecognizer can be attached to
// supply one through OCR.
package imagedoc

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
)

func init() {
	for _, f := range []document.Format{
		document.PNG, document.JPEG, document.GIF, document.WEBP, document.TIFF,
	} {
		document.Register(f, Open)
	}
}

// Document is a single image file presented as a one-page document.
type Document struct {
	path   string
	fp     uint64
	format document.Format
	dims   geom.Size
	meta   document.Metadata

	mu         sync.Mutex
	recognizer document.TextRecognizer
	closed     bool
}

// Open reads the image header at path and returns a one-page document.
// The pixel data is decoded on demand by Render.
func Open(path string) (document.Document, error) {
	fp, err := document.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrIO, err)
	}
	defer f.Close()

	cfg, name, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", document.ErrCorrupt, path, err)
	}
	format := formatByName(name)
	if format == document.Unknown {
		return nil, fmt.Errorf("%w: image format %q", document.ErrUnsupported, name)
	}

	return &Document{
		path:   path,
		fp:     fp,
		format: format,
		dims:   geom.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)},
		meta:   document.Metadata{Title: titleFromPath(path)},
	}, nil
}

// SetRecognizer attaches an OCR backend used by Text. A nil recognizer
// detaches it.
func (d *Document) SetRecognizer(r document.TextRecognizer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recognizer = r
}

// Format returns the detected image format.
func (d *Document) Format() document.Format { return d.format }

// Fingerprint returns the identity of the backing file.
func (d *Document) Fingerprint() uint64 { return d.fp }

// Metadata returns the title derived from the filename.
func (d *Document) Metadata() document.Metadata { return d.meta }

// PageCount returns 1: a standalone image is a single page.
func (d *Document) PageCount() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return 1, nil
}

// PageDims returns the image dimensions in pixels.
func (d *Document) PageDims(index int) (geom.Size, error) {
	if err := d.check(); err != nil {
		return geom.Size{}, err
	}
	if index != 0 {
		return geom.Size{}, fmt.Errorf("%w: page %d of 1", document.ErrPageRange, index)
	}
	return d.dims, nil
}

// Render decodes the image as 8-bit grayscale at its native size.
// Layout parameters do not apply at this level; the rasterizer scales
// and rotates the returned page.
func (d *Document) Render(ref document.PageRef, params document.LayoutParams) (*image.Gray, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, 1); err != nil {
		return nil, err
	}
	return decodeGray(d.path)
}

// Text returns OCR-recognized runs when a recognizer is attached, and
// an empty slice otherwise.
func (d *Document) Text(ref document.PageRef, params document.LayoutParams) ([]document.BoundedText, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, 1); err != nil {
		return nil, err
	}
	d.mu.Lock()
	rec := d.recognizer
	d.mu.Unlock()
	if rec == nil {
		return nil, nil
	}
	img, err := decodeGray(d.path)
	if err != nil {
		return nil, err
	}
	return rec.Recognize(img)
}

// Outline returns nil: image files carry no table of contents.
func (d *Document) Outline() ([]document.TocEntry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Close marks the document unusable. No resources are held open
// between calls, so there is nothing else to release.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Document) check() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("%w: %s", document.ErrClosed, d.path)
	}
	return nil
}

func formatByName(name string) document.Format {
	switch name {
	case "png":
		return document.PNG
	case "jpeg":
		return document.JPEG
	case "gif":
		return document.GIF
	case "webp":
		return document.WEBP
	case "tiff":
		return document.TIFF
	}
	return document.Unknown
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// checkRef rejects content-range references and out-of-range page
// indexes. Raster documents are addressed by physical page only.
func checkRef(ref document.PageRef, pages int) error {
	if ref.IsRange() {
		return fmt.Errorf("%w: raster documents take page indexes, got %s", document.ErrPageRange, ref)
	}
	if ref.Page < 0 || ref.Page >= pages {
		return fmt.Errorf("%w: page %d of %d", document.ErrPageRange, ref.Page, pages)
	}
	return nil
}

func decodeGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrIO, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", document.ErrCorrupt, path, err)
	}
	return toGray(src), nil
}

// toGray converts any decoded image to 8-bit grayscale with a
// zero-origin bounds rectangle.
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := src.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), src, b.Min, draw.Src)
	return g
}
