// Package pdfdoc implements the PDF codec on a pure-Go stack: pdfcpu
// supplies the document structure (validation, page tree, boxes,
// metadata, outline bookmarks) and ledongthuc/pdf supplies the
// positioned text layer. Render composites image XObjects onto a white
// page at native size and draws the text layer on top, which covers
// both digital-born and scanned documents. Vector art is not
// rasterized.
package pdfdoc

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"math"
	"path/filepath"
	"strings"
	"sync"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/internal/raster"
)

func init() {
	document.Register(document.PDF, Open)
}

// pageInfo caches the geometry pdfcpu resolved for one page: the
// MediaBox size in points and the page's own /Rotate entry.
type pageInfo struct {
	size   geom.Size
	rotate geom.Rotation
}

// displaySize returns the size the page occupies once /Rotate is
// applied, which is what navigation and the rasterizer care about.
func (p pageInfo) displaySize() geom.Size {
	if p.rotate.Swaps() {
		return geom.Size{Width: p.size.Height, Height: p.size.Width}
	}
	return p.size
}

// Document is an open PDF.
type Document struct {
	path  string
	fp    uint64
	meta  document.Metadata
	toc   []document.TocEntry
	pages []pageInfo

	mu     sync.Mutex
	ctx    *model.Context
	file   io.Closer
	reader *lpdf.Reader
	fonts  *font.Library
	closed bool
}

// Open parses and validates the PDF at path. The text layer is loaded
// best effort: a file whose text ledongthuc cannot parse still opens
// with its page geometry intact.
func Open(path string) (document.Document, error) {
	fp, err := document.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: validate %s: %v", document.ErrCorrupt, path, err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("%w: %s has no pages", document.ErrCorrupt, path)
	}

	pages := make([]pageInfo, ctx.PageCount)
	for i := range pages {
		pages[i] = loadPageInfo(ctx, i+1)
	}

	d := &Document{
		path:  path,
		fp:    fp,
		meta:  readMetadata(ctx, path),
		toc:   readOutline(path, ctx.PageCount),
		pages: pages,
		ctx:   ctx,
	}
	if f, r, err := lpdf.Open(path); err == nil {
		d.file, d.reader = f, r
	}
	return d, nil
}

// classifyOpenError maps pdfcpu read failures onto the codec error
// kinds. Password problems surface as ErrEncrypted so the caller can
// tell a locked file from a broken one.
func classifyOpenError(path string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return fmt.Errorf("%w: %s: %v", document.ErrEncrypted, path, err)
	}
	return fmt.Errorf("%w: %s: %v", document.ErrCorrupt, path, err)
}

func loadPageInfo(ctx *model.Context, pageNr int) pageInfo {
	// US Letter default, matching what PDF viewers assume for pages
	// with a broken or missing MediaBox.
	info := pageInfo{size: geom.Size{Width: 612, Height: 792}}

	_, _, attrs, err := ctx.PageDict(pageNr, false)
	if err != nil || attrs == nil {
		return info
	}
	if attrs.MediaBox != nil {
		info.size = geom.Size{Width: attrs.MediaBox.Width(), Height: attrs.MediaBox.Height()}
	}
	info.rotate = geom.Rotation(attrs.Rotate).Normalize()
	return info
}

func readMetadata(ctx *model.Context, path string) document.Metadata {
	base := filepath.Base(path)
	meta := document.Metadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}

	if ctx.Info != nil {
		if dict, err := ctx.DereferenceDict(*ctx.Info); err == nil && dict != nil {
			if s := dictString(ctx, dict, "Title"); s != "" {
				meta.Title = s
			}
			meta.Author = dictString(ctx, dict, "Author")
		}
	}
	if catalog, err := ctx.Catalog(); err == nil && catalog != nil {
		meta.Language = dictString(ctx, catalog, "Lang")
	}
	return meta
}

// dictString resolves a dictionary entry to a decoded text string,
// tolerating indirect references and both string flavors.
func dictString(ctx *model.Context, dict types.Dict, key string) string {
	obj, ok := dict[key]
	if !ok {
		return ""
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return ""
	}
	switch v := obj.(type) {
	case types.StringLiteral:
		s, err := types.StringLiteralToString(v)
		if err != nil {
			return string(v)
		}
		return s
	case types.HexLiteral:
		s, err := types.HexLiteralToString(v)
		if err != nil {
			return ""
		}
		return s
	}
	return ""
}

// SetFontLibrary injects the faces used to draw the text layer. By
// default a built-in fallback face is used; embedded PDF fonts are not
// extracted.
func (d *Document) SetFontLibrary(lib *font.Library) {
	if lib == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fonts = lib
}

// Format returns document.PDF.
func (d *Document) Format() document.Format { return document.PDF }

// Fingerprint returns the identity of the backing file.
func (d *Document) Fingerprint() uint64 { return d.fp }

// Metadata returns the Info dictionary properties, with the filename
// as title fallback.
func (d *Document) Metadata() document.Metadata { return d.meta }

// PageCount returns the number of pages in the page tree.
func (d *Document) PageCount() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return len(d.pages), nil
}

// PageDims returns the page size in points with /Rotate applied.
func (d *Document) PageDims(index int) (geom.Size, error) {
	if err := d.check(); err != nil {
		return geom.Size{}, err
	}
	if index < 0 || index >= len(d.pages) {
		return geom.Size{}, fmt.Errorf("%w: page %d of %d", document.ErrPageRange, index, len(d.pages))
	}
	return d.pages[index].displaySize(), nil
}

// Render paints the page on a white canvas at native size (one pixel
// per point) and applies the page's /Rotate. Image XObjects go down
// first and the text layer on top of them. Scaling to the viewport
// happens downstream in the rasterizer.
func (d *Document) Render(ref document.PageRef, params document.LayoutParams) (*image.Gray, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, len(d.pages)); err != nil {
		return nil, err
	}
	info := d.pages[ref.Page]

	w := int(math.Ceil(info.size.Width))
	h := int(math.Ceil(info.size.Height))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	d.drawImages(img, ref.Page, info.size.Height)

	lib := d.library()
	for _, it := range d.pageText(ref.Page) {
		if strings.TrimSpace(it.S) == "" {
			continue
		}
		face := lib.Face(it.Font, it.FontSize)
		face.Draw(img, it.X, info.size.Height-it.Y, it.S)
	}
	return raster.Rotate(img, info.rotate), nil
}

// Text returns the page's text grouped into word runs with device
// boxes matching Render's orientation. Offsets are -1: fixed-layout
// text has no content stream behind it.
func (d *Document) Text(ref document.PageRef, params document.LayoutParams) ([]document.BoundedText, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, len(d.pages)); err != nil {
		return nil, err
	}
	info := d.pages[ref.Page]
	return groupWords(d.pageText(ref.Page), info), nil
}

// Outline returns the bookmark tree mapped to page references.
func (d *Document) Outline() ([]document.TocEntry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.toc, nil
}

// Close releases the text-layer file handle and drops the structure
// context. The document is unusable after.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.ctx = nil
	d.reader = nil
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
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

func (d *Document) library() *font.Library {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fonts == nil {
		d.fonts = font.NewLibrary()
	}
	return d.fonts
}

// pageText returns the raw text items of a page. The reader is held
// under the lock for the whole call; ledongthuc panics on some
// malformed font descriptors, so the call is fenced.
func (d *Document) pageText(page int) (items []lpdf.Text) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reader == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			items = nil
		}
	}()
	return d.reader.Page(page + 1).Content().Text
}

func checkRef(ref document.PageRef, pages int) error {
	if ref.IsRange() {
		return fmt.Errorf("%w: fixed-layout documents take page indexes, got %s", document.ErrPageRange, ref)
	}
	if ref.Page < 0 || ref.Page >= pages {
		return fmt.Errorf("%w: page %d of %d", document.ErrPageRange, ref.Page, pages)
	}
	return nil
}
