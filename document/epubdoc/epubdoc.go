// Package epubdoc reads EPUB publications as reflowable documents. The
// archive is parsed eagerly at Open: container, package document, spine
// chapters and navigation are converted into one continuous content
// stream, so pagination and position bookkeeping never reopen the file.
// DRM-protected archives are rejected.
package epubdoc

import (
	"archive/zip"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/internal/textpage"
)

func init() {
	document.Register(document.EPUB, func(path string) (document.Document, error) {
		return Open(path)
	})
}

// chapter is one loaded spine item mapped into the content stream.
type chapter struct {
	id    string
	name  string // archive path
	start int    // stream offset of the chapter's first block
	title string
}

// Document is an EPUB publication opened as a reflowable document.
type Document struct {
	path     string
	fp       uint64
	version  string
	meta     document.Metadata
	content  *document.Content
	chapters []chapter
	toc      []document.TocEntry

	mu     sync.Mutex
	fonts  *font.Library
	closed bool
}

// loader carries the state threaded through archive parsing.
type loader struct {
	a            *archive
	pkg          *pkg
	baseDir      string
	builder      *document.ContentBuilder
	anchors      map[string]int
	chapterStart map[string]int
	chapters     []chapter
}

// Open parses the EPUB at path. The archive is read completely and
// closed before Open returns.
func Open(path string) (*Document, error) {
	fp, err := document.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrCorrupt, ErrInvalidArchive)
	}
	defer zr.Close()

	d, err := build(&zr.Reader)
	if err != nil {
		return nil, err
	}
	d.path = path
	d.fp = fp
	return d, nil
}

func build(zr *zip.Reader) (*Document, error) {
	a := newArchive(zr)

	if err := checkEncryption(a); err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrEncrypted, err)
	}

	opfPath, err := parseContainer(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrCorrupt, err)
	}
	p, baseDir, err := parsePackage(a, opfPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrCorrupt, err)
	}

	ld := &loader{
		a:            a,
		pkg:          p,
		baseDir:      baseDir,
		builder:      document.NewContentBuilder(),
		anchors:      make(map[string]int),
		chapterStart: make(map[string]int),
	}
	if err := ld.loadChapters(); err != nil {
		return nil, fmt.Errorf("%w: %v", document.ErrCorrupt, err)
	}

	content := ld.builder.Build()
	ld.titleChapters(content)

	return &Document{
		version: p.version,
		meta: document.Metadata{
			Title:    p.title,
			Author:   strings.Join(p.creators, ", "),
			Language: p.language,
		},
		content:  content,
		chapters: ld.chapters,
		toc:      ld.buildOutline(),
	}, nil
}

// loadChapters converts every resolvable spine item into content
// blocks, in spine order. Each chapter after the first begins on a
// fresh page. Missing or unreadable items are skipped, matching how
// readers treat sloppy archives; an empty result is an error.
func (ld *loader) loadChapters() error {
	for _, si := range ld.pkg.spine {
		item, ok := ld.pkg.manifest[si.idref]
		if !ok {
			continue
		}
		name, _ := resolveHref(ld.baseDir, item.href)
		data, err := ld.a.read(name)
		if err != nil {
			continue
		}

		if len(ld.chapters) > 0 {
			ld.builder.PageBreak()
		}
		start := ld.builder.Offset()
		if err := convertChapter(ld.builder, ld.anchors, name, data); err != nil {
			continue
		}
		ld.chapters = append(ld.chapters, chapter{id: item.id, name: name, start: start})
		ld.chapterStart[name] = start
	}
	if len(ld.chapters) == 0 {
		return ErrEmptySpine
	}
	return nil
}

// titleChapters derives a display title for each chapter from its first
// heading, for outlines generated off the spine.
func (ld *loader) titleChapters(c *document.Content) {
	for i := range ld.chapters {
		end := c.Len()
		if i+1 < len(ld.chapters) {
			end = ld.chapters[i+1].start
		}
		for bi, blk := range c.Blocks {
			if blk.Start < ld.chapters[i].start {
				continue
			}
			if blk.Start >= end {
				break
			}
			if blk.Kind == document.Heading {
				ld.chapters[i].title = c.BlockText(bi)
				break
			}
		}
	}
}

// SetFontLibrary replaces the font library used for rendering and text
// geometry. Callers owning a shared library inject it right after Open;
// without one, a private library with the built-in face is created on
// first use.
func (d *Document) SetFontLibrary(lib *font.Library) {
	if lib == nil {
		return
	}
	d.mu.Lock()
	d.fonts = lib
	d.mu.Unlock()
}

// Format returns document.EPUB.
func (d *Document) Format() document.Format { return document.EPUB }

// Fingerprint returns the identity of the backing file.
func (d *Document) Fingerprint() uint64 { return d.fp }

// Version returns the EPUB version string from the package document,
// "2.0" or "3.0" for conforming files.
func (d *Document) Version() string { return d.version }

// Metadata returns the Dublin Core identity of the publication.
func (d *Document) Metadata() document.Metadata { return d.meta }

// PageCount returns the number of loaded spine chapters. Logical pages
// are produced by pagination, not by the codec.
func (d *Document) PageCount() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return len(d.chapters), nil
}

// PageDims is unsupported: reflowable publications have no native page
// geometry.
func (d *Document) PageDims(index int) (geom.Size, error) {
	return geom.Size{}, fmt.Errorf("%w: epub documents have no page geometry", document.ErrUnsupported)
}

// Render typesets the referenced content range onto a white page sized
// to the effective viewport.
func (d *Document) Render(ref document.PageRef, params document.LayoutParams) (*image.Gray, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	start, end, err := textpage.Range(ref, d.content)
	if err != nil {
		return nil, err
	}
	return textpage.Render(d.content, start, end, d.library(), params)
}

// Text returns the positioned line runs of the referenced content range.
func (d *Document) Text(ref document.PageRef, params document.LayoutParams) ([]document.BoundedText, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	start, end, err := textpage.Range(ref, d.content)
	if err != nil {
		return nil, err
	}
	return textpage.Text(d.content, start, end, d.library(), params)
}

// Outline returns the table of contents with targets resolved to
// content stream offsets.
func (d *Document) Outline() ([]document.TocEntry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.toc, nil
}

// Content returns the publication's content stream.
func (d *Document) Content() (*document.Content, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.content, nil
}

// ChapterStart returns the stream offset the given chapter begins at.
func (d *Document) ChapterStart(i int) (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	if i < 0 || i >= len(d.chapters) {
		return 0, fmt.Errorf("%w: chapter %d of %d", document.ErrPageRange, i, len(d.chapters))
	}
	return d.chapters[i].start, nil
}

// Close marks the document closed. Further operations fail with
// ErrClosed; the archive itself was already released by Open.
func (d *Document) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
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
