// Package txtdoc reads plain text files as reflowable documents.
// Decoding follows the loose conventions of text on disk: a byte order
// mark selects UTF-8 or UTF-16, valid UTF-8 without one is taken as is,
// and anything else is read as Latin-1. Form feeds start a new section
// and blank lines separate paragraphs; line breaks inside a paragraph
// flow together when the text is reflowed.
package txtdoc

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/internal/textpage"
)

func init() {
	document.Register(document.TXT, func(path string) (document.Document, error) {
		return Open(path)
	})
}

// Document is a plain text file opened as a reflowable document.
type Document struct {
	path     string
	fp       uint64
	meta     document.Metadata
	content  *document.Content
	sections int

	mu     sync.Mutex
	fonts  *font.Library
	closed bool
}

// Open reads and decodes the text file at path. The whole file is
// decoded up front; a text document holds no open file handles.
func Open(path string) (*Document, error) {
	fp, err := document.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", document.ErrIO, path, err)
	}

	text, err := decode(data)
	if err != nil {
		return nil, err
	}
	if strings.ContainsRune(text, 0) {
		return nil, fmt.Errorf("%w: txt: binary data in %s", document.ErrCorrupt, path)
	}

	content, sections := buildContent(text)

	base := filepath.Base(path)
	return &Document{
		path:     path,
		fp:       fp,
		meta:     document.Metadata{Title: strings.TrimSuffix(base, filepath.Ext(base))},
		content:  content,
		sections: sections,
	}, nil
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

// Format returns document.TXT.
func (d *Document) Format() document.Format { return document.TXT }

// Fingerprint returns the identity of the backing file.
func (d *Document) Fingerprint() uint64 { return d.fp }

// Metadata returns the document title, derived from the file name.
func (d *Document) Metadata() document.Metadata { return d.meta }

// PageCount returns the number of form feed separated sections. Logical
// pages are produced by pagination, not by the codec.
func (d *Document) PageCount() (int, error) {
	if err := d.check(); err != nil {
		return 0, err
	}
	return d.sections, nil
}

// PageDims is unsupported: plain text has no native page geometry.
func (d *Document) PageDims(index int) (geom.Size, error) {
	return geom.Size{}, fmt.Errorf("%w: txt documents have no page geometry", document.ErrUnsupported)
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

// Outline returns no entries: plain text carries no table of contents.
func (d *Document) Outline() ([]document.TocEntry, error) {
	return nil, nil
}

// Content returns the decoded content stream.
func (d *Document) Content() (*document.Content, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return d.content, nil
}

// Close marks the document closed. Further operations fail with
// ErrClosed.
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

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// decode converts raw file bytes to UTF-8 text.
func decode(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]

	case bytes.HasPrefix(data, bomUTF16BE), bytes.HasPrefix(data, bomUTF16LE):
		// The decoder reads the mark itself to pick the byte order.
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		decoded, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", fmt.Errorf("%w: txt: utf-16 decode: %v", document.ErrCorrupt, err)
		}
		return string(decoded), nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: txt: latin-1 decode: %v", document.ErrCorrupt, err)
	}
	return string(decoded), nil
}

// buildContent segments decoded text into the content stream and
// returns it with the section count. Sections after the first carry a
// page break flag so pagination starts them on a fresh page.
func buildContent(text string) (*document.Content, int) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	b := document.NewContentBuilder()
	sections := strings.Split(text, "\f")
	for i, section := range sections {
		if i > 0 {
			b.PageBreak()
		}
		for _, para := range paragraphs(section) {
			b.Body(para)
		}
	}
	return b.Build(), len(sections)
}

// paragraphs splits a section on blank lines. The wrapped source lines
// of one paragraph are joined with single spaces; their original
// indentation is layout of the source file, not of the text.
func paragraphs(section string) []string {
	var paras []string
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			paras = append(paras, strings.Join(lines, " "))
			lines = nil
		}
	}
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return paras
}
