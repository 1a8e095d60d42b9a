// Package document defines the backend-agnostic surface over document
// codecs: opening a file by detected format, page access, rendering,
// text extraction, outlines, and the content stream used to repaginate
// reflowable formats.
//
// Codec implementations live in subpackages (pdfdoc, epubdoc, txtdoc,
// imagedoc) and register themselves with Register, following the
// image.RegisterFormat convention. Importing a codec package is enough
// to make its formats openable:
//
//	import (
//	    "github.com/OGKevin/plato/document"
//	    _ "github.com/OGKevin/plato/document/epubdoc"
//	)
//
//	doc, err := document.Open("book.epub")
package document

import (
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/OGKevin/plato/geom"
)

// Metadata holds the descriptive properties a codec can recover from a
// document. Fields are empty when the format does not carry them.
type Metadata struct {
	Title    string
	Author   string
	Language string
}

// PageRef identifies a renderable unit of a document. For Fixed and
// Image kinds it is a physical page index. For Reflowable kinds it is a
// byte range of the document's content stream, produced by pagination.
// The zero value refers to the first physical page.
type PageRef struct {
	// Page is the zero-based physical page index, or -1 when the
	// reference addresses a content range instead.
	Page int

	// Start and End delimit a half-open byte range of the content
	// stream. Both are zero for physical page references.
	Start, End int
}

// PageIndex returns a reference to a physical page.
func PageIndex(i int) PageRef {
	return PageRef{Page: i}
}

// ContentRange returns a reference to a byte range of the content stream.
func ContentRange(start, end int) PageRef {
	return PageRef{Page: -1, Start: start, End: end}
}

// ContentOffset returns a reference to a single position in the content
// stream, used for outline targets and saved reading positions.
func ContentOffset(offset int) PageRef {
	return ContentRange(offset, offset)
}

// IsRange reports whether the reference addresses a content range
// rather than a physical page.
func (r PageRef) IsRange() bool { return r.Page < 0 }

// String formats the reference for log output.
func (r PageRef) String() string {
	if r.IsRange() {
		return fmt.Sprintf("[%d:%d)", r.Start, r.End)
	}
	return fmt.Sprintf("page %d", r.Page)
}

// BoundedText is a positioned run of text on a rendered page: the text
// itself, its box in device pixels, and, for reflowable documents, the
// byte range of the content stream it was drawn from. Start and End are
// -1 when the source offsets are unknown (fixed-layout text layers, OCR).
type BoundedText struct {
	Text  string
	Box   geom.BBox
	Start int
	End   int
}

// TocEntry is one node of a document outline. Target addresses either a
// physical page or a content offset depending on the document kind.
type TocEntry struct {
	Title    string
	Target   PageRef
	Children []TocEntry
}

// Document is the capability surface a codec exposes. All methods may
// be called from any goroutine after Open returns; implementations
// synchronize internally. Rendering can be slow and is expected to be
// kept off latency-sensitive paths by the caller.
type Document interface {
	// Format reports the detected format, which carries the Kind.
	Format() Format

	// Fingerprint is the stable identity of the backing file, used to
	// key caches and reading positions.
	Fingerprint() uint64

	// PageCount returns the number of physical pages. Reflowable
	// documents report their native segment count (spine entries,
	// text sections); pagination into logical pages happens elsewhere.
	PageCount() (int, error)

	// Metadata returns the document's descriptive properties.
	Metadata() Metadata

	// PageDims returns the native size of a physical page in the
	// codec's units (points for PDF, pixels for images).
	PageDims(index int) (geom.Size, error)

	// Render draws the referenced page as 8-bit grayscale at the size
	// implied by params. The returned image is owned by the caller.
	Render(ref PageRef, params LayoutParams) (*image.Gray, error)

	// Text returns the positioned text runs of the referenced page
	// under params, ordered by reading order. Formats without a text
	// layer return an empty slice and no error.
	Text(ref PageRef, params LayoutParams) ([]BoundedText, error)

	// Outline returns the table of contents, or an empty slice when
	// the document has none.
	Outline() ([]TocEntry, error)

	// Close releases codec resources. The document is unusable after.
	Close() error
}

// ContentSource is the capability of Reflowable documents to expose
// their full text as a continuous content stream for pagination.
type ContentSource interface {
	// Content returns the document's content stream. The result is
	// immutable and may be retained by the caller.
	Content() (*Content, error)
}

// TextRecognizer supplies a text layer for raster pages that have none.
// Image-kind codecs accept one through their SetRecognizer method; the
// ocr package provides the implementation. Recognized runs carry -1
// offsets since there is no content stream behind them.
type TextRecognizer interface {
	Recognize(img *image.Gray) ([]BoundedText, error)
}

// OpenFunc opens a document at path. Codec packages provide one per
// format through Register.
type OpenFunc func(path string) (Document, error)

var (
	codecsMu sync.RWMutex
	codecs   = make(map[Format]OpenFunc)
)

// Register binds a format to the codec that opens it. It is intended to
// be called from codec package init functions and panics on a duplicate
// registration, which indicates two codecs claiming the same format.
func Register(f Format, open OpenFunc) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	if _, dup := codecs[f]; dup {
		panic("document: Register called twice for format " + f.String())
	}
	codecs[f] = open
}

// Open detects the format of the file at path and opens it with the
// registered codec. Recognized formats without a registered codec
// return ErrUnsupported naming the format, so callers can distinguish
// "not a document" from "no backend for this document".
func Open(path string) (Document, error) {
	f, err := DetectFile(path)
	if err != nil {
		return nil, err
	}
	if f == Unknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}

	codecsMu.RLock()
	open, ok := codecs[f]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, f)
	}
	return open(path)
}

// DetectFile determines the format of the file at path, preferring
// content sniffing over the filename extension. A readable file whose
// contents are not recognized falls back to extension-based detection,
// so a plain .txt file without magic bytes still resolves.
func DetectFile(path string) (Format, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Unknown, fmt.Errorf("%w: stat %s: %v", ErrIO, path, err)
	}
	if fi.Size() == 0 {
		return Unknown, fmt.Errorf("%w: %s is empty", ErrCorrupt, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return Unknown, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
	}
	defer file.Close()

	f, err := DetectFromReader(file, fi.Size())
	if err != nil {
		return Unknown, fmt.Errorf("%w: sniff %s: %v", ErrIO, path, err)
	}
	if f == Unknown {
		f = Detect(path)
	}
	return f, nil
}
