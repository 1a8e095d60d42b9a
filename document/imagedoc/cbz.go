package imagedoc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
)

func init() {
	document.Register(document.CBZ, OpenCBZ)
}

// imageEntryExts lists the archive member extensions treated as pages.
// Only formats with a registered decoder qualify.
var imageEntryExts = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".tif", ".tiff"}

// Archive is a CBZ comic book: a ZIP of images, one page per image,
// ordered by natural filename sort. Pages are decoded on demand, so
// the archive stays open until Close.
type Archive struct {
	path  string
	fp    uint64
	meta  document.Metadata
	pages []*zip.File

	mu         sync.Mutex
	zr         *zip.ReadCloser
	recognizer document.TextRecognizer
	closed     bool
}

// OpenCBZ opens a comic archive and indexes its image entries.
func OpenCBZ(path string) (document.Document, error) {
	fp, err := document.Fingerprint(path)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", document.ErrCorrupt, path, err)
	}

	pages := imageEntries(&zr.Reader)
	if len(pages) == 0 {
		zr.Close()
		return nil, fmt.Errorf("%w: %s contains no images", document.ErrCorrupt, path)
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return naturalLess(pages[i].Name, pages[j].Name)
	})

	return &Archive{
		path:  path,
		fp:    fp,
		meta:  document.Metadata{Title: titleFromPath(path)},
		pages: pages,
		zr:    zr,
	}, nil
}

// imageEntries returns the archive members that look like pages,
// skipping directories and archiver junk such as __MACOSX resource
// forks and dotfiles.
func imageEntries(zr *zip.Reader) []*zip.File {
	var pages []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		if strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		base := name
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			base = name[i+1:]
		}
		if strings.HasPrefix(base, ".") {
			continue
		}
		lower := strings.ToLower(base)
		for _, ext := range imageEntryExts {
			if strings.HasSuffix(lower, ext) {
				pages = append(pages, f)
				break
			}
		}
	}
	return pages
}

// SetRecognizer attaches an OCR backend used by Text. A nil recognizer
// detaches it.
func (a *Archive) SetRecognizer(r document.TextRecognizer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recognizer = r
}

// Format returns document.CBZ.
func (a *Archive) Format() document.Format { return document.CBZ }

// Fingerprint returns the identity of the backing file.
func (a *Archive) Fingerprint() uint64 { return a.fp }

// Metadata returns the title derived from the filename.
func (a *Archive) Metadata() document.Metadata { return a.meta }

// PageCount returns the number of image entries.
func (a *Archive) PageCount() (int, error) {
	if err := a.check(); err != nil {
		return 0, err
	}
	return len(a.pages), nil
}

// PageDims reads the image header of the given page and returns its
// pixel dimensions.
func (a *Archive) PageDims(index int) (geom.Size, error) {
	if err := a.check(); err != nil {
		return geom.Size{}, err
	}
	if index < 0 || index >= len(a.pages) {
		return geom.Size{}, fmt.Errorf("%w: page %d of %d", document.ErrPageRange, index, len(a.pages))
	}

	rc, err := a.pages[index].Open()
	if err != nil {
		return geom.Size{}, fmt.Errorf("%w: %s: %v", document.ErrIO, a.pages[index].Name, err)
	}
	defer rc.Close()

	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return geom.Size{}, fmt.Errorf("%w: decode %s: %v", document.ErrCorrupt, a.pages[index].Name, err)
	}
	return geom.Size{Width: float64(cfg.Width), Height: float64(cfg.Height)}, nil
}

// Render decodes the referenced page as 8-bit grayscale at its native
// size. Layout parameters apply downstream in the rasterizer.
func (a *Archive) Render(ref document.PageRef, params document.LayoutParams) (*image.Gray, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, len(a.pages)); err != nil {
		return nil, err
	}
	return a.decodePage(ref.Page)
}

// Text returns OCR-recognized runs for the page when a recognizer is
// attached, and an empty slice otherwise.
func (a *Archive) Text(ref document.PageRef, params document.LayoutParams) ([]document.BoundedText, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := checkRef(ref, len(a.pages)); err != nil {
		return nil, err
	}
	a.mu.Lock()
	rec := a.recognizer
	a.mu.Unlock()
	if rec == nil {
		return nil, nil
	}
	img, err := a.decodePage(ref.Page)
	if err != nil {
		return nil, err
	}
	return rec.Recognize(img)
}

// Outline returns nil: comic archives carry no table of contents.
func (a *Archive) Outline() ([]document.TocEntry, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Close releases the archive handle. The document is unusable after.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.zr.Close()
}

func (a *Archive) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%w: %s", document.ErrClosed, a.path)
	}
	return nil
}

func (a *Archive) decodePage(index int) (*image.Gray, error) {
	entry := a.pages[index]
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", document.ErrIO, entry.Name, err)
	}
	defer rc.Close()

	// Decode from a full in-memory copy: some decoders seek, and zip
	// entry readers do not.
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", document.ErrIO, entry.Name, err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", document.ErrCorrupt, entry.Name, err)
	}
	return toGray(src), nil
}

// naturalLess orders names so digit runs compare by numeric value:
// "page2.png" sorts before "page10.png". Comparison is case
// insensitive; ties fall back to the stable input order.
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			ai := i
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			bj := j
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[ai:i], "0")
			nb := strings.TrimLeft(b[bj:j], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		ca, cb := lowerByte(a[i]), lowerByte(b[j])
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func lowerByte(c byte) byte {
	if 'A' <= c && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
