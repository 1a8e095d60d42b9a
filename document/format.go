package document

import (
	"archive/zip"
	"bytes"
	"io"
	"path/filepath"
	"strings"
)

// Kind classifies how a format is paginated and rendered.
type Kind int

const (
	// Fixed formats have an intrinsic page geometry; layout parameters
	// scale and crop pages but never re-flow them.
	Fixed Kind = iota

	// Reflowable formats are a continuous content stream; pagination
	// is computed from layout parameters.
	Reflowable

	// Image formats are single raster pages. They paginate like Fixed
	// formats and have no text layer unless OCR supplies one.
	Image
)

// String returns the kind name used in settings keys and logs.
func (k Kind) String() string {
	switch k {
	case Reflowable:
		return "reflowable"
	case Image:
		return "image"
	default:
		return "fixed"
	}
}

// Format represents a supported document format.
type Format int

const (
	// Unknown indicates an unrecognized format.
	Unknown Format = iota
	// PDF indicates a PDF document.
	PDF
	// XPS indicates an XPS or OpenXPS document.
	XPS
	// DJVU indicates a DjVu document.
	DJVU
	// CBZ indicates a comic book archive (ZIP of images).
	CBZ
	// EPUB indicates an EPUB publication.
	EPUB
	// FB2 indicates a FictionBook 2 document.
	FB2
	// MOBI indicates a Mobipocket book.
	MOBI
	// TXT indicates a plain text document.
	TXT
	// PNG indicates a PNG image.
	PNG
	// JPEG indicates a JPEG image.
	JPEG
	// GIF indicates a GIF image.
	GIF
	// WEBP indicates a WebP image.
	WEBP
	// TIFF indicates a TIFF image.
	TIFF
)

// String returns the string representation of the format. It doubles
// as the per-kind key in settings overrides, so values are lowercase
// and stable.
func (f Format) String() string {
	switch f {
	case PDF:
		return "pdf"
	case XPS:
		return "xps"
	case DJVU:
		return "djvu"
	case CBZ:
		return "cbz"
	case EPUB:
		return "epub"
	case FB2:
		return "fb2"
	case MOBI:
		return "mobi"
	case TXT:
		return "txt"
	case PNG:
		return "png"
	case JPEG:
		return "jpeg"
	case GIF:
		return "gif"
	case WEBP:
		return "webp"
	case TIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// Extension returns the typical file extension for the format.
func (f Format) Extension() string {
	switch f {
	case PDF:
		return ".pdf"
	case XPS:
		return ".xps"
	case DJVU:
		return ".djvu"
	case CBZ:
		return ".cbz"
	case EPUB:
		return ".epub"
	case FB2:
		return ".fb2"
	case MOBI:
		return ".mobi"
	case TXT:
		return ".txt"
	case PNG:
		return ".png"
	case JPEG:
		return ".jpg"
	case GIF:
		return ".gif"
	case WEBP:
		return ".webp"
	case TIFF:
		return ".tiff"
	default:
		return ""
	}
}

// Kind returns the pagination kind of the format. The result is only
// meaningful for recognized formats.
func (f Format) Kind() Kind {
	switch f {
	case EPUB, FB2, MOBI, TXT:
		return Reflowable
	case PNG, JPEG, GIF, WEBP, TIFF:
		return Image
	default:
		return Fixed
	}
}

// Detect determines file format from the filename extension.
func Detect(filename string) Format {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return PDF
	case ".xps", ".oxps":
		return XPS
	case ".djvu", ".djv":
		return DJVU
	case ".cbz":
		return CBZ
	case ".epub":
		return EPUB
	case ".fb2":
		return FB2
	case ".mobi", ".azw":
		return MOBI
	case ".txt", ".text":
		return TXT
	case ".png":
		return PNG
	case ".jpg", ".jpeg":
		return JPEG
	case ".gif":
		return GIF
	case ".webp":
		return WEBP
	case ".tif", ".tiff":
		return TIFF
	default:
		return Unknown
	}
}

// DetectFromMagic checks leading magic bytes to determine format.
// ZIP-based formats (EPUB, CBZ, XPS) cannot be told apart from the
// magic alone; DetectFromReader resolves those. Returns Unknown if the
// format cannot be determined from the given bytes.
func DetectFromMagic(data []byte) Format {
	if len(data) < 4 {
		return Unknown
	}

	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return PDF
	case bytes.HasPrefix(data, []byte("AT&TFORM")):
		return DJVU
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return PNG
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return JPEG
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return GIF
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return WEBP
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return TIFF
	}

	// Mobipocket: Palm database header with type/creator at offset 60.
	if len(data) >= 68 {
		tc := data[60:68]
		if bytes.Equal(tc, []byte("BOOKMOBI")) || bytes.Equal(tc, []byte("TEXtREAd")) {
			return MOBI
		}
	}

	// FictionBook: an XML document whose root element is FictionBook.
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf"), []byte("<?xml")) &&
		bytes.Contains(data, []byte("<FictionBook")) {
		return FB2
	}

	return Unknown
}

// DetectFromReader inspects file content to determine format. It is
// more reliable than extension-based detection and distinguishes the
// ZIP-based formats (EPUB, CBZ, XPS) by their archive contents.
func DetectFromReader(r io.ReaderAt, size int64) (Format, error) {
	magic := make([]byte, 512)
	n, err := r.ReadAt(magic, 0)
	if err != nil && err != io.EOF {
		return Unknown, err
	}
	magic = magic[:n]

	if len(magic) >= 4 && magic[0] == 0x50 && magic[1] == 0x4B && magic[2] == 0x03 && magic[3] == 0x04 {
		return detectZIPFormat(r, size)
	}
	return DetectFromMagic(magic), nil
}

// detectZIPFormat inspects a ZIP archive to decide between EPUB, XPS
// and CBZ. EPUB carries a mimetype entry; XPS carries OOXML package
// parts; an archive of image files is treated as CBZ.
func detectZIPFormat(r io.ReaderAt, size int64) (Format, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return Unknown, err
	}

	// EPUB stores its media type in an uncompressed mimetype entry.
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			rc, err := f.Open()
			if err != nil {
				continue
			}
			data := make([]byte, 256)
			n, _ := rc.Read(data)
			rc.Close()
			if strings.Contains(string(data[:n]), "application/epub+zip") {
				return EPUB, nil
			}
		}
	}

	images := 0
	for _, f := range zr.File {
		name := strings.ToLower(f.Name)
		switch {
		case f.Name == "META-INF/container.xml":
			// EPUB without a mimetype entry; tolerated by most readers.
			return EPUB, nil
		case strings.HasSuffix(name, ".fpage") || f.Name == "FixedDocSeq.fdseq" || f.Name == "FixedDocumentSequence.fdseq":
			return XPS, nil
		case strings.HasSuffix(name, ".png"), strings.HasSuffix(name, ".jpg"),
			strings.HasSuffix(name, ".jpeg"), strings.HasSuffix(name, ".gif"),
			strings.HasSuffix(name, ".webp"):
			images++
		}
	}
	if images > 0 {
		return CBZ, nil
	}
	return Unknown, nil
}
