package document

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		filename string
		want     Format
	}{
		{"book.pdf", PDF},
		{"BOOK.PDF", PDF},
		{"doc.xps", XPS},
		{"doc.oxps", XPS},
		{"scan.djvu", DJVU},
		{"scan.djv", DJVU},
		{"comic.cbz", CBZ},
		{"novel.epub", EPUB},
		{"novel.fb2", FB2},
		{"novel.mobi", MOBI},
		{"novel.azw", MOBI},
		{"notes.txt", TXT},
		{"notes.text", TXT},
		{"photo.png", PNG},
		{"photo.jpg", JPEG},
		{"photo.jpeg", JPEG},
		{"photo.gif", GIF},
		{"photo.webp", WEBP},
		{"photo.tif", TIFF},
		{"archive.tar.gz", Unknown},
		{"noext", Unknown},
	}

	for _, tt := range tests {
		if got := Detect(tt.filename); got != tt.want {
			t.Errorf("Detect(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestDetectFromMagic(t *testing.T) {
	mobi := make([]byte, 80)
	copy(mobi[60:], "BOOKMOBI")

	palmText := make([]byte, 80)
	copy(palmText[60:], "TEXtREAd")

	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf", []byte("%PDF-1.7\n"), PDF},
		{"djvu", []byte("AT&TFORM\x00\x00\x00\x10DJVM"), DJVU},
		{"png", []byte("\x89PNG\r\n\x1a\n....."), PNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}, JPEG},
		{"gif", []byte("GIF89a......"), GIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), WEBP},
		{"tiff le", []byte("II*\x00........"), TIFF},
		{"tiff be", []byte("MM\x00*........"), TIFF},
		{"mobi", mobi, MOBI},
		{"palm text", palmText, MOBI},
		{"fb2", []byte(`<?xml version="1.0"?><FictionBook xmlns="...">`), FB2},
		{"zip is ambiguous", []byte("PK\x03\x04........"), Unknown},
		{"plain text", []byte("once upon a time"), Unknown},
		{"too short", []byte("%P"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFromMagic(tt.data); got != tt.want {
				t.Errorf("DetectFromMagic = %v, want %v", got, tt.want)
			}
		})
	}
}

// buildZip assembles an in-memory ZIP archive. Entries are written in
// order; an entry named mimetype is stored uncompressed, as EPUB
// requires.
func buildZip(t *testing.T, entries map[string]string, order []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		var (
			fw  io.Writer
			err error
		)
		if name == "mimetype" {
			fw, err = w.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		} else {
			fw, err = w.Create(name)
		}
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(entries[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetectFromReaderZIP(t *testing.T) {
	epub := buildZip(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": "<container/>",
	}, []string{"mimetype", "META-INF/container.xml"})

	bareEPUB := buildZip(t, map[string]string{
		"META-INF/container.xml": "<container/>",
	}, []string{"META-INF/container.xml"})

	cbz := buildZip(t, map[string]string{
		"001.png": "fake",
		"002.jpg": "fake",
	}, []string{"001.png", "002.jpg"})

	xps := buildZip(t, map[string]string{
		"[Content_Types].xml":           "<Types/>",
		"Documents/1/Pages/1.fpage":     "<FixedPage/>",
		"FixedDocumentSequence.fdseq":   "<FixedDocumentSequence/>",
	}, []string{"[Content_Types].xml", "Documents/1/Pages/1.fpage", "FixedDocumentSequence.fdseq"})

	empty := buildZip(t, map[string]string{"readme.md": "hi"}, []string{"readme.md"})

	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"epub", epub, EPUB},
		{"epub without mimetype", bareEPUB, EPUB},
		{"cbz", cbz, CBZ},
		{"xps", xps, XPS},
		{"unrelated zip", empty, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFromReader(bytes.NewReader(tt.data), int64(len(tt.data)))
			if err != nil {
				t.Fatalf("DetectFromReader: %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectFromReader = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectFromReaderNonZip(t *testing.T) {
	data := []byte("%PDF-1.4\n%...")
	got, err := DetectFromReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("DetectFromReader: %v", err)
	}
	if got != PDF {
		t.Errorf("DetectFromReader = %v, want PDF", got)
	}
}

func TestFormatKind(t *testing.T) {
	fixed := []Format{PDF, XPS, DJVU, CBZ}
	for _, f := range fixed {
		if f.Kind() != Fixed {
			t.Errorf("%v.Kind() = %v, want Fixed", f, f.Kind())
		}
	}

	reflowable := []Format{EPUB, FB2, MOBI, TXT}
	for _, f := range reflowable {
		if f.Kind() != Reflowable {
			t.Errorf("%v.Kind() = %v, want Reflowable", f, f.Kind())
		}
	}

	images := []Format{PNG, JPEG, GIF, WEBP, TIFF}
	for _, f := range images {
		if f.Kind() != Image {
			t.Errorf("%v.Kind() = %v, want Image", f, f.Kind())
		}
	}
}

func TestFormatString(t *testing.T) {
	// Format strings are settings keys; they must stay lowercase.
	for f := PDF; f <= TIFF; f++ {
		s := f.String()
		if s == "" || s != string(bytes.ToLower([]byte(s))) {
			t.Errorf("Format(%d).String() = %q, want non-empty lowercase", int(f), s)
		}
	}
	if Unknown.String() != "unknown" {
		t.Errorf("Unknown.String() = %q", Unknown.String())
	}
}
