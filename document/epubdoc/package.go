package epubdoc

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
)

// Structural errors of the EPUB package.
var (
	ErrInvalidArchive   = errors.New("epub: invalid or corrupted archive")
	ErrNoContainer      = errors.New("epub: missing META-INF/container.xml")
	ErrInvalidContainer = errors.New("epub: invalid container.xml")
	ErrNoPackage        = errors.New("epub: missing package document")
	ErrInvalidPackage   = errors.New("epub: invalid package document")
	ErrEmptySpine       = errors.New("epub: no content in spine")
	ErrMissingContent   = errors.New("epub: referenced content file not found")
)

// pkg is the parsed package document, reduced to what rendering needs:
// identity metadata, the manifest for href resolution, and the spine.
type pkg struct {
	version  string
	title    string
	creators []string
	language string
	manifest map[string]manifestItem // keyed by ID
	spine    []spineItem
	tocID    string // NCX manifest ID (EPUB 2)
}

type manifestItem struct {
	id         string
	href       string
	mediaType  string
	properties []string
}

type spineItem struct {
	idref  string
	linear bool
}

// hasProperty reports whether the manifest item carries the property,
// e.g. "nav" on the EPUB 3 navigation document.
func (m manifestItem) hasProperty(p string) bool {
	for _, have := range m.properties {
		if have == p {
			return true
		}
	}
	return false
}

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

type packageXML struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Metadata struct {
		Title    []string `xml:"title"`
		Creator  []string `xml:"creator"`
		Language []string `xml:"language"`
	} `xml:"metadata"`
	Manifest struct {
		Items []struct {
			ID         string `xml:"id,attr"`
			Href       string `xml:"href,attr"`
			MediaType  string `xml:"media-type,attr"`
			Properties string `xml:"properties,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Toc      string `xml:"toc,attr"`
		ItemRefs []struct {
			IDRef  string `xml:"idref,attr"`
			Linear string `xml:"linear,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// archive wraps the zip with name-keyed access, since hrefs resolve to
// exact archive paths.
type archive struct {
	files map[string]*zip.File
}

func newArchive(zr *zip.Reader) *archive {
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	return &archive{files: files}
}

func (a *archive) has(name string) bool {
	_, ok := a.files[name]
	return ok
}

func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, ErrMissingContent
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// parseContainer locates the package document path from
// META-INF/container.xml, preferring the OEBPS rootfile.
func parseContainer(a *archive) (string, error) {
	data, err := a.read("META-INF/container.xml")
	if err != nil {
		return "", ErrNoContainer
	}

	var c containerXML
	if err := xml.Unmarshal(data, &c); err != nil {
		return "", ErrInvalidContainer
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.FullPath != "" && (rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "") {
			return rf.FullPath, nil
		}
	}
	if len(c.Rootfiles.Rootfile) > 0 && c.Rootfiles.Rootfile[0].FullPath != "" {
		return c.Rootfiles.Rootfile[0].FullPath, nil
	}
	return "", ErrInvalidContainer
}

// parsePackage reads the OPF at opfPath and returns the reduced package
// plus the base directory spine hrefs resolve against.
func parsePackage(a *archive, opfPath string) (*pkg, string, error) {
	data, err := a.read(opfPath)
	if err != nil {
		return nil, "", ErrNoPackage
	}

	var px packageXML
	if err := xml.Unmarshal(data, &px); err != nil {
		return nil, "", ErrInvalidPackage
	}

	p := &pkg{
		version:  px.Version,
		manifest: make(map[string]manifestItem, len(px.Manifest.Items)),
		tocID:    px.Spine.Toc,
	}
	if len(px.Metadata.Title) > 0 {
		p.title = strings.TrimSpace(px.Metadata.Title[0])
	}
	for _, c := range px.Metadata.Creator {
		if c = strings.TrimSpace(c); c != "" {
			p.creators = append(p.creators, c)
		}
	}
	if len(px.Metadata.Language) > 0 {
		p.language = strings.TrimSpace(px.Metadata.Language[0])
	}

	for _, it := range px.Manifest.Items {
		mi := manifestItem{id: it.ID, href: it.Href, mediaType: it.MediaType}
		if it.Properties != "" {
			mi.properties = strings.Fields(it.Properties)
		}
		p.manifest[it.ID] = mi
	}

	for _, ref := range px.Spine.ItemRefs {
		p.spine = append(p.spine, spineItem{
			idref:  ref.IDRef,
			linear: ref.Linear != "no",
		})
	}
	if len(p.spine) == 0 {
		return nil, "", ErrEmptySpine
	}

	baseDir := path.Dir(opfPath)
	if baseDir == "." {
		baseDir = ""
	}
	return p, baseDir, nil
}

// resolveHref joins a manifest href onto the package base directory and
// splits off any fragment. Percent-encoded names are unescaped; a bad
// escape keeps the href as written, matching how readers treat sloppy
// files.
func resolveHref(baseDir, href string) (name, fragment string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href, fragment = href[:i], href[i+1:]
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	if baseDir == "" {
		return path.Clean(href), fragment
	}
	return path.Join(baseDir, href), fragment
}
