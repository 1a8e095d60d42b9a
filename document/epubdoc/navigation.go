package epubdoc

import (
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/OGKevin/plato/document"
)

// rawEntry is a navigation entry before its href is resolved to a
// content stream offset.
type rawEntry struct {
	title    string
	href     string
	children []rawEntry
}

type ncxDocument struct {
	XMLName xml.Name `xml:"ncx"`
	NavMap  struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// buildOutline assembles the table of contents: the EPUB 3 nav document
// when the manifest declares one, the EPUB 2 NCX otherwise, and a
// per-chapter outline when neither parses.
func (ld *loader) buildOutline() []document.TocEntry {
	if item, ok := ld.findNavDoc(); ok {
		if entries := ld.parseNavSource(item, parseNavDoc); entries != nil {
			return entries
		}
	}
	if item, ok := ld.findNCX(); ok {
		if entries := ld.parseNavSource(item, parseNCX); entries != nil {
			return entries
		}
	}
	return ld.spineOutline()
}

func (ld *loader) parseNavSource(item manifestItem, parse func([]byte) ([]rawEntry, error)) []document.TocEntry {
	name, _ := resolveHref(ld.baseDir, item.href)
	data, err := ld.a.read(name)
	if err != nil {
		return nil
	}
	raw, err := parse(data)
	if err != nil || len(raw) == 0 {
		return nil
	}
	// Hrefs inside a navigation document are relative to its location.
	dir := path.Dir(name)
	if dir == "." {
		dir = ""
	}
	return ld.resolveEntries(raw, dir)
}

func (ld *loader) findNavDoc() (manifestItem, bool) {
	for _, item := range ld.pkg.manifest {
		if item.hasProperty("nav") {
			return item, true
		}
	}
	return manifestItem{}, false
}

func (ld *loader) findNCX() (manifestItem, bool) {
	if ld.pkg.tocID != "" {
		if item, ok := ld.pkg.manifest[ld.pkg.tocID]; ok {
			return item, true
		}
	}
	for _, item := range ld.pkg.manifest {
		if item.mediaType == "application/x-dtbncx+xml" {
			return item, true
		}
	}
	return manifestItem{}, false
}

func (ld *loader) resolveEntries(raw []rawEntry, dir string) []document.TocEntry {
	entries := make([]document.TocEntry, 0, len(raw))
	for _, r := range raw {
		e := document.TocEntry{
			Title:    r.title,
			Target:   document.ContentOffset(ld.resolveTarget(r.href, dir)),
			Children: ld.resolveEntries(r.children, dir),
		}
		if e.Title == "" && len(e.Children) == 0 {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil
	}
	return entries
}

// resolveTarget maps an entry href to a stream offset: the anchored
// element when the fragment is known, the chapter start otherwise, and
// the document start when nothing matches.
func (ld *loader) resolveTarget(href, dir string) int {
	if href == "" {
		return 0
	}
	name, frag := resolveHref(dir, href)
	if frag != "" {
		if off, ok := ld.anchors[name+"#"+frag]; ok {
			return off
		}
	}
	if off, ok := ld.chapterStart[name]; ok {
		return off
	}
	return 0
}

// spineOutline lists the chapters themselves, titled by their first
// heading or, failing that, their file name.
func (ld *loader) spineOutline() []document.TocEntry {
	entries := make([]document.TocEntry, 0, len(ld.chapters))
	for _, ch := range ld.chapters {
		title := ch.title
		if title == "" {
			title = path.Base(ch.name)
		}
		entries = append(entries, document.TocEntry{
			Title:  title,
			Target: document.ContentOffset(ch.start),
		})
	}
	return entries
}

// parseNavDoc reads an EPUB 3 navigation document: the nav element
// typed "toc" and its nested ordered lists.
func parseNavDoc(data []byte) ([]rawEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	nav := findTocNav(doc)
	if nav == nil {
		return nil, ErrMissingContent
	}
	ol := findElement(nav, "ol")
	if ol == nil {
		return nil, nil
	}
	return parseNavList(ol), nil
}

func findTocNav(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "nav" {
		for _, attr := range n.Attr {
			if (attr.Key == "epub:type" || attr.Key == "type") && strings.Contains(attr.Val, "toc") {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTocNav(c); found != nil {
			return found
		}
	}
	return nil
}

func parseNavList(ol *html.Node) []rawEntry {
	var entries []rawEntry
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		var e rawEntry
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "a":
				e.title = flowText(c)
				for _, attr := range c.Attr {
					if attr.Key == "href" {
						e.href = attr.Val
					}
				}
			case "span":
				if e.title == "" {
					e.title = flowText(c)
				}
			case "ol":
				e.children = parseNavList(c)
			}
		}
		if e.title != "" || e.href != "" || len(e.children) > 0 {
			entries = append(entries, e)
		}
	}
	return entries
}

// parseNCX reads an EPUB 2 NCX navigation map.
func parseNCX(data []byte) ([]rawEntry, error) {
	var ncx ncxDocument
	if err := xml.Unmarshal(data, &ncx); err != nil {
		return nil, err
	}
	return convertNavPoints(ncx.NavMap.NavPoints), nil
}

func convertNavPoints(points []ncxNavPoint) []rawEntry {
	entries := make([]rawEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, rawEntry{
			title:    strings.TrimSpace(p.Label),
			href:     p.Content.Src,
			children: convertNavPoints(p.Children),
		})
	}
	return entries
}
