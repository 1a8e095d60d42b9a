package epubdoc

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"

	"github.com/OGKevin/plato/document"
)

// Elements whose subtrees never contribute reading content.
var skipTags = map[string]bool{
	"script": true, "style": true, "head": true, "title": true,
	"meta": true, "link": true, "template": true, "noscript": true,
	"iframe": true, "object": true, "embed": true,
}

// Elements that interrupt inline flow. Everything else nests inside a
// paragraph.
var blockTags = map[string]bool{
	"html": true, "body": true,
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"aside": true, "header": true, "footer": true, "nav": true, "figure": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "li": true, "dl": true, "dt": true, "dd": true,
	"table": true, "thead": true, "tbody": true, "tfoot": true, "tr": true,
	"td": true, "th": true, "caption": true,
	"blockquote": true, "pre": true, "hr": true, "figcaption": true,
	"img": true, "image": true, "svg": true,
}

// chapterConverter appends one XHTML chapter to the content stream and
// records the stream offset of every id attribute it passes, so link
// fragments resolve to positions.
type chapterConverter struct {
	b       *document.ContentBuilder
	anchors map[string]int
	name    string // archive path of the chapter, prefix of anchor keys
}

// convertChapter parses one spine document and appends its blocks.
func convertChapter(b *document.ContentBuilder, anchors map[string]int, name string, data []byte) error {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return err
	}
	cv := &chapterConverter{b: b, anchors: anchors, name: name}
	root := findElement(doc, "body")
	if root == nil {
		root = doc
	}
	cv.walkContainer(root)
	return nil
}

func (cv *chapterConverter) traverse(n *html.Node) {
	if n.Type != html.ElementNode {
		if n.Type == html.DocumentNode {
			cv.walkContainer(n)
		}
		return
	}
	if skipTags[n.Data] {
		return
	}
	cv.anchorNode(n)

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		cv.anchorDescendants(n)
		if text := flowText(n); text != "" {
			cv.b.Heading(int(n.Data[1]-'0'), text)
		}

	case "pre":
		cv.anchorDescendants(n)
		if text := strings.Trim(rawText(n), "\n"); text != "" {
			cv.b.Preformatted(text)
		}

	case "img", "image", "svg":
		cv.b.Image()

	case "hr":
		cv.b.Rule()

	case "p", "blockquote", "li", "dt", "dd", "figcaption", "caption", "td", "th":
		if hasBlockDescendant(n) {
			cv.walkContainer(n)
			return
		}
		cv.anchorDescendants(n)
		if text := flowText(n); text != "" {
			cv.b.Body(text)
		}

	default:
		cv.walkContainer(n)
	}
}

// walkContainer traverses a block container, gathering runs of inline
// children into implicit paragraphs between the real block children.
func (cv *chapterConverter) walkContainer(n *html.Node) {
	var inline strings.Builder
	flush := func() {
		if text := collapse(inline.String()); text != "" {
			cv.b.Body(text)
		}
		inline.Reset()
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			inline.WriteString(c.Data)
			continue
		case html.ElementNode:
			if skipTags[c.Data] {
				continue
			}
			if !blockTags[c.Data] && !hasBlockDescendant(c) {
				cv.anchorNode(c)
				cv.anchorDescendants(c)
				inlineText(c, &inline)
				continue
			}
		default:
			// Comments, doctypes.
			continue
		}
		flush()
		cv.traverse(c)
	}
	flush()
}

// anchorNode records the element's id at the current stream offset.
func (cv *chapterConverter) anchorNode(n *html.Node) {
	for _, a := range n.Attr {
		if a.Key == "id" && a.Val != "" {
			cv.anchors[cv.name+"#"+a.Val] = cv.b.Offset()
		}
	}
}

// anchorDescendants records the ids nested inside a subtree that is
// emitted wholesale, all at the subtree's block offset.
func (cv *chapterConverter) anchorDescendants(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			cv.anchorNode(c)
			cv.anchorDescendants(c)
		}
	}
}

// flowText extracts the inline text of a subtree with HTML whitespace
// collapsed to single spaces.
func flowText(n *html.Node) string {
	var sb strings.Builder
	inlineText(n, &sb)
	return collapse(sb.String())
}

// inlineText concatenates the text of a subtree. Explicit line breaks
// become spaces once the text reflows, so br contributes a separator.
func inlineText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
		if n.Data == "br" {
			sb.WriteByte(' ')
			return
		}
	case html.DocumentNode:
	default:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineText(c, sb)
	}
}

// rawText concatenates subtree text preserving author line breaks, for
// preformatted blocks.
func rawText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipTags[n.Data] {
				return
			}
			if n.Data == "br" {
				sb.WriteByte('\n')
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (blockTags[c.Data] || hasBlockDescendant(c)) {
			return true
		}
	}
	return false
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
