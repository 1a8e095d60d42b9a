package document

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidContent indicates a content stream whose blocks do not
// tile the text exactly.
var ErrInvalidContent = errors.New("document: invalid content stream")

// ObjectReplacement is the placeholder rune an image block owns in the
// content stream, so that every block covers at least one byte.
const ObjectReplacement = '￼'

// BlockKind classifies a content stream block.
type BlockKind int

const (
	// Body is a regular paragraph.
	Body BlockKind = iota
	// Heading is a section title; Level carries its depth.
	Heading
	// Preformatted is text rendered without re-wrapping beyond what
	// the viewport forces.
	Preformatted
	// ImageRef marks an embedded image, represented in the text by a
	// single object replacement character.
	ImageRef
	// Rule is a horizontal separator owning only its newline.
	Rule
)

// String returns the block kind name.
func (k BlockKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Preformatted:
		return "preformatted"
	case ImageRef:
		return "image"
	case Rule:
		return "rule"
	default:
		return "body"
	}
}

// BlockFlags carry per-block layout hints.
type BlockFlags uint8

const (
	// BreakBefore forces a page cut before the block, used for
	// chapter starts and explicit page breaks.
	BreakBefore BlockFlags = 1 << iota
)

// Block is one structural unit of a content stream: a half-open byte
// range of the stream text plus its role. A block's range includes its
// trailing newline, so consecutive blocks tile the text with no gaps.
type Block struct {
	Kind  BlockKind
	Start int
	End   int
	Level int // heading depth, 0 otherwise
	Flags BlockFlags
}

// Content is the continuous content stream of a reflowable document:
// the full text with global byte offsets, and the blocks that tile it.
// Offsets into Text are the document's coordinate system for reading
// positions, pagination and outline targets, so Content is immutable
// once built.
type Content struct {
	Text   string
	Blocks []Block
}

// Len returns the length of the stream text in bytes.
func (c *Content) Len() int { return len(c.Text) }

// BlockText returns the text a block owns, without the trailing
// newline separator.
func (c *Content) BlockText(i int) string {
	b := c.Blocks[i]
	return strings.TrimSuffix(c.Text[b.Start:b.End], "\n")
}

// BlockAt returns the index of the block containing the byte offset,
// or the last block for offsets at or past the end of the text.
// It panics on an empty stream.
func (c *Content) BlockAt(offset int) int {
	n := len(c.Blocks)
	if n == 0 {
		panic("document: BlockAt on empty content")
	}
	i := sort.Search(n, func(i int) bool { return c.Blocks[i].End > offset })
	if i == n {
		return n - 1
	}
	return i
}

// Validate checks the tiling invariant: blocks are contiguous,
// non-empty, start at offset zero and end at the end of the text.
func (c *Content) Validate() error {
	if len(c.Blocks) == 0 {
		if len(c.Text) != 0 {
			return fmt.Errorf("%w: %d bytes of text with no blocks", ErrInvalidContent, len(c.Text))
		}
		return nil
	}
	prev := 0
	for i, b := range c.Blocks {
		if b.Start != prev {
			return fmt.Errorf("%w: block %d starts at %d, want %d", ErrInvalidContent, i, b.Start, prev)
		}
		if b.End <= b.Start {
			return fmt.Errorf("%w: block %d is empty", ErrInvalidContent, i)
		}
		if b.End > len(c.Text) {
			return fmt.Errorf("%w: block %d ends at %d past text length %d", ErrInvalidContent, i, b.End, len(c.Text))
		}
		prev = b.End
	}
	if prev != len(c.Text) {
		return fmt.Errorf("%w: blocks end at %d, text length is %d", ErrInvalidContent, prev, len(c.Text))
	}
	return nil
}

// LogicalPage is one page of a paginated reflowable document: a
// half-open byte range of its content stream. Pages produced by one
// pagination tile the stream exactly.
type LogicalPage struct {
	Start, End int
}

// Ref returns the page as a renderable content-range reference.
func (p LogicalPage) Ref() PageRef { return ContentRange(p.Start, p.End) }

// ContentBuilder assembles a content stream block by block. Codecs use
// it so the tiling invariant holds by construction: every appended
// block owns its text plus a newline separator.
type ContentBuilder struct {
	text    strings.Builder
	blocks  []Block
	pending BlockFlags
}

// NewContentBuilder returns an empty builder.
func NewContentBuilder() *ContentBuilder {
	return &ContentBuilder{}
}

// Body appends a paragraph. Empty text is allowed and produces an
// empty paragraph occupying one line when laid out.
func (b *ContentBuilder) Body(text string) {
	b.add(Body, text, 0)
}

// Heading appends a section title at the given depth (1 is highest).
func (b *ContentBuilder) Heading(level int, text string) {
	if level < 1 {
		level = 1
	}
	b.add(Heading, text, level)
}

// Preformatted appends text that keeps its author line breaks. Each
// line becomes its own block so offsets stay line-accurate.
func (b *ContentBuilder) Preformatted(text string) {
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		b.add(Preformatted, line, 0)
	}
}

// Image appends an embedded image placeholder.
func (b *ContentBuilder) Image() {
	b.add(ImageRef, string(ObjectReplacement), 0)
}

// Rule appends a horizontal separator.
func (b *ContentBuilder) Rule() {
	b.add(Rule, "", 0)
}

// PageBreak forces a page cut before the next appended block. It has
// no effect if nothing follows.
func (b *ContentBuilder) PageBreak() {
	b.pending |= BreakBefore
}

// Empty reports whether nothing has been appended yet.
func (b *ContentBuilder) Empty() bool { return len(b.blocks) == 0 }

// Offset returns the stream offset at which the next appended block
// will start. Codecs record it to map structural anchors (chapter
// starts, link targets) into the stream's coordinate system.
func (b *ContentBuilder) Offset() int { return b.text.Len() }

func (b *ContentBuilder) add(kind BlockKind, text string, level int) {
	// Strip embedded newlines: block boundaries are the only line
	// structure the stream carries outside preformatted blocks.
	if kind != Preformatted {
		text = strings.ReplaceAll(text, "\n", " ")
	}
	start := b.text.Len()
	b.text.WriteString(text)
	b.text.WriteByte('\n')
	b.blocks = append(b.blocks, Block{
		Kind:  kind,
		Start: start,
		End:   b.text.Len(),
		Level: level,
		Flags: b.pending,
	})
	b.pending = 0
}

// Build returns the assembled content stream. The builder must not be
// used afterward.
func (b *ContentBuilder) Build() *Content {
	return &Content{Text: b.text.String(), Blocks: b.blocks}
}
