package reflow

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/OGKevin/plato/document"
)

func testParams(w, h int) document.LayoutParams {
	return document.LayoutParams{
		Width:      w,
		Height:     h,
		FontFamily: "test",
		FontSize:   20,
		LineHeight: 1,
	}
}

func buildContent(t *testing.T, build func(b *document.ContentBuilder)) *document.Content {
	t.Helper()
	b := document.NewContentBuilder()
	build(b)
	c := b.Build()
	if err := c.Validate(); err != nil {
		t.Fatalf("fixture content invalid: %v", err)
	}
	return c
}

func checkPageTiling(t *testing.T, c *document.Content, pm *PageMap) {
	t.Helper()
	if pm.Count() == 0 {
		t.Fatal("page map has no pages")
	}
	if first := pm.Page(0); first.Start != 0 {
		t.Errorf("first page starts at %d, want 0", first.Start)
	}
	for i := 1; i < pm.Count(); i++ {
		if pm.Page(i).Start != pm.Page(i-1).End {
			t.Errorf("page %d starts at %d, previous ends at %d",
				i, pm.Page(i).Start, pm.Page(i-1).End)
		}
	}
	if last := pm.Page(pm.Count() - 1); last.End != c.Len() {
		t.Errorf("last page ends at %d, want %d", last.End, c.Len())
	}
}

var m10 = runeMeasurer{w: 10, lh: 20, asc: 16}

func TestPaginateShortDocumentSinglePage(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("hello world")
	})

	pm, err := Paginate(c, m10, testParams(600, 800))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() != 1 {
		t.Fatalf("Count = %d, want 1", pm.Count())
	}
	checkPageTiling(t, c, pm)
}

func TestPaginateCoverage(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Heading(1, "A Longer Document")
		for i := 0; i < 8; i++ {
			b.Body(strings.Repeat("word ", 12))
		}
	})

	pm, err := Paginate(c, m10, testParams(200, 120))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() < 2 {
		t.Fatalf("Count = %d, want several pages at this viewport", pm.Count())
	}
	checkPageTiling(t, c, pm)
}

func TestPaginateDeterministic(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Heading(1, "Title")
		b.Body(strings.Repeat("lorem ipsum dolor sit amet ", 20))
		b.Body("short tail")
	})
	params := testParams(240, 160)

	first, err := Paginate(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Paginate(c, m10, params)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first.pages, again.pages) {
			t.Fatalf("run %d produced different pages:\n%v\n%v", i, first.pages, again.pages)
		}
	}
}

func TestPaginateCutsOnlyAtLineStarts(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		for i := 0; i < 6; i++ {
			b.Body(strings.Repeat("alpha beta gamma ", 6))
		}
	})
	params := testParams(300, 100)

	lines, err := Layout(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}
	starts := make(map[int]bool, len(lines))
	for _, ln := range lines {
		starts[ln.Start] = true
	}

	pm, err := Paginate(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < pm.Count(); i++ {
		if !starts[pm.Page(i).Start] {
			t.Errorf("page %d starts at %d, which is not a line start", i, pm.Page(i).Start)
		}
	}
	checkPageTiling(t, c, pm)
}

func TestPaginateEmptyContent(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {})

	pm, err := Paginate(c, m10, testParams(600, 800))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() != 1 {
		t.Fatalf("Count = %d, want a single empty page", pm.Count())
	}
	if p := pm.Page(0); p.Start != 0 || p.End != 0 {
		t.Errorf("page = %+v, want [0:0)", p)
	}
}

func TestPaginateEmptyParagraphOccupiesALine(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("aa")
		b.Body("")
		b.Body("bb")
	})

	// Two 20px lines fit per page. The empty paragraph takes the
	// second slot of page one, pushing "bb" onto page two.
	pm, err := Paginate(c, m10, testParams(600, 40))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() != 2 {
		t.Fatalf("Count = %d, want 2", pm.Count())
	}
	checkPageTiling(t, c, pm)
}

func TestPaginateOversizedUnitGetsOwnPage(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("before")
		b.Image()
		b.Body("after")
	})

	// The image placeholder reserves 8 line heights (160px), taller
	// than the 100px page, so it must stand alone without being cut.
	pm, err := Paginate(c, m10, testParams(600, 100))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() != 3 {
		t.Fatalf("Count = %d, want 3 (text, image, text)", pm.Count())
	}
	checkPageTiling(t, c, pm)

	img := pm.Page(1)
	if got := c.Text[img.Start:img.End]; !strings.ContainsRune(got, rune(document.ObjectReplacement)) {
		t.Errorf("middle page %q does not hold the image placeholder", got)
	}
}

func TestPaginateBreakBefore(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("chapter one text")
		b.PageBreak()
		b.Heading(1, "Chapter Two")
		b.Body("chapter two text")
	})

	// Everything would fit on one tall page; the explicit break still
	// forces a cut before the heading.
	pm, err := Paginate(c, m10, testParams(600, 2000))
	if err != nil {
		t.Fatal(err)
	}
	if pm.Count() != 2 {
		t.Fatalf("Count = %d, want 2", pm.Count())
	}
	heading := c.Blocks[1]
	if pm.Page(1).Start != heading.Start {
		t.Errorf("page 2 starts at %d, want the heading start %d", pm.Page(1).Start, heading.Start)
	}
}

func TestPaginateMorePagesAtLargerSize(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		for i := 0; i < 10; i++ {
			b.Body(strings.Repeat("the quick brown fox ", 8))
		}
	})

	smallFont := runeMeasurer{w: 10, lh: 20, asc: 16}
	largeFont := runeMeasurer{w: 14, lh: 28, asc: 22}

	small, err := Paginate(c, smallFont, testParams(400, 600))
	if err != nil {
		t.Fatal(err)
	}
	paramsLarge := testParams(400, 600)
	paramsLarge.FontSize = 28
	large, err := Paginate(c, largeFont, paramsLarge)
	if err != nil {
		t.Fatal(err)
	}
	if large.Count() < small.Count() {
		t.Errorf("pages shrank with a larger font: %d -> %d", small.Count(), large.Count())
	}
}

func TestPaginateMeasurementFailure(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("text")
	})
	_, err := Paginate(c, failMeasurer{}, testParams(600, 800))
	if !errors.Is(err, ErrMeasurement) {
		t.Errorf("err = %v, want ErrMeasurement", err)
	}
}

func TestLayoutHeadingScale(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Heading(1, "aaaa bbbb")
	})
	params := testParams(100, 800)

	lines, err := Layout(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}
	// At scale 1.6 the effective width is 62.5px: "aaaa" fits, the
	// pair does not, so the heading wraps where body text would not.
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %+v", len(lines), lines)
	}
	for _, ln := range lines {
		if ln.Height != 32 {
			t.Errorf("heading line height = %v, want 32", ln.Height)
		}
		if ln.FontSize != 32 {
			t.Errorf("heading font size = %v, want 32", ln.FontSize)
		}
	}
	if lines[0].Width != 64 {
		t.Errorf("line 1 width = %v, want 64 (scaled)", lines[0].Width)
	}
}

func TestLayoutImageAndRuleLines(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Image()
		b.Rule()
	})
	lines, err := Layout(c, m10, testParams(600, 800))
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Kind != document.ImageRef || lines[0].Height != 160 {
		t.Errorf("image line = %+v, want ImageRef at 8 line heights", lines[0])
	}
	if lines[1].Kind != document.Rule || lines[1].Height != 20 {
		t.Errorf("rule line = %+v, want Rule at one line height", lines[1])
	}
}

func TestLayoutRangeReproducesPages(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Heading(1, "Title")
		for i := 0; i < 6; i++ {
			b.Body(strings.Repeat("some body copy here ", 5))
		}
	})
	params := testParams(260, 140)

	all, err := Layout(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}
	pm, err := Paginate(c, m10, params)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < pm.Count(); i++ {
		page := pm.Page(i)
		var want []Line
		for _, ln := range all {
			if ln.Start >= page.Start && ln.Start < page.End {
				want = append(want, ln)
			}
		}
		got, err := LayoutRange(c, page.Start, page.End, m10, params)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("page %d: LayoutRange diverged from full layout\ngot  %+v\nwant %+v", i, got, want)
		}
	}
}

func TestLocateSurvivesRepagination(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		for i := 0; i < 12; i++ {
			b.Body(strings.Repeat("position anchor text ", 6))
		}
	})

	// Remember the offset of a word in the middle of the document.
	offset := strings.Index(c.Text, "anchor")
	offset = strings.Index(c.Text[offset+1:], "anchor") + offset + 1 // second occurrence

	narrow, err := Paginate(c, m10, testParams(220, 200))
	if err != nil {
		t.Fatal(err)
	}
	wide, err := Paginate(c, m10, testParams(500, 200))
	if err != nil {
		t.Fatal(err)
	}

	for _, pm := range []*PageMap{narrow, wide} {
		i := pm.Locate(offset)
		p := pm.Page(i)
		if offset < p.Start || offset >= p.End {
			t.Errorf("Locate(%d) = page %d [%d:%d), offset outside", offset, i, p.Start, p.End)
		}
	}
}

func TestLocateClamps(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("only page")
	})
	pm, err := Paginate(c, m10, testParams(600, 800))
	if err != nil {
		t.Fatal(err)
	}
	if got := pm.Locate(-5); got != 0 {
		t.Errorf("Locate(-5) = %d, want 0", got)
	}
	if got := pm.Locate(c.Len() + 100); got != pm.Count()-1 {
		t.Errorf("Locate past end = %d, want last page", got)
	}
}

func TestFixedMap(t *testing.T) {
	pm := FixedMap(5, 42)

	if !pm.Fixed() {
		t.Error("FixedMap is not Fixed")
	}
	if pm.Count() != 5 {
		t.Errorf("Count = %d, want 5", pm.Count())
	}
	if pm.Params() != 42 {
		t.Errorf("Params = %d, want 42", pm.Params())
	}

	ref, err := pm.Ref(2)
	if err != nil {
		t.Fatal(err)
	}
	if ref != document.PageIndex(2) {
		t.Errorf("Ref(2) = %+v, want page index 2", ref)
	}
	if _, err := pm.Ref(5); err == nil {
		t.Error("Ref(5) on a 5-page map did not fail")
	}
	if _, err := pm.Ref(-1); err == nil {
		t.Error("Ref(-1) did not fail")
	}

	if got := pm.Locate(99); got != 4 {
		t.Errorf("Locate(99) = %d, want clamp to 4", got)
	}
}

func TestReflowableRef(t *testing.T) {
	c := buildContent(t, func(b *document.ContentBuilder) {
		b.Body("some text")
	})
	pm, err := Paginate(c, m10, testParams(600, 800))
	if err != nil {
		t.Fatal(err)
	}
	ref, err := pm.Ref(0)
	if err != nil {
		t.Fatal(err)
	}
	if !ref.IsRange() {
		t.Error("reflowable Ref is not a content range")
	}
	if ref.Start != 0 || ref.End != c.Len() {
		t.Errorf("Ref(0) = %+v, want the whole stream", ref)
	}
}
