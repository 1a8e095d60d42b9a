package reflow

import (
	"fmt"
	"sort"

	"github.com/OGKevin/plato/document"
)

// PageMap is the result of one pagination: an ordered page sequence
// bound to the layout parameters that produced it. For fixed-layout
// documents the map is the identity over physical pages. PageMap is
// immutable and safe for concurrent use.
type PageMap struct {
	pages  []document.LogicalPage // reflowable pages, nil for fixed maps
	fixed  int                    // physical page count, 0 for reflowable maps
	params uint64
}

// FixedMap returns the identity page map for a fixed-layout document
// with n physical pages.
func FixedMap(n int, params uint64) *PageMap {
	if n < 0 {
		n = 0
	}
	return &PageMap{fixed: n, params: params}
}

// Fixed reports whether the map addresses physical pages.
func (m *PageMap) Fixed() bool { return m.pages == nil }

// Count returns the number of pages.
func (m *PageMap) Count() int {
	if m.Fixed() {
		return m.fixed
	}
	return len(m.pages)
}

// Params returns the fingerprint of the layout parameters the map was
// computed under.
func (m *PageMap) Params() uint64 { return m.params }

// Ref returns the renderable reference for page i.
func (m *PageMap) Ref(i int) (document.PageRef, error) {
	if i < 0 || i >= m.Count() {
		return document.PageRef{}, fmt.Errorf("reflow: page %d of %d", i, m.Count())
	}
	if m.Fixed() {
		return document.PageIndex(i), nil
	}
	return m.pages[i].Ref(), nil
}

// Page returns the content range of page i of a reflowable map.
func (m *PageMap) Page(i int) document.LogicalPage {
	return m.pages[i]
}

// Locate returns the index of the page containing the content offset,
// clamped to the first and last page for offsets outside the stream.
// This is how a reading position survives re-pagination: remember the
// offset, repaginate, locate. For fixed maps the offset is already a
// page index and is only clamped.
func (m *PageMap) Locate(offset int) int {
	n := m.Count()
	if n == 0 {
		return 0
	}
	if m.Fixed() {
		return clamp(offset, 0, n-1)
	}
	i := sort.Search(n, func(i int) bool { return m.pages[i].End > offset })
	return clamp(i, 0, n-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
