package plato

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/framebuffer"
	"github.com/OGKevin/plato/internal/textpage"
	"github.com/OGKevin/plato/reflow"
	"github.com/OGKevin/plato/render"
	"github.com/OGKevin/plato/settings"
)

// ErrSessionClosed is returned by session operations after Close.
var ErrSessionClosed = errors.New("plato: session closed")

// Session is one open document bound to a display. It owns the page
// map, the render cache and the compositor, and keeps the reading
// position stable across layout changes.
//
// Navigation is asynchronous: GoTo, Next, Prev and SetLocation update
// the position immediately, render in the background and hand the
// frame to the compositor when it is ready. Rapid navigation coalesces
// to the latest target; superseded renders are kept in the cache but
// never shown. A failed render is logged and leaves the display
// unchanged, and the session stays navigable. Events reports what
// actually reached the display.
//
// All methods are safe for concurrent use.
type Session struct {
	doc    document.Document
	fb     framebuffer.Framebuffer
	fonts  *font.Library
	prefs  *settings.Settings
	log    *slog.Logger
	dpi    float64
	dither bool

	cache *render.Cache
	comp  *framebuffer.Compositor

	mu      sync.Mutex
	params  document.LayoutParams
	pages   *reflow.PageMap
	content *document.Content // reflowable stream, parsed once
	current int
	offset  int // content offset, or page index for fixed maps
	pinned  *render.Key
	shown   bool

	seq    atomic.Uint64
	wg     sync.WaitGroup
	closed atomic.Bool
}

// GoTo displays the given page and moves the reading position to its
// start. The render happens in the background; Events reports when the
// page reaches the display.
func (s *Session) GoTo(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if page < 0 || page >= s.pages.Count() {
		return fmt.Errorf("plato: page %d of %d", page, s.pages.Count())
	}
	s.offset = s.pageStart(page)
	s.showLocked(page)
	return nil
}

// Next advances one page. At the last page it does nothing.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.current+1 >= s.pages.Count() {
		return nil
	}
	s.offset = s.pageStart(s.current + 1)
	s.showLocked(s.current + 1)
	return nil
}

// Prev goes back one page. At the first page it does nothing.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.current == 0 {
		return nil
	}
	s.offset = s.pageStart(s.current - 1)
	s.showLocked(s.current - 1)
	return nil
}

// Location returns the reading position: a content offset for
// reflowable documents and a page index for fixed ones. The value is
// stable across layout changes, so it can be persisted and restored
// with SetLocation.
func (s *Session) Location() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SetLocation navigates to the page containing pos and anchors the
// reading position at exactly pos rather than the page start.
func (s *Session) SetLocation(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.offset = s.clampPos(pos)
	s.showLocked(s.pages.Locate(s.offset))
	return nil
}

// GoToTarget follows an outline target: content references resolve
// through the current pagination, physical references address the page
// directly.
func (s *Session) GoToTarget(ref document.PageRef) error {
	if ref.IsRange() {
		return s.SetLocation(ref.Start)
	}
	return s.GoTo(ref.Page)
}

// SetLayout applies new layout parameters. The viewport always comes
// from the framebuffer, so only typography, zoom, crop and rotation
// are taken from params. Reflowable documents are repaginated and the
// reading position is re-anchored in the new map; when pagination
// fails the previous layout stays in effect and the error is returned.
func (s *Session) SetLayout(params document.LayoutParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}

	b := s.fb.Bounds()
	params.Width = b.Width()
	params.Height = b.Height()

	pages, err := s.paginate(params)
	if err != nil {
		return err
	}

	s.params = params
	s.pages = pages
	s.cache.SetCurrentParams(params.Fingerprint())
	s.showLocked(pages.Locate(s.offset))
	return nil
}

// Layout returns the layout parameters currently in effect.
func (s *Session) Layout() document.LayoutParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// CurrentPage returns the current page index and the page count under
// the current layout.
func (s *Session) CurrentPage() (page, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.pages.Count()
}

// Metadata returns the document's metadata.
func (s *Session) Metadata() document.Metadata {
	return s.doc.Metadata()
}

// Outline returns the document's table of contents. Feed entry targets
// to GoToTarget to navigate.
func (s *Session) Outline() ([]document.TocEntry, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	return s.doc.Outline()
}

// Text returns the selectable text of the given page under the current
// layout.
func (s *Session) Text(page int) ([]document.BoundedText, error) {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if page < 0 || page >= s.pages.Count() {
		n := s.pages.Count()
		s.mu.Unlock()
		return nil, fmt.Errorf("plato: page %d of %d", page, n)
	}
	ref, err := s.pages.Ref(page)
	params := s.params
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.doc.Text(ref, params)
}

// Events returns the display event stream. The channel is closed by
// Close; slow consumers lose events rather than stalling refreshes.
func (s *Session) Events() <-chan framebuffer.Event {
	return s.comp.Events()
}

// CacheStats returns render cache counters.
func (s *Session) CacheStats() render.Stats {
	return s.cache.Stats()
}

// Close waits for in-flight renders, shuts down the compositor and the
// cache and closes the document. Safe to call more than once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.seq.Add(1) // supersede anything still rendering
	s.wg.Wait()
	s.comp.Close()
	s.cache.Close()
	return s.doc.Close()
}

// layoutDefaults derives the initial layout from the framebuffer
// bounds and the reader settings. Typography settings are given in
// points and millimeters and converted at the session's density.
func (s *Session) layoutDefaults() document.LayoutParams {
	b := s.fb.Bounds()
	p := document.DefaultLayoutParams(b.Width(), b.Height(), s.dpi)
	r := s.prefs.Reader
	if r.FontFamily != "" {
		p.FontFamily = r.FontFamily
	}
	if r.FontSize > 0 {
		p.FontSize = r.FontSize * s.dpi / 72
	}
	if r.LineHeight > 0 {
		p.LineHeight = r.LineHeight
	}
	if r.MarginWidth >= 0 {
		p.MarginWidth = int(float64(r.MarginWidth)*s.dpi/25.4 + 0.5)
	}
	if !r.ContinuousFitToWidth {
		p.Zoom = document.ZoomFitPage
	}
	return p
}

// paginate builds the page map for params: a measured pagination of
// the content stream for reflowable documents, the identity map over
// physical pages otherwise.
func (s *Session) paginate(params document.LayoutParams) (*reflow.PageMap, error) {
	if s.doc.Format().Kind() == document.Reflowable {
		if s.content == nil {
			src, ok := s.doc.(document.ContentSource)
			if !ok {
				return nil, fmt.Errorf("%w: %s codec exposes no content stream", document.ErrUnsupported, s.doc.Format())
			}
			c, err := src.Content()
			if err != nil {
				return nil, err
			}
			s.content = c
		}
		return reflow.Paginate(s.content, textpage.Measurer(s.fonts, params), params)
	}
	n, err := s.doc.PageCount()
	if err != nil {
		return nil, err
	}
	return reflow.FixedMap(n, params.Fingerprint()), nil
}

// pageStart returns the reading position for the start of a page.
func (s *Session) pageStart(page int) int {
	if s.pages.Fixed() {
		return page
	}
	return s.pages.Page(page).Start
}

// clampPos clamps a reading position to the document's range.
func (s *Session) clampPos(pos int) int {
	n := s.pages.Count()
	if n == 0 || pos < 0 {
		return 0
	}
	hi := n - 1
	if !s.pages.Fixed() {
		hi = s.pages.Page(n - 1).End - 1
	}
	if hi < 0 {
		hi = 0
	}
	if pos > hi {
		return hi
	}
	return pos
}

// showLocked starts an asynchronous render-and-display of page. The
// sequence number it takes makes rapid navigation latest-wins: a frame
// is only submitted if no newer navigation started since. Callers hold
// s.mu.
func (s *Session) showLocked(page int) {
	s.current = page
	seq := s.seq.Add(1)
	pages := s.pages
	params := s.params

	ref, err := pages.Ref(page)
	if err != nil {
		s.log.Warn("resolving page", "page", page, "err", err)
		return
	}
	key := render.NewKey(s.doc, ref, params)
	rf := s.renderWith(params)

	s.cache.Pin(key)
	s.wg.Add(1)
	go s.show(seq, page, key, pages, params, rf)
}

// show runs in the background: it renders (or fetches) the frame,
// submits it to the compositor unless superseded, swaps the displayed
// pin to the new key and prefetches the neighbor pages.
func (s *Session) show(seq uint64, page int, key render.Key, pages *reflow.PageMap, params document.LayoutParams, rf render.RenderFunc) {
	defer s.wg.Done()

	frame, err := s.cache.GetOrRender(context.Background(), key, rf)
	if err != nil {
		s.cache.Unpin(key)
		s.log.Warn("rendering page", "page", page, "ref", key.Ref.String(), "err", err)
		return
	}

	s.mu.Lock()
	if s.closed.Load() || s.seq.Load() != seq {
		s.mu.Unlock()
		s.cache.Unpin(key)
		return
	}
	prev := s.pinned
	k := key
	s.pinned = &k
	hint := framebuffer.HintPage
	if !s.shown {
		hint = framebuffer.HintDocumentSwitch
		s.shown = true
	}
	s.comp.Submit(framebuffer.Request{Key: key, Frame: frame, Hint: hint, Dither: s.dither})
	s.mu.Unlock()

	// The displayed page holds one pin; release the previous holder.
	// When the same page is shown twice the extra pin taken above is
	// the one released.
	if prev != nil {
		s.cache.Unpin(*prev)
	}

	s.prefetchNeighbors(page, pages, params, rf)
}

// prefetchNeighbors queues the next and previous pages for background
// rendering, next page first.
func (s *Session) prefetchNeighbors(page int, pages *reflow.PageMap, params document.LayoutParams, rf render.RenderFunc) {
	var keys []render.Key
	for _, n := range []int{page + 1, page - 1} {
		if n < 0 || n >= pages.Count() {
			continue
		}
		ref, err := pages.Ref(n)
		if err != nil {
			continue
		}
		keys = append(keys, render.NewKey(s.doc, ref, params))
	}
	if len(keys) > 0 {
		s.cache.Prefetch(rf, keys...)
	}
}

// renderWith returns the cache render callback for one layout
// snapshot. The key carries only the layout fingerprint, so the
// closure captures the full parameters.
func (s *Session) renderWith(params document.LayoutParams) render.RenderFunc {
	return func(_ context.Context, key render.Key) (*image.Gray, error) {
		return render.Rasterize(s.doc, key.Ref, params)
	}
}
