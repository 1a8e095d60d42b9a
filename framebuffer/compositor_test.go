package framebuffer

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/render"
)

func grayFrame(page, w, h int, v uint8) *render.Frame {
	return &render.Frame{
		Img: solidGray(w, h, v),
		Key: render.Key{Doc: 1, Ref: document.PageIndex(page), Params: 1},
	}
}

// frameOf wraps a prepared image in a frame keyed to the given page.
func frameOf(page int, img *image.Gray) *render.Frame {
	return &render.Frame{
		Img: img,
		Key: render.Key{Doc: 1, Ref: document.PageIndex(page), Params: 1},
	}
}

func newTestCompositor(t *testing.T, w, h int, cfg Config) (*Compositor, *Memory) {
	t.Helper()
	fb := NewMemory(w, h)
	c := NewCompositor(fb, cfg)
	t.Cleanup(func() { c.Close() })
	return c, fb
}

func waitEvent(t *testing.T, c *Compositor) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a compositor event")
	}
	return Event{}
}

func TestCompositorFirstFrame(t *testing.T) {
	c, fb := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40)})

	ev := waitEvent(t, c)
	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if ev.Mode != Partial {
		t.Fatalf("mode = %v, want partial", ev.Mode)
	}
	if want := geom.NewRect(0, 0, 100, 100); ev.Rect != want {
		t.Fatalf("rect = %+v, want %+v", ev.Rect, want)
	}
	if got := fb.Snapshot().GrayAt(50, 50).Y; got != 40 {
		t.Fatalf("panel pixel = %d, want 40", got)
	}
	if got := c.DisplayFrame().GrayAt(50, 50).Y; got != 40 {
		t.Fatalf("display mirror pixel = %d, want 40", got)
	}
}

func TestCompositorDiffRectCoversOnlyChange(t *testing.T) {
	c, fb := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40)})
	waitEvent(t, c)

	next := solidGray(100, 100, 40)
	for y := 20; y < 50; y++ {
		for x := 10; x < 30; x++ {
			next.SetGray(x, y, color.Gray{Y: 200})
		}
	}
	c.Submit(Request{Frame: frameOf(1, next)})

	ev := waitEvent(t, c)
	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if want := geom.NewRect(10, 20, 30, 50); ev.Rect != want {
		t.Fatalf("diff rect = %+v, want %+v", ev.Rect, want)
	}
	if ev.Mode != Partial {
		t.Fatalf("mode = %v, want partial for a small region", ev.Mode)
	}

	ups := fb.Updates()
	last := ups[len(ups)-1]
	if want := geom.NewRect(10, 20, 30, 50); last.Rect != want {
		t.Fatalf("panel update rect = %+v, want %+v", last.Rect, want)
	}

	snap := fb.Snapshot()
	if got := snap.GrayAt(15, 30).Y; got != 200 {
		t.Fatalf("changed pixel = %d, want 200", got)
	}
	if got := snap.GrayAt(60, 60).Y; got != 40 {
		t.Fatalf("unchanged pixel = %d, want 40", got)
	}
}

func TestCompositorIdenticalFrameSkipsRefresh(t *testing.T) {
	c, fb := newTestCompositor(t, 50, 50, Config{})

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 40)})
	waitEvent(t, c)
	before := len(fb.Updates())

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 40)})
	ev := waitEvent(t, c)

	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if !ev.Rect.IsEmpty() {
		t.Fatalf("rect = %+v, want empty for an identical frame", ev.Rect)
	}
	if got := len(fb.Updates()); got != before {
		t.Fatalf("panel updates = %d, want %d (no refresh)", got, before)
	}
}

func TestCompositorToleranceIgnoresSmallDeltas(t *testing.T) {
	c, fb := newTestCompositor(t, 50, 50, Config{Tolerance: 4})

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 40)})
	waitEvent(t, c)
	before := len(fb.Updates())

	c.Submit(Request{Frame: grayFrame(1, 50, 50, 43)})
	ev := waitEvent(t, c)

	if !ev.Rect.IsEmpty() {
		t.Fatalf("rect = %+v, want empty within tolerance", ev.Rect)
	}
	if got := len(fb.Updates()); got != before {
		t.Fatalf("panel updates = %d, want %d", got, before)
	}
}

func TestCompositorDocumentSwitchForcesFull(t *testing.T) {
	c, fb := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40), Hint: HintDocumentSwitch})

	ev := waitEvent(t, c)
	if ev.Mode != Full {
		t.Fatalf("mode = %v, want full on document switch", ev.Mode)
	}
	if want := geom.NewRect(0, 0, 100, 100); ev.Rect != want {
		t.Fatalf("rect = %+v, want the whole display", ev.Rect)
	}
	if ups := fb.Updates(); ups[0].Mode != Full {
		t.Fatalf("panel mode = %v, want full", ups[0].Mode)
	}
}

func TestCompositorPreviewUsesFast(t *testing.T) {
	c, _ := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40), Hint: HintPreview})

	if ev := waitEvent(t, c); ev.Mode != Fast {
		t.Fatalf("mode = %v, want fast for a preview", ev.Mode)
	}
}

func TestCompositorFullEveryN(t *testing.T) {
	c, _ := newTestCompositor(t, 100, 100, Config{FullEvery: 3})

	var modes []RefreshMode
	for i := 0; i < 6; i++ {
		// Alternate the page content so every submission is a
		// page-scale change.
		v := uint8(40)
		if i%2 == 1 {
			v = 200
		}
		c.Submit(Request{Frame: grayFrame(i, 100, 100, v)})
		ev := waitEvent(t, c)
		if ev.Err != nil {
			t.Fatalf("page %d: %v", i, ev.Err)
		}
		modes = append(modes, ev.Mode)
	}

	want := []RefreshMode{Partial, Partial, Full, Partial, Partial, Full}
	for i := range want {
		if modes[i] != want[i] {
			t.Fatalf("modes = %v, want %v", modes, want)
		}
	}
}

func TestCompositorSmallRegionsDoNotCountTowardFull(t *testing.T) {
	c, _ := newTestCompositor(t, 100, 100, Config{FullEvery: 2})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40)})
	if ev := waitEvent(t, c); ev.Mode != Partial {
		t.Fatalf("first page-scale update: mode = %v, want partial", ev.Mode)
	}

	// Small clock-corner style updates must stay partial and must not
	// advance the full-refresh cadence.
	for i := 0; i < 4; i++ {
		img := solidGray(100, 100, 40)
		v := uint8(200)
		if i%2 == 1 {
			v = 100
		}
		for y := 0; y < 5; y++ {
			for x := 0; x < 5; x++ {
				img.SetGray(x, y, color.Gray{Y: v})
			}
		}
		c.Submit(Request{Frame: frameOf(i + 1, img)})
		if ev := waitEvent(t, c); ev.Mode != Partial {
			t.Fatalf("small update %d: mode = %v, want partial", i, ev.Mode)
		}
	}

	// The next page-scale change is the second one, so it is promoted.
	c.Submit(Request{Frame: grayFrame(9, 100, 100, 200)})
	if ev := waitEvent(t, c); ev.Mode != Full {
		t.Fatalf("second page-scale update: mode = %v, want full", ev.Mode)
	}
}

func TestCompositorRetriesAsFull(t *testing.T) {
	c, fb := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 100, 100, 40)})
	waitEvent(t, c)

	fb.FailNext(1, errors.New("panel busy"))

	img := solidGray(100, 100, 40)
	img.SetGray(10, 10, color.Gray{Y: 0})
	c.Submit(Request{Frame: frameOf(1, img)})

	ev := waitEvent(t, c)
	if ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}
	if ev.Mode != Full {
		t.Fatalf("mode = %v, want full after the retry", ev.Mode)
	}

	ups := fb.Updates()
	n := len(ups)
	if n < 2 || !ups[n-2].Failed || ups[n-1].Failed {
		t.Fatalf("updates = %+v, want a failed attempt then a successful full", ups)
	}
	if ups[n-1].Mode != Full {
		t.Fatalf("retry mode = %v, want full", ups[n-1].Mode)
	}
	if got := fb.Snapshot().GrayAt(10, 10).Y; got != 0 {
		t.Fatalf("pixel after retry = %d, want 0", got)
	}
}

func TestCompositorRefreshFailure(t *testing.T) {
	c, fb := newTestCompositor(t, 50, 50, Config{})

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 40)})
	waitEvent(t, c)

	fb.FailNext(2, errors.New("panel timeout"))
	c.Submit(Request{Frame: grayFrame(1, 50, 50, 200)})

	ev := waitEvent(t, c)
	if !errors.Is(ev.Err, ErrRefreshFailed) {
		t.Fatalf("event error = %v, want ErrRefreshFailed", ev.Err)
	}
	// The mirror keeps the last known-good contents, so the next frame
	// diffs against what the panel really showed before the failure.
	if got := c.DisplayFrame().GrayAt(25, 25).Y; got != 40 {
		t.Fatalf("display mirror pixel = %d, want 40 after a failed refresh", got)
	}

	c.Submit(Request{Frame: grayFrame(2, 50, 50, 200)})
	ev = waitEvent(t, c)
	if ev.Err != nil {
		t.Fatalf("recovery refresh: %v", ev.Err)
	}
	if got := fb.Snapshot().GrayAt(25, 25).Y; got != 200 {
		t.Fatalf("panel pixel after recovery = %d, want 200", got)
	}
}

func TestCompositorRejectsWrongSizeFrame(t *testing.T) {
	c, fb := newTestCompositor(t, 100, 100, Config{})

	c.Submit(Request{Frame: grayFrame(0, 10, 10, 0)})

	ev := waitEvent(t, c)
	if !errors.Is(ev.Err, render.ErrDimensionMismatch) {
		t.Fatalf("event error = %v, want ErrDimensionMismatch", ev.Err)
	}
	if got := len(fb.Updates()); got != 0 {
		t.Fatalf("panel updates = %d, want 0", got)
	}
}

func TestCompositorInverted(t *testing.T) {
	c, fb := newTestCompositor(t, 50, 50, Config{Inverted: true})

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 40)})
	if ev := waitEvent(t, c); ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}

	if got := fb.Snapshot().GrayAt(25, 25).Y; got != 215 {
		t.Fatalf("inverted pixel = %d, want 215", got)
	}
}

func TestCompositorDither(t *testing.T) {
	c, fb := newTestCompositor(t, 50, 50, Config{})

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 128), Dither: true})
	if ev := waitEvent(t, c); ev.Err != nil {
		t.Fatalf("event error: %v", ev.Err)
	}

	snap := fb.Snapshot()
	for i, v := range snap.Pix {
		if v%17 != 0 {
			t.Fatalf("pixel %d = %d, want a multiple of 17", i, v)
		}
	}
	// Mid gray lands on different levels depending on the matrix cell.
	if a, b := snap.GrayAt(0, 0).Y, snap.GrayAt(1, 0).Y; a == b {
		t.Fatalf("adjacent dithered pixels both %d, want different levels", a)
	}
}

// gatedFB blocks inside UpdateRegion until released, letting tests pile
// submissions up behind an in-flight refresh.
type gatedFB struct {
	*Memory
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedFB) UpdateRegion(src *image.Gray, r geom.Rect, mode RefreshMode) error {
	g.entered <- struct{}{}
	<-g.gate
	return g.Memory.UpdateRegion(src, r, mode)
}

func TestCompositorCoalescesToLatest(t *testing.T) {
	fb := &gatedFB{
		Memory:  NewMemory(50, 50),
		entered: make(chan struct{}, 8),
		gate:    make(chan struct{}),
	}
	c := NewCompositor(fb, Config{})
	t.Cleanup(func() { c.Close() })

	c.Submit(Request{Frame: grayFrame(0, 50, 50, 10)})
	select {
	case <-fb.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first refresh never started")
	}

	// These arrive while the panel is busy; only the last survives.
	c.Submit(Request{Frame: grayFrame(1, 50, 50, 20)})
	c.Submit(Request{Frame: grayFrame(2, 50, 50, 30)})
	c.Submit(Request{Frame: grayFrame(3, 50, 50, 40)})
	close(fb.gate)

	first := waitEvent(t, c)
	if got := first.Key.Ref.Page; got != 0 {
		t.Fatalf("first event page = %d, want 0", got)
	}
	second := waitEvent(t, c)
	if got := second.Key.Ref.Page; got != 3 {
		t.Fatalf("second event page = %d, want 3 (intermediates dropped)", got)
	}
	if got := fb.Snapshot().GrayAt(25, 25).Y; got != 40 {
		t.Fatalf("panel pixel = %d, want 40 from the latest frame", got)
	}
}

func TestCompositorClose(t *testing.T) {
	fb := NewMemory(20, 20)
	c := NewCompositor(fb, Config{})

	c.Submit(Request{Frame: grayFrame(0, 20, 20, 40)})
	waitEvent(t, c)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-c.Events(); ok {
		t.Fatal("event channel still open after Close")
	}

	// Submissions after close are dropped, not a panic.
	c.Submit(Request{Frame: grayFrame(1, 20, 20, 0)})
}

func TestDiffRect(t *testing.T) {
	a := solidGray(10, 10, 100)
	b := solidGray(10, 10, 100)

	if r := diffRect(a, b, 0); !r.IsEmpty() {
		t.Fatalf("identical images: diff = %+v, want empty", r)
	}

	b.SetGray(3, 4, color.Gray{Y: 200})
	b.SetGray(7, 8, color.Gray{Y: 0})
	if r, want := diffRect(a, b, 0), geom.NewRect(3, 4, 8, 9); r != want {
		t.Fatalf("diff = %+v, want %+v", r, want)
	}

	// Deltas at or below the tolerance are invisible.
	c := solidGray(10, 10, 103)
	if r := diffRect(a, c, 3); !r.IsEmpty() {
		t.Fatalf("within tolerance: diff = %+v, want empty", r)
	}
	if r := diffRect(a, c, 2); r.IsEmpty() {
		t.Fatal("above tolerance: diff empty, want the full image")
	}
}
