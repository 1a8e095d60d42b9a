package framebuffer

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/OGKevin/plato/geom"
	"github.com/OGKevin/plato/internal/logging"
	"github.com/OGKevin/plato/render"
)

const (
	// DefaultFullEvery is how many page-scale partial refreshes are
	// allowed before the next one is promoted to a full refresh.
	DefaultFullEvery = 8

	// DefaultPartialAreaLimit is the fraction of the display a changed
	// region must cover to count as a page-scale update.
	DefaultPartialAreaLimit = 0.60

	eventBuffer = 64
)

// Hint tells the compositor what kind of navigation produced a frame.
type Hint int

const (
	// HintPage is a regular page turn or relayout.
	HintPage Hint = iota
	// HintDocumentSwitch marks the first frame of a newly opened
	// document, which always clears the panel with a full refresh.
	HintDocumentSwitch
	// HintPreview marks transient frames, shown with the fast waveform.
	HintPreview
)

// Request is one frame submitted for display.
type Request struct {
	Key    render.Key
	Frame  *render.Frame
	Hint   Hint
	Dither bool
}

// Event reports the outcome of one processed request. Rect and Mode
// describe the refresh that was pushed to the panel; an empty Rect
// with a nil Err means the frame matched the display and nothing was
// refreshed.
type Event struct {
	Key  render.Key
	Rect geom.Rect
	Mode RefreshMode
	Err  error
}

// Config tunes the compositor's refresh policy.
type Config struct {
	// FullEvery promotes every n-th page-scale update to a full
	// refresh. Zero means DefaultFullEvery.
	FullEvery int
	// PartialAreaLimit is the display fraction above which an update
	// counts as page-scale. Zero means DefaultPartialAreaLimit.
	PartialAreaLimit float64
	// Tolerance is the per-pixel gray delta the differ ignores.
	Tolerance uint8
	// Inverted flips all content for night reading.
	Inverted bool
	// Logger, nil for silent.
	Logger *slog.Logger
}

// Compositor serializes frames onto one framebuffer. Frames are
// submitted from any goroutine; a single worker composes each one,
// diffs it against what the panel currently shows and picks the
// cheapest refresh that keeps the panel ghost-free. Submissions
// arriving while a refresh is in flight are coalesced down to the
// latest one.
type Compositor struct {
	fb  Framebuffer
	cfg Config

	mu     sync.Mutex
	queued *Request
	kick   chan struct{}

	// display mirrors what the panel shows, scratch holds the frame
	// being composed. Only the worker writes them; display reads from
	// other goroutines go through mu.
	display *image.Gray
	scratch *image.Gray

	partials int

	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewCompositor starts a compositor over fb. The display mirror starts
// all white to match a cleared panel.
func NewCompositor(fb Framebuffer, cfg Config) *Compositor {
	if cfg.FullEvery <= 0 {
		cfg.FullEvery = DefaultFullEvery
	}
	if cfg.PartialAreaLimit <= 0 {
		cfg.PartialAreaLimit = DefaultPartialAreaLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	b := fb.Bounds()
	display := image.NewGray(image.Rect(0, 0, b.Width(), b.Height()))
	for i := range display.Pix {
		display.Pix[i] = 0xFF
	}

	c := &Compositor{
		fb:      fb,
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
		display: display,
		scratch: image.NewGray(display.Bounds()),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
	c.running.Store(true)
	c.wg.Add(1)
	go c.run()
	return c
}

// Submit hands a frame to the compositor. When frames arrive faster
// than the panel refreshes, intermediate ones are dropped without an
// event and only the latest is shown. Submissions after Close are
// ignored.
func (c *Compositor) Submit(req Request) {
	if !c.running.Load() || req.Frame == nil || req.Frame.Img == nil {
		return
	}
	c.mu.Lock()
	c.queued = &req
	c.mu.Unlock()
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Events returns the stream of refresh outcomes. The channel is closed
// by Close. Slow consumers lose events rather than stalling refreshes.
func (c *Compositor) Events() <-chan Event { return c.events }

// DisplayFrame returns a copy of what the panel currently shows.
func (c *Compositor) DisplayFrame() *image.Gray {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := image.NewGray(c.display.Bounds())
	copy(out.Pix, c.display.Pix)
	return out
}

// Close stops the worker and closes the event channel. Safe to call
// more than once.
func (c *Compositor) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	close(c.done)
	c.wg.Wait()
	close(c.events)
	return nil
}

func (c *Compositor) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case <-c.kick:
		}
		for {
			c.mu.Lock()
			req := c.queued
			c.queued = nil
			c.mu.Unlock()
			if req == nil {
				break
			}
			c.process(*req)
		}
	}
}

func (c *Compositor) process(req Request) {
	b := c.fb.Bounds()
	img := req.Frame.Img
	if img.Bounds().Dx() != b.Width() || img.Bounds().Dy() != b.Height() {
		err := fmt.Errorf("compositor: %dx%d frame on %dx%d display: %w",
			img.Bounds().Dx(), img.Bounds().Dy(), b.Width(), b.Height(),
			render.ErrDimensionMismatch)
		c.cfg.Logger.Warn("dropping frame", "page", req.Key.Ref.String(), "err", err)
		c.emit(Event{Key: req.Key, Err: err})
		return
	}

	c.compose(img, req.Dither)

	diff := diffRect(c.display, c.scratch, c.cfg.Tolerance)
	if diff.IsEmpty() {
		c.emit(Event{Key: req.Key})
		return
	}

	mode, rect, pageScale := c.strategy(req.Hint, diff, b)
	if err := c.push(rect, mode); err != nil {
		c.cfg.Logger.Warn("refresh failed, retrying full",
			"mode", mode.String(), "err", err)
		mode, rect = Full, b
		if err = c.push(rect, mode); err != nil {
			c.cfg.Logger.Error("full refresh failed", "err", err)
			c.emit(Event{Key: req.Key, Rect: rect, Mode: mode,
				Err: fmt.Errorf("%w: %v", ErrRefreshFailed, err)})
			return
		}
	}

	switch {
	case mode == Full:
		c.partials = 0
	case mode == Partial && pageScale:
		c.partials++
	}

	c.mu.Lock()
	copy(c.display.Pix, c.scratch.Pix)
	c.mu.Unlock()

	c.cfg.Logger.Debug("refreshed", "page", req.Key.Ref.String(),
		"mode", mode.String(), "w", rect.Width(), "h", rect.Height())
	c.emit(Event{Key: req.Key, Rect: rect, Mode: mode})
}

// compose builds the outgoing panel contents in scratch.
func (c *Compositor) compose(img *image.Gray, dither bool) {
	w := c.scratch.Bounds().Dx()
	h := c.scratch.Bounds().Dy()
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(c.scratch.Pix[y*c.scratch.Stride:y*c.scratch.Stride+w], img.Pix[off:off+w])
	}
	if dither {
		ditherTo16(c.scratch)
	}
	if c.cfg.Inverted {
		invert(c.scratch)
	}
}

// strategy picks the refresh mode and region for a changed rect.
func (c *Compositor) strategy(hint Hint, diff, b geom.Rect) (RefreshMode, geom.Rect, bool) {
	pageScale := float64(diff.Area()) >= c.cfg.PartialAreaLimit*float64(b.Area())
	switch {
	case hint == HintDocumentSwitch:
		return Full, b, pageScale
	case hint == HintPreview:
		return Fast, diff, pageScale
	case pageScale && c.partials+1 >= c.cfg.FullEvery:
		return Full, b, pageScale
	default:
		return Partial, diff, pageScale
	}
}

func (c *Compositor) push(r geom.Rect, mode RefreshMode) error {
	if err := c.fb.UpdateRegion(c.scratch, r, mode); err != nil {
		return err
	}
	return c.fb.Sync()
}

func (c *Compositor) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.cfg.Logger.Warn("event buffer full, dropping event",
			"page", ev.Key.Ref.String())
	}
}

// diffRect returns the bounding rectangle of pixels whose gray values
// differ by more than tol, empty when the images match.
func diffRect(prev, next *image.Gray, tol uint8) geom.Rect {
	w := prev.Bounds().Dx()
	h := prev.Bounds().Dy()
	minX, minY := w, h
	maxX, maxY := -1, -1
	for y := 0; y < h; y++ {
		prow := prev.Pix[y*prev.Stride : y*prev.Stride+w]
		nrow := next.Pix[y*next.Stride : y*next.Stride+w]
		if tol == 0 && bytes.Equal(prow, nrow) {
			continue
		}
		for x := 0; x < w; x++ {
			d := int(prow[x]) - int(nrow[x])
			if d < 0 {
				d = -d
			}
			if d <= int(tol) {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return geom.Rect{}
	}
	return geom.NewRect(minX, minY, maxX+1, maxY+1)
}
