// Package framebuffer drives the e-ink display: a Framebuffer is the
// device surface, and the Compositor decides for every new frame how
// much of the screen to refresh and in which waveform mode, trading
// ghosting against refresh latency.
package framebuffer

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/OGKevin/plato/geom"
)

var (
	// ErrRefreshFailed reports a display refresh that failed even after
	// the full-refresh retry. The screen contents are unknown then.
	ErrRefreshFailed = errors.New("framebuffer: refresh failed")
)

// RefreshMode selects the waveform a region is refreshed with.
type RefreshMode int

const (
	// Full rewrites the whole panel through the slow high-contrast
	// waveform, clearing accumulated ghosting.
	Full RefreshMode = iota
	// Partial rewrites only the changed region, fast but ghosting.
	Partial
	// Fast trades grayscale fidelity for latency, for transient
	// feedback like live zoom previews.
	Fast
)

// String returns the mode name used in logs.
func (m RefreshMode) String() string {
	switch m {
	case Partial:
		return "partial"
	case Fast:
		return "fast"
	default:
		return "full"
	}
}

// Framebuffer is the display surface the compositor draws to. UpdateRegion
// pushes the given region of src to the panel; src always covers the
// full display area. Sync blocks until the panel settles.
type Framebuffer interface {
	Bounds() geom.Rect
	UpdateRegion(src *image.Gray, r geom.Rect, mode RefreshMode) error
	Sync() error
}

// Update records one UpdateRegion call on a Memory framebuffer.
type Update struct {
	Rect   geom.Rect
	Mode   RefreshMode
	Failed bool
}

// Memory is an in-memory framebuffer backed by an image.Gray. It
// records every update and supports injected failures, which makes it
// the display for tests and the CLI driver, the way the original
// hardware is stood in for by an emulator.
type Memory struct {
	mu       sync.Mutex
	img      *image.Gray
	updates  []Update
	failures int
	failErr  error
}

// NewMemory creates a memory framebuffer of the given size, initially
// all white like a freshly cleared panel.
func NewMemory(width, height int) *Memory {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	return &Memory{img: img}
}

// Bounds returns the display rectangle.
func (m *Memory) Bounds() geom.Rect {
	m.mu.Lock()
	defer m.mu.Unlock()
	return geom.RectFromImage(m.img.Bounds())
}

// UpdateRegion copies the region from src into the framebuffer and
// records the call. When failures are armed, the call is recorded as
// failed and the injected error returned without touching pixels.
func (m *Memory) UpdateRegion(src *image.Gray, r geom.Rect, mode RefreshMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		m.updates = append(m.updates, Update{Rect: r, Mode: mode, Failed: true})
		return m.failErr
	}

	b := m.img.Bounds()
	if src.Bounds().Dx() != b.Dx() || src.Bounds().Dy() != b.Dy() {
		return fmt.Errorf("framebuffer: source %dx%d does not cover the %dx%d display",
			src.Bounds().Dx(), src.Bounds().Dy(), b.Dx(), b.Dy())
	}

	clip := r.Intersect(geom.RectFromImage(b))
	for y := clip.MinY; y < clip.MaxY; y++ {
		so := src.PixOffset(src.Rect.Min.X+clip.MinX, src.Rect.Min.Y+y)
		do := m.img.PixOffset(clip.MinX, y)
		copy(m.img.Pix[do:do+clip.Width()], src.Pix[so:so+clip.Width()])
	}
	m.updates = append(m.updates, Update{Rect: r, Mode: mode})
	return nil
}

// Sync is immediate for a memory framebuffer.
func (m *Memory) Sync() error { return nil }

// FailNext arms the next n UpdateRegion calls to fail with err. A nil
// err fails with ErrRefreshFailed.
func (m *Memory) FailNext(n int, err error) {
	if err == nil {
		err = ErrRefreshFailed
	}
	m.mu.Lock()
	m.failures = n
	m.failErr = err
	m.mu.Unlock()
}

// Updates returns a copy of the recorded update calls in order.
func (m *Memory) Updates() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Update, len(m.updates))
	copy(out, m.updates)
	return out
}

// Snapshot returns a copy of the current display contents.
func (m *Memory) Snapshot() *image.Gray {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := image.NewGray(m.img.Bounds())
	copy(out.Pix, m.img.Pix)
	return out
}
