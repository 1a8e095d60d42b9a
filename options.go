package plato

import (
	"log/slog"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/framebuffer"
	"github.com/OGKevin/plato/settings"
)

// config collects everything a session needs; options fill it in and
// Open supplies defaults for whatever is left unset.
type config struct {
	settings *settings.Settings
	fb       framebuffer.Framebuffer
	fonts    *font.Library
	ocr      document.TextRecognizer
	logger   *slog.Logger
	dpi      float64
}

// Option configures a session at Open time.
type Option func(*config)

// WithSettings uses s instead of the built-in defaults. The session
// reads typography, refresh cadence and cache limits from it.
func WithSettings(s *settings.Settings) Option {
	return func(c *config) { c.settings = s }
}

// WithFramebuffer drives the given display instead of the in-memory
// emulator. The framebuffer's bounds become the layout viewport.
func WithFramebuffer(fb framebuffer.Framebuffer) Option {
	return func(c *config) { c.fb = fb }
}

// WithFontLibrary supplies a preloaded font library, replacing the one
// Open would build from the settings font path.
func WithFontLibrary(lib *font.Library) Option {
	return func(c *config) { c.fonts = lib }
}

// WithOCR attaches a text recognizer to documents that support one,
// such as scanned comics and plain images.
func WithOCR(r document.TextRecognizer) Option {
	return func(c *config) { c.ocr = r }
}

// WithLogger routes the session's log output to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDPI overrides the display density used to convert point and
// millimeter settings into pixels. The default is DefaultDPI.
func WithDPI(dpi float64) Option {
	return func(c *config) {
		if dpi > 0 {
			c.dpi = dpi
		}
	}
}
