// Package plato is the reading core of an e-ink book reader. It opens
// a document through the codec registry, paginates it for the current
// layout, renders pages into a byte-budgeted cache and drives the
// display with partial-refresh composition.
//
// A Session ties the layers together:
//
//	sess, err := plato.Open("novel.epub")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	sess.Next()
//	for ev := range sess.Events() {
//		fmt.Println(ev.Rect, ev.Mode)
//	}
//
// Codecs register themselves when their packages are imported; pulling
// in document/pdfdoc, document/epubdoc, document/txtdoc and
// document/imagedoc enables the corresponding formats. Without a
// framebuffer from WithFramebuffer the session draws into an in-memory
// emulator panel, which is enough for exporting page images.
package plato

import (
	"fmt"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/font"
	"github.com/OGKevin/plato/framebuffer"
	"github.com/OGKevin/plato/render"
	"github.com/OGKevin/plato/settings"
)

const (
	// DefaultWidth and DefaultHeight are the emulator panel dimensions
	// used when no framebuffer is supplied, matching a 6 inch 300 ppi
	// e-ink panel in portrait orientation.
	DefaultWidth  = 1072
	DefaultHeight = 1448

	// DefaultDPI is the display density assumed when WithDPI is not
	// given. Point and millimeter settings are converted to pixels with
	// it.
	DefaultDPI = 300.0
)

// Open opens the document at path and starts a reading session on it.
// The format is detected from the file content, the document is
// paginated for the framebuffer's viewport and the first page is
// submitted to the display. Options override the defaults for
// settings, framebuffer, fonts, OCR, logging and display density.
func Open(path string, opts ...Option) (*Session, error) {
	cfg := config{dpi: DefaultDPI}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.settings == nil {
		cfg.settings = settings.Default()
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}
	if cfg.fb == nil {
		cfg.fb = framebuffer.NewMemory(DefaultWidth, DefaultHeight)
	}
	if cfg.fonts == nil {
		cfg.fonts = font.NewLibrary()
		if dir := cfg.settings.Reader.FontPath; dir != "" {
			if err := cfg.fonts.LoadDir(dir); err != nil {
				cfg.logger.Warn("loading fonts", "dir", dir, "err", err)
			}
		}
	}

	doc, err := document.Open(path)
	if err != nil {
		return nil, err
	}
	if fl, ok := doc.(interface{ SetFontLibrary(*font.Library) }); ok {
		fl.SetFontLibrary(cfg.fonts)
	}
	if cfg.ocr != nil {
		if tr, ok := doc.(interface{ SetRecognizer(document.TextRecognizer) }); ok {
			tr.SetRecognizer(cfg.ocr)
		}
	}

	kind := doc.Format().String()
	s := &Session{
		doc:    doc,
		fb:     cfg.fb,
		fonts:  cfg.fonts,
		prefs:  cfg.settings,
		log:    cfg.logger,
		dpi:    cfg.dpi,
		dither: cfg.settings.Dithered(kind),
	}

	params := s.layoutDefaults()
	pages, err := s.paginate(params)
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("plato: paginating %s: %w", path, err)
	}
	s.params = params
	s.pages = pages

	s.cache = render.NewCache(cfg.settings.Cache.Budget(), cfg.settings.Cache.PrefetchWorkers)
	s.cache.SetCurrentParams(params.Fingerprint())
	s.comp = framebuffer.NewCompositor(cfg.fb, framebuffer.Config{
		FullEvery:        cfg.settings.FullEvery(kind),
		PartialAreaLimit: cfg.settings.Reader.RefreshRate.PartialAreaLimit,
		Inverted:         cfg.settings.Inverted,
		Logger:           cfg.logger,
	})

	s.mu.Lock()
	s.showLocked(0)
	s.mu.Unlock()
	return s, nil
}
