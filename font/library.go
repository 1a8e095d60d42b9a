package font

import (
	"bytes"
	"errors"
	"fmt"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-text/typesetting/di"
	gotext "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

var (
	// ErrBadFont indicates a file that could not be parsed as a
	// TrueType or OpenType font.
	ErrBadFont = errors.New("font: unparsable font file")
)

// source is one loaded font file: the raw bytes, the shaping-side
// parsed font (thread-safe) and the drawing-side parsed font, plus a
// per-size cache of drawing faces. Drawing faces keep internal buffers
// and are guarded by mu.
type source struct {
	family   string
	data     []byte
	shaped   *gotext.Font
	drawable *opentype.Font

	mu    sync.Mutex
	faces map[fixed.Int26_6]xfont.Face
}

func (s *source) metrics(size float64) Metrics {
	var buf sfnt.Buffer
	m, err := s.drawable.Metrics(&buf, floatToFixed(size), xfont.HintingFull)
	if err != nil {
		return builtinMetrics(size)
	}
	ascent := fixedToFloat(m.Ascent)
	descent := fixedToFloat(m.Descent)
	gap := fixedToFloat(m.Height) - ascent - descent
	if gap < 0 {
		gap = 0
	}
	return Metrics{Ascent: ascent, Descent: descent, LineGap: gap}
}

// face returns the cached drawing face for a size. Callers must hold
// s.mu for the whole use of the face, not just the lookup.
func (s *source) face(size float64) (xfont.Face, error) {
	key := floatToFixed(size)
	if f, ok := s.faces[key]; ok {
		return f, nil
	}
	// DPI 72 makes Size pixels-per-em, matching the shaping side.
	f, err := opentype.NewFace(s.drawable, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: xfont.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: face at %gpx: %v", ErrBadFont, size, err)
	}
	s.faces[key] = f
	return f, nil
}

func (s *source) draw(dst draw.Image, x, y, size float64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.face(size)
	if err != nil {
		builtinDraw(dst, x, y, text)
		return
	}
	d := &xfont.Drawer{
		Dst:  dst,
		Src:  blackSource,
		Face: f,
		Dot:  fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)},
	}
	d.DrawString(text)
}

// Library loads font files and resolves (family, size) requests to
// Faces. It is safe for concurrent use. The zero Library is not ready;
// use NewLibrary.
type Library struct {
	mu      sync.RWMutex
	sources map[string]*source // keyed by normalized family
	order   []string           // registration order for deterministic fallback

	// shapers pools HarfbuzzShaper instances; they carry mutable
	// buffers and are not safe for concurrent use.
	shapers sync.Pool
}

// NewLibrary returns an empty library. Faces resolved from it use the
// built-in fallback until fonts are loaded.
func NewLibrary() *Library {
	return &Library{
		sources: make(map[string]*source),
		shapers: sync.Pool{
			New: func() any { return &shaping.HarfbuzzShaper{} },
		},
	}
}

// Load parses the font file at path and registers it under its family
// name and its filename stem.
func (l *Library) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("font: read %s: %w", path, err)
	}

	shapedFace, err := gotext.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFont, path, err)
	}
	drawable, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFont, path, err)
	}

	family := fontFamily(drawable)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if family == "" {
		family = stem
	}

	src := &source{
		family:   family,
		data:     data,
		shaped:   shapedFace.Font,
		drawable: drawable,
		faces:    make(map[fixed.Int26_6]xfont.Face),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range []string{normalizeFamily(family), normalizeFamily(stem)} {
		if key == "" {
			continue
		}
		if _, exists := l.sources[key]; !exists {
			l.sources[key] = src
			l.order = append(l.order, key)
		}
	}
	return nil
}

// LoadDir loads every .ttf and .otf file directly inside dir. Files
// that fail to parse are skipped; the error reports how many loaded.
// A missing directory is not an error, it just loads nothing.
func (l *Library) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("font: read dir %s: %w", dir, err)
	}

	var loaded, failed int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".ttf", ".otf":
		default:
			continue
		}
		if err := l.Load(filepath.Join(dir, e.Name())); err != nil {
			failed++
			continue
		}
		loaded++
	}
	if failed > 0 && loaded == 0 {
		return fmt.Errorf("%w: no usable fonts in %s (%d failed)", ErrBadFont, dir, failed)
	}
	return nil
}

// Families returns the distinct family names loaded, sorted.
func (l *Library) Families() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, key := range l.order {
		fam := l.sources[key].family
		if !seen[fam] {
			seen[fam] = true
			out = append(out, fam)
		}
	}
	sort.Strings(out)
	return out
}

// Face resolves a family name at a pixel size. Matching is
// case-insensitive and ignores spaces and hyphens; an unmatched family
// falls back to the first loaded font, and an empty library falls back
// to the built-in face. Face never fails: something is always
// measurable and drawable.
func (l *Library) Face(family string, size float64) *Face {
	if size <= 0 {
		size = 1
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	key := normalizeFamily(family)
	if src, ok := l.sources[key]; ok {
		return &Face{lib: l, src: src, family: src.family, size: size}
	}
	// Prefix match tolerates style suffixes: "libertinusserif"
	// matches a file registered as "libertinusserif-regular".
	if key != "" {
		for _, k := range l.order {
			if strings.HasPrefix(k, key) {
				src := l.sources[k]
				return &Face{lib: l, src: src, family: src.family, size: size}
			}
		}
	}
	if len(l.order) > 0 {
		src := l.sources[l.order[0]]
		return &Face{lib: l, src: src, family: src.family, size: size}
	}
	return &Face{lib: l, family: builtinFamily, size: size}
}

// shapeAdvance shapes the whole string with HarfBuzz and sums the
// glyph advances.
func (l *Library) shapeAdvance(src *source, size float64, text string) (float64, error) {
	runes := []rune(text)

	// gotext faces carry mutable glyph caches, so each call builds a
	// cheap new one around the shared thread-safe font.
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      gotext.NewFace(src.shaped),
		Size:      floatToFixed(size),
		Script:    detectScript(runes),
		Language:  language.NewLanguage("en"),
	}

	shaper := l.shapers.Get().(*shaping.HarfbuzzShaper)
	output := shaper.Shape(input)
	l.shapers.Put(shaper)

	var advance fixed.Int26_6
	for _, g := range output.Glyphs {
		advance += g.Advance
	}
	return fixedToFloat(advance), nil
}

// detectScript returns the script of the first non-space rune, Latin
// when the text is all whitespace. Mixed-script runs take the first
// script; the layout engine splits runs per block, which is enough for
// the supported formats.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

// fontFamily reads the family name out of a parsed font.
func fontFamily(f *opentype.Font) string {
	if name, err := f.Name(nil, sfnt.NameIDFamily); err == nil {
		return name
	}
	return ""
}

// normalizeFamily folds a family name for matching: lowercase, with
// spaces, hyphens and underscores removed.
func normalizeFamily(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '-', '_':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(v * 64)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64.0
}
