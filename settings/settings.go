// Package settings holds the reader configuration, stored as a
// Settings.toml with kebab-case keys. Loading overlays the file on the
// defaults, so a missing or sparse file always yields a complete,
// validated configuration.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// RefreshRatePair is a full-refresh cadence: a full e-ink refresh is
// forced after this many page-scale partial updates, with a separate
// cadence for inverted rendering where ghosting shows sooner.
type RefreshRatePair struct {
	Regular  int `toml:"regular"`
	Inverted int `toml:"inverted"`
}

// RefreshRateSettings holds the global cadence, the area threshold
// separating page-scale updates from small ones, and per-kind
// overrides keyed by document format name.
type RefreshRateSettings struct {
	Regular          int                        `toml:"regular"`
	Inverted         int                        `toml:"inverted"`
	PartialAreaLimit float64                    `toml:"partial-area-limit"`
	ByKind           map[string]RefreshRatePair `toml:"by-kind"`
}

// ReaderSettings groups typography, pagination and refresh options.
type ReaderSettings struct {
	FontPath             string              `toml:"font-path"`
	FontFamily           string              `toml:"font-family"`
	FontSize             float64             `toml:"font-size"`    // points
	MarginWidth          int                 `toml:"margin-width"` // millimeters
	LineHeight           float64             `toml:"line-height"`  // ems
	ContinuousFitToWidth bool                `toml:"continuous-fit-to-width"`
	DitheredKinds        []string            `toml:"dithered-kinds"`
	RefreshRate          RefreshRateSettings `toml:"refresh-rate"`
}

// CacheSettings bounds the rendered frame cache.
type CacheSettings struct {
	BudgetMB        int `toml:"budget-mb"`
	PrefetchWorkers int `toml:"prefetch-workers"`
}

// Settings is the full configuration tree.
type Settings struct {
	Inverted bool           `toml:"inverted"`
	Reader   ReaderSettings `toml:"reader"`
	Cache    CacheSettings  `toml:"cache"`
}

// Default returns the settings a fresh install starts from.
func Default() *Settings {
	return &Settings{
		Reader: ReaderSettings{
			FontPath:             "fonts",
			FontFamily:           "Libertinus Serif",
			FontSize:             11.0,
			MarginWidth:          8,
			LineHeight:           1.2,
			ContinuousFitToWidth: true,
			DitheredKinds:        []string{"cbz", "png", "jpg", "jpeg"},
			RefreshRate: RefreshRateSettings{
				Regular:          8,
				Inverted:         2,
				PartialAreaLimit: 0.6,
			},
		},
		Cache: CacheSettings{
			BudgetMB:        32,
			PrefetchWorkers: 2,
		},
	}
}

// Load reads the settings file at path, overlaying it on the
// defaults. A missing file yields the defaults unchanged; a present
// but invalid file is an error.
func Load(path string) (*Settings, error) {
	s := Default()
	if _, err := toml.DecodeFile(path, s); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %s: %w", path, err)
	}
	return s, nil
}

// Save writes the settings to path, creating parent directories as
// needed.
func Save(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	return nil
}

// Validate checks the ranges the rendering pipeline depends on.
func (s *Settings) Validate() error {
	r := s.Reader
	if r.FontSize <= 0 {
		return fmt.Errorf("font-size must be positive, got %v", r.FontSize)
	}
	if r.LineHeight <= 0 {
		return fmt.Errorf("line-height must be positive, got %v", r.LineHeight)
	}
	if r.MarginWidth < 0 {
		return fmt.Errorf("margin-width must not be negative, got %d", r.MarginWidth)
	}
	if rr := r.RefreshRate; rr.Regular < 1 || rr.Inverted < 1 {
		return fmt.Errorf("refresh-rate cadence must be at least 1, got %d/%d",
			rr.Regular, rr.Inverted)
	}
	if limit := r.RefreshRate.PartialAreaLimit; limit <= 0 || limit > 1 {
		return fmt.Errorf("partial-area-limit must be in (0, 1], got %v", limit)
	}
	for kind, pair := range r.RefreshRate.ByKind {
		if pair.Regular < 1 || pair.Inverted < 1 {
			return fmt.Errorf("refresh-rate.by-kind.%s cadence must be at least 1", kind)
		}
	}
	if s.Cache.BudgetMB < 1 {
		return fmt.Errorf("cache budget-mb must be at least 1, got %d", s.Cache.BudgetMB)
	}
	if s.Cache.PrefetchWorkers < 1 {
		return fmt.Errorf("cache prefetch-workers must be at least 1, got %d",
			s.Cache.PrefetchWorkers)
	}
	return nil
}

// FullEvery returns the full-refresh cadence for a document kind,
// honoring per-kind overrides and the inverted-mode cadence.
func (s *Settings) FullEvery(kind string) int {
	rr := s.Reader.RefreshRate
	pair := RefreshRatePair{Regular: rr.Regular, Inverted: rr.Inverted}
	if p, ok := rr.ByKind[kind]; ok {
		pair = p
	}
	if s.Inverted {
		return pair.Inverted
	}
	return pair.Regular
}

// Dithered reports whether frames of the given document kind are
// ordered-dithered before display.
func (s *Settings) Dithered(kind string) bool {
	for _, k := range s.Reader.DitheredKinds {
		if strings.EqualFold(k, kind) {
			return true
		}
	}
	return false
}

// Budget returns the frame cache budget in bytes.
func (c CacheSettings) Budget() int64 {
	return int64(c.BudgetMB) << 20
}
