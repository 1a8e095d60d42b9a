//go:build ocr

// Package ocr supplies a text layer for raster pages through the
// Tesseract engine via gosseract. Image-kind documents have no text of
// their own; attaching a Client gives them word-level positioned runs.
//
// Tesseract must be installed on the system. On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
//
// Builds without the "ocr" tag use a stub that reports ErrNotEnabled,
// so the rest of the module stays free of the cgo dependency.
package ocr

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/OGKevin/plato/document"
	"github.com/OGKevin/plato/geom"
)

// ErrNotEnabled is only returned by the stub build; it is declared
// here too so callers can test against it unconditionally.
var ErrNotEnabled = errors.New("ocr: support not enabled; rebuild with -tags ocr")

// minWordConfidence drops words Tesseract itself is unsure about.
// Recognized noise on comic pages is worse than a sparse text layer.
const minWordConfidence = 30

// Client wraps a Tesseract session. It implements
// document.TextRecognizer and can be attached to image-kind documents.
// Recognition calls are serialized internally; the underlying engine
// is single-threaded.
type Client struct {
	mu     sync.Mutex
	client *gosseract.Client
}

var _ document.TextRecognizer = (*Client)(nil)

// New starts a Tesseract session with English defaults. The caller
// must Close it to release engine resources.
func New() (*Client, error) {
	return &Client{client: gosseract.NewClient()}, nil
}

// Close releases the engine. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// SetLanguage selects the recognition languages as a "+" separated
// list, for example "eng+fra". The default is English.
func (c *Client) SetLanguage(lang string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return fmt.Errorf("ocr: client closed")
	}
	return c.client.SetLanguage(lang)
}

// SetPageSegMode sets Tesseract's page segmentation mode. Sparse modes
// suit comic pages; the default automatic mode suits scanned text.
func (c *Client) SetPageSegMode(mode gosseract.PageSegMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return fmt.Errorf("ocr: client closed")
	}
	return c.client.SetPageSegMode(mode)
}

// Recognize runs word-level OCR on the page and returns positioned
// runs in reading order. Run offsets are -1: recognized text has no
// content stream behind it.
func (c *Client) Recognize(img *image.Gray) ([]document.BoundedText, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, fmt.Errorf("ocr: client closed")
	}

	if err := c.setImage(img); err != nil {
		return nil, err
	}
	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("ocr: recognize: %w", err)
	}

	runs := make([]document.BoundedText, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" || b.Confidence < minWordConfidence {
			continue
		}
		runs = append(runs, document.BoundedText{
			Text: word,
			Box: geom.NewBBox(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Dx()), float64(b.Box.Dy()),
			),
			Start: -1,
			End:   -1,
		})
	}
	return runs, nil
}

// Plain recognizes the page and returns its text as a single string
// with surrounding whitespace trimmed.
func (c *Client) Plain(img *image.Gray) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return "", fmt.Errorf("ocr: client closed")
	}

	if err := c.setImage(img); err != nil {
		return "", err
	}
	text, err := c.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: recognize: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// setImage hands the page to the engine as PNG bytes. The caller holds
// the lock.
func (c *Client) setImage(img *image.Gray) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("ocr: encode page: %w", err)
	}
	if err := c.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return fmt.Errorf("ocr: set image: %w", err)
	}
	return nil
}
