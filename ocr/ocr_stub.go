//go:build !ocr

// Package ocr supplies a text layer for raster pages through the
// Tesseract engine via gosseract.
//
// This is the stub used when the "ocr" build tag is not set: gosseract
// needs cgo and an installed Tesseract, so OCR support is opt-in. All
// operations report ErrNotEnabled. To enable OCR:
//
//	go build -tags ocr
package ocr

import (
	"errors"
	"image"

	"github.com/OGKevin/plato/document"
)

// ErrNotEnabled is returned when OCR is used without OCR support
// compiled in. Rebuild with -tags ocr to enable it.
var ErrNotEnabled = errors.New("ocr: support not enabled; rebuild with -tags ocr")

// PageSegMode mirrors gosseract's page segmentation modes so callers
// compile against the same surface with and without the tag.
type PageSegMode int

const (
	PSMOSDOnly PageSegMode = iota
	PSMAutoOSD
	PSMAutoOnly
	PSMAuto
	PSMSingleColumn
	PSMSingleBlockVertText
	PSMSingleBlock
	PSMSingleLine
	PSMSingleWord
	PSMCircleWord
	PSMSingleChar
	PSMSparseText
	PSMSparseTextOSD
	PSMRawLine
)

// Client is the stub recognizer; every operation reports ErrNotEnabled.
type Client struct{}

var _ document.TextRecognizer = (*Client)(nil)

// New reports that OCR support is not compiled in.
func New() (*Client, error) {
	return nil, ErrNotEnabled
}

// Close is a no-op, safe on a nil client.
func (c *Client) Close() error { return nil }

// SetLanguage reports that OCR support is not compiled in.
func (c *Client) SetLanguage(lang string) error { return ErrNotEnabled }

// SetPageSegMode reports that OCR support is not compiled in.
func (c *Client) SetPageSegMode(mode PageSegMode) error { return ErrNotEnabled }

// Recognize reports that OCR support is not compiled in.
func (c *Client) Recognize(img *image.Gray) ([]document.BoundedText, error) {
	return nil, ErrNotEnabled
}

// Plain reports that OCR support is not compiled in.
func (c *Client) Plain(img *image.Gray) (string, error) {
	return "", ErrNotEnabled
}
