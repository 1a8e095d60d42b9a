//go:build ocr

package ocr

import (
	"image"
	"image/color"
	"testing"
)

// createTestPage draws a black bar on a white page. The pattern is not
// real text, so tests only verify the engine round-trip, not what it
// recognizes.
func createTestPage(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 10; y < 30 && y < height; y++ {
		for x := 10; x < 50 && x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	return img
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New()
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNew(t *testing.T) {
	client := newTestClient(t)
	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestRecognize(t *testing.T) {
	client := newTestClient(t)

	// The fixture is just a rectangle; we only assert the call works
	// and every surviving run is positioned with unknown offsets.
	runs, err := client.Recognize(createTestPage(100, 50))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	for _, r := range runs {
		if r.Text == "" {
			t.Error("empty word survived filtering")
		}
		if r.Start != -1 || r.End != -1 {
			t.Errorf("run %q has offsets [%d,%d), want -1", r.Text, r.Start, r.End)
		}
	}
}

func TestPlain(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Plain(createTestPage(100, 50)); err != nil {
		t.Errorf("Plain: %v", err)
	}
}

func TestSetLanguage(t *testing.T) {
	client := newTestClient(t)
	if err := client.SetLanguage("eng"); err != nil {
		t.Errorf("SetLanguage: %v", err)
	}
}

func TestCloseTwice(t *testing.T) {
	client, err := New()
	if err != nil {
		t.Skipf("Tesseract not available: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := client.Recognize(createTestPage(10, 10)); err == nil {
		t.Error("Recognize on closed client should fail")
	}
}
