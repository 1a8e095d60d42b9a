package framebuffer

import (
	"errors"
	"image"
	"testing"

	"github.com/OGKevin/plato/geom"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestMemoryStartsWhite(t *testing.T) {
	fb := NewMemory(4, 3)

	if got, want := fb.Bounds(), geom.NewRect(0, 0, 4, 3); got != want {
		t.Fatalf("Bounds() = %+v, want %+v", got, want)
	}
	snap := fb.Snapshot()
	for i, v := range snap.Pix {
		if v != 0xFF {
			t.Fatalf("pixel %d = %d, want 255", i, v)
		}
	}
}

func TestMemoryUpdateRegionCopiesOnlyRegion(t *testing.T) {
	fb := NewMemory(10, 10)
	src := solidGray(10, 10, 0)

	r := geom.NewRect(2, 3, 5, 7)
	if err := fb.UpdateRegion(src, r, Partial); err != nil {
		t.Fatalf("UpdateRegion: %v", err)
	}

	snap := fb.Snapshot()
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := uint8(0xFF)
			if r.Contains(x, y) {
				want = 0
			}
			if got := snap.GrayAt(x, y).Y; got != want {
				t.Fatalf("pixel (%d,%d) = %d, want %d", x, y, got, want)
			}
		}
	}

	ups := fb.Updates()
	if len(ups) != 1 {
		t.Fatalf("got %d updates, want 1", len(ups))
	}
	if ups[0].Rect != r || ups[0].Mode != Partial || ups[0].Failed {
		t.Fatalf("update = %+v, want rect %+v mode partial", ups[0], r)
	}
}

func TestMemoryRejectsWrongSizeSource(t *testing.T) {
	fb := NewMemory(10, 10)
	if err := fb.UpdateRegion(solidGray(5, 5, 0), geom.NewRect(0, 0, 5, 5), Full); err == nil {
		t.Fatal("expected an error for a source not covering the display")
	}
}

func TestMemoryFailNext(t *testing.T) {
	fb := NewMemory(4, 4)
	injected := errors.New("panel timeout")
	fb.FailNext(2, injected)

	src := solidGray(4, 4, 0)
	r := geom.NewRect(0, 0, 4, 4)
	for i := 0; i < 2; i++ {
		if err := fb.UpdateRegion(src, r, Full); !errors.Is(err, injected) {
			t.Fatalf("attempt %d: err = %v, want %v", i, err, injected)
		}
	}
	if err := fb.UpdateRegion(src, r, Full); err != nil {
		t.Fatalf("after failures drained: %v", err)
	}

	ups := fb.Updates()
	if len(ups) != 3 {
		t.Fatalf("got %d updates, want 3", len(ups))
	}
	if !ups[0].Failed || !ups[1].Failed || ups[2].Failed {
		t.Fatalf("failure flags = %v %v %v, want true true false",
			ups[0].Failed, ups[1].Failed, ups[2].Failed)
	}

	if got := fb.Snapshot().GrayAt(1, 1).Y; got != 0 {
		t.Fatalf("pixel after successful update = %d, want 0", got)
	}
}

func TestRefreshModeString(t *testing.T) {
	cases := map[RefreshMode]string{Full: "full", Partial: "partial", Fast: "fast"}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", mode, got, want)
		}
	}
}
