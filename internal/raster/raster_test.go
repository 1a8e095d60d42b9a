package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/OGKevin/plato/geom"
)

// grid builds a w x h image whose pixel values encode their position,
// so rotations are easy to verify.
func grid(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(10*y + x)})
		}
	}
	return img
}

func checkPixels(t *testing.T, img *image.Gray, want [][]uint8) {
	t.Helper()
	b := img.Bounds()
	if b.Dy() != len(want) || b.Dx() != len(want[0]) {
		t.Fatalf("dims = %dx%d, want %dx%d", b.Dx(), b.Dy(), len(want[0]), len(want))
	}
	for y, row := range want {
		for x, v := range row {
			if got := img.GrayAt(x, y).Y; got != v {
				t.Errorf("pixel (%d,%d) = %d, want %d", x, y, got, v)
			}
		}
	}
}

func TestRotateIdentity(t *testing.T) {
	src := grid(3, 2)
	if got := Rotate(src, geom.Rotate0); got != src {
		t.Error("Rotate0 should return the source unchanged")
	}
}

func TestRotate90(t *testing.T) {
	// 2x1 row [0 1] rotated clockwise becomes the column [0; 1].
	got := Rotate(grid(2, 1), geom.Rotate90)
	checkPixels(t, got, [][]uint8{{0}, {1}})

	// 3x2 grid: the left column becomes the top row.
	got = Rotate(grid(3, 2), geom.Rotate90)
	checkPixels(t, got, [][]uint8{
		{10, 0},
		{11, 1},
		{12, 2},
	})
}

func TestRotate180(t *testing.T) {
	got := Rotate(grid(3, 2), geom.Rotate180)
	checkPixels(t, got, [][]uint8{
		{12, 11, 10},
		{2, 1, 0},
	})
}

func TestRotate270(t *testing.T) {
	// 2x1 row [0 1] rotated counterclockwise becomes the column [1; 0].
	got := Rotate(grid(2, 1), geom.Rotate270)
	checkPixels(t, got, [][]uint8{{1}, {0}})

	got = Rotate(grid(3, 2), geom.Rotate270)
	checkPixels(t, got, [][]uint8{
		{2, 12},
		{1, 11},
		{0, 10},
	})
}

func TestRotateNormalizesDegrees(t *testing.T) {
	src := grid(3, 2)
	a := Rotate(src, geom.Rotate90)
	b := Rotate(src, geom.Rotation(450))
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatal("450 degrees should rotate like 90")
		}
	}
}

func TestRotateRoundTrip(t *testing.T) {
	src := grid(4, 3)
	got := Rotate(Rotate(src, geom.Rotate90), geom.Rotate270)
	for i := range src.Pix {
		if src.Pix[i] != got.Pix[i] {
			t.Fatal("90 then 270 should reproduce the source")
		}
	}
}
