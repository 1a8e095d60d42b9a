package framebuffer

import "testing"

func TestDitherPixel(t *testing.T) {
	cases := []struct {
		v, t, want uint8
	}{
		{0, 0, 0},
		{0, 15, 0},
		{255, 0, 255},
		{255, 15, 255},
		{128, 0, 119},
		{128, 15, 136},
		{17, 0, 17},
	}
	for _, c := range cases {
		if got := ditherPixel(c.v, c.t); got != c.want {
			t.Errorf("ditherPixel(%d, %d) = %d, want %d", c.v, c.t, got, c.want)
		}
	}
}

func TestDitherTo16Levels(t *testing.T) {
	img := solidGray(8, 8, 0)
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 4)
	}
	ditherTo16(img)
	for i, v := range img.Pix {
		if v%17 != 0 {
			t.Fatalf("pixel %d = %d, not one of the 16 panel levels", i, v)
		}
	}
}

func TestInvert(t *testing.T) {
	img := solidGray(4, 4, 40)
	invert(img)
	if got := img.Pix[0]; got != 215 {
		t.Fatalf("inverted 40 = %d, want 215", got)
	}
	invert(img)
	if got := img.Pix[0]; got != 40 {
		t.Fatalf("double inversion = %d, want 40", got)
	}
}
