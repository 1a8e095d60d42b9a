package framebuffer

import "image"

// bayer4 is the 4x4 ordered dither threshold matrix.
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// ditherTo16 quantizes img in place to the 16 gray levels the panel
// can hold, using the Bayer matrix so continuous-tone images keep
// their texture instead of banding.
func ditherTo16(img *image.Gray) {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		thresholds := &bayer4[y&3]
		for x := range row {
			row[x] = ditherPixel(row[x], thresholds[x&3])
		}
	}
}

// ditherPixel maps an 8-bit gray value onto the nearest of 16 levels,
// biased by the threshold cell t in 0..15.
func ditherPixel(v, t uint8) uint8 {
	x := int(v) + (int(t)*17+8)/16 - 8
	if x < 0 {
		x = 0
	} else if x > 255 {
		x = 255
	}
	level := (x + 8) / 17
	if level > 15 {
		level = 15
	}
	return uint8(level * 17)
}

// invert flips every gray value for night mode.
func invert(img *image.Gray) {
	for i, v := range img.Pix {
		img.Pix[i] = 255 - v
	}
}
