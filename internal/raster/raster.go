// Package raster holds the grayscale pixel transforms shared by the
// codecs and the page rasterizer. Images are expected to have
// zero-origin bounds, which is what every producer in this module
// allocates.
package raster

import (
	"image"

	"github.com/OGKevin/plato/geom"
)

// Rotate returns the image rotated clockwise by rot. Rotate0 returns
// src itself; other rotations allocate a new image.
func Rotate(src *image.Gray, rot geom.Rotation) *image.Gray {
	switch rot.Normalize() {
	case geom.Rotate90:
		return rotate90(src)
	case geom.Rotate180:
		return rotate180(src)
	case geom.Rotate270:
		return rotate270(src)
	default:
		return src
	}
}

func rotate90(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, h, w))
	for dy := 0; dy < w; dy++ {
		row := dst.Pix[dy*dst.Stride:]
		for dx := 0; dx < h; dx++ {
			row[dx] = src.Pix[(h-1-dx)*src.Stride+dy]
		}
	}
	return dst
}

func rotate180(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for dy := 0; dy < h; dy++ {
		row := dst.Pix[dy*dst.Stride:]
		srow := src.Pix[(h-1-dy)*src.Stride:]
		for dx := 0; dx < w; dx++ {
			row[dx] = srow[w-1-dx]
		}
	}
	return dst
}

func rotate270(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, h, w))
	for dy := 0; dy < w; dy++ {
		row := dst.Pix[dy*dst.Stride:]
		for dx := 0; dx < h; dx++ {
			row[dx] = src.Pix[dx*src.Stride+(w-1-dy)]
		}
	}
	return dst
}
