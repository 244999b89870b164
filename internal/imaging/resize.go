package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// DefaultMaxDimension bounds the longer side of every normalized raster.
const DefaultMaxDimension = 1600

// resample is the filter for every feature-grid resize. Linear keeps the
// locator's per-window cost low while staying smooth enough for dHash.
var resample = imaging.Linear

// ResizeNormalize flattens img onto white and scales it so its longer side is
// at most maxDim, preserving aspect ratio and never upscaling.
//
// A maxDim of zero or less only flattens. The result always has its origin at
// (0, 0).
func ResizeNormalize(img image.Image, maxDim int) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	flat := Flatten(img)
	w, h := flat.Bounds().Dx(), flat.Bounds().Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return flat, nil
	}
	return imaging.Fit(flat, maxDim, maxDim, imaging.Lanczos), nil
}

// Flatten composites img over an opaque white background.
func Flatten(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

// GrayVector resizes img to a size x size grid (cover fit, centered) and
// returns its luminance values in 0..255, row-major.
func GrayVector(img image.Image, size int) []float64 {
	g := imaging.Grayscale(imaging.Fill(img, size, size, imaging.Center, resample))
	out := make([]float64, size*size)
	for y := 0; y < size; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < size; x++ {
			out[y*size+x] = float64(row[x*4])
		}
	}
	return out
}

// DimensionsOf returns the width and height of img.
func DimensionsOf(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// clamp constrains an integer value to the range [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

// clamp01 constrains a score to [0, 1]; NaN maps to 0.
func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
