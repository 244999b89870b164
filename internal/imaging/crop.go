package imaging

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrCropOutOfBounds is returned when a crop rectangle leaves the image.
var ErrCropOutOfBounds = errors.New("crop region outside image bounds")

// Crop extracts the half-open rectangle r from img.
//
// r is expressed in img's own coordinate space. The result has its origin at
// (0, 0). Crops that are empty or not fully contained fail with
// ErrCropOutOfBounds instead of being silently clipped.
func Crop(img image.Image, r image.Rectangle) (*image.NRGBA, error) {
	bounds := img.Bounds()
	if r.Empty() {
		return nil, fmt.Errorf("%w: empty region %v", ErrCropOutOfBounds, r)
	}
	if !r.In(bounds) {
		return nil, fmt.Errorf("%w: region %v not within %v", ErrCropOutOfBounds, r, bounds)
	}
	return imaging.Crop(img, r), nil
}

// ClampRect shrinks r to fit inside bounds. The returned rectangle may be
// empty if r does not intersect bounds at all.
func ClampRect(r, bounds image.Rectangle) image.Rectangle {
	r.Min.X = clamp(r.Min.X, bounds.Min.X, bounds.Max.X)
	r.Min.Y = clamp(r.Min.Y, bounds.Min.Y, bounds.Max.Y)
	r.Max.X = clamp(r.Max.X, r.Min.X, bounds.Max.X)
	r.Max.Y = clamp(r.Max.Y, r.Min.Y, bounds.Max.Y)
	return r
}
