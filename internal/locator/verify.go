package locator

import (
	"image"

	"github.com/ironsheep/stamp-detector/internal/imaging"
)

// Verification holds the patch-level confirmation scores, each in [0, 1].
type Verification struct {
	NCC  float64 `json:"ncc"`
	SSIM float64 `json:"ssim"`
}

// Verify crops page at box and compares the patch with the stamp image:
// NCC over edge descriptors and global SSIM. A box outside the page fails
// with imaging.ErrCropOutOfBounds.
func Verify(page image.Image, box image.Rectangle, stamp image.Image) (Verification, error) {
	patch, err := imaging.Crop(page, box)
	if err != nil {
		return Verification{}, err
	}
	return Verification{
		NCC:  imaging.NCCImages(patch, stamp),
		SSIM: imaging.SSIM(patch, stamp),
	}, nil
}
