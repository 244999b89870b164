package stamps

import (
	"bytes"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"
	featimg "github.com/ironsheep/stamp-detector/internal/imaging"
)

// Linear contrast applied to the grayscale variant: v' = grayGain*v + grayOffset.
const (
	grayGain   = 1.05
	grayOffset = -5
)

// BuildVariants computes the base triplet and, when robustness augmentation
// is on, triplets for the blurred, recompressed and grayscale-contrast copies.
// A perturbation that fails is left out; the base variant is always present.
func BuildVariants(base image.Image, opts Options) []Variant {
	variants := []Variant{{Kind: VariantBase, Features: featimg.ComputeFeatures(base)}}
	if !opts.Robust {
		return variants
	}

	if opts.BlurSigma > 0 {
		variants = append(variants, Variant{
			Kind:     VariantBlur,
			Features: featimg.ComputeFeatures(imaging.Blur(base, opts.BlurSigma)),
		})
	}
	if jpegish, err := recompress(base, opts.JPEGQuality); err == nil {
		variants = append(variants, Variant{Kind: VariantJPEG, Features: featimg.ComputeFeatures(jpegish)})
	}
	if opts.Grayscale {
		variants = append(variants, Variant{Kind: VariantGray, Features: featimg.ComputeFeatures(grayContrast(base))})
	}
	return variants
}

// recompress round-trips img through lossy JPEG at quality q.
func recompress(img image.Image, q int) (image.Image, error) {
	if q <= 0 || q > 100 {
		q = 60
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
		return nil, err
	}
	return imaging.Decode(&buf)
}

// grayContrast converts to grayscale and applies the linear contrast stretch.
func grayContrast(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	return adjust.Apply(gray, func(c color.RGBA) color.RGBA {
		return color.RGBA{
			R: linear(c.R),
			G: linear(c.G),
			B: linear(c.B),
			A: c.A,
		}
	})
}

func linear(v uint8) uint8 {
	f := grayGain*float64(v) + grayOffset
	switch {
	case f < 0:
		return 0
	case f > 255:
		return 255
	}
	return uint8(f + 0.5)
}
