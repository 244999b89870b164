package imaging

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// SSIMSize is the grid side SSIM is evaluated on.
const SSIMSize = 128

// SSIM constants for 8-bit luminance.
const (
	ssimL  = 255.0
	ssimK1 = 0.01
	ssimK2 = 0.03
)

var (
	ssimC1 = (ssimK1 * ssimL) * (ssimK1 * ssimL)
	ssimC2 = (ssimK2 * ssimL) * (ssimK2 * ssimL)
)

// SSIM computes the global structural similarity of two images after
// resizing both to 128x128 grayscale. The result is clamped to [0, 1].
func SSIM(a, b image.Image) float64 {
	return SSIMGray(GrayVector(a, SSIMSize), GrayVector(b, SSIMSize))
}

// SSIMGray computes single-window SSIM over two equal-length luminance
// vectors (values 0..255), using sample variance and covariance:
//
//	ssim = ((2*ma*mb + C1) * (2*cov + C2)) / ((ma² + mb² + C1) * (va + vb + C2))
//
// Vectors of different length or with fewer than two samples score 0.
func SSIMGray(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}

	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	cov := stat.Covariance(a, b, nil)

	num := (2*ma*mb + ssimC1) * (2*cov + ssimC2)
	den := (ma*ma + mb*mb + ssimC1) * (va + vb + ssimC2)
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// NCC computes the zero-mean normalized cross-correlation of two edge
// descriptors, clamped to [0, 1]. Vectors are compared over their common
// prefix. A constant vector has no structure to correlate and scores 0.
func NCC(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]

	ma := stat.Mean(a, nil)
	mb := stat.Mean(b, nil)

	var num, da, db float64
	for i := 0; i < n; i++ {
		pa := a[i] - ma
		pb := b[i] - mb
		num += pa * pb
		da += pa * pa
		db += pb * pb
	}

	den := math.Sqrt(da * db)
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// NCCImages computes NCC between the edge descriptors of two images.
func NCCImages(a, b image.Image) float64 {
	return NCC(EdgeDescriptor(a, EdgeSize), EdgeDescriptor(b, EdgeSize))
}
