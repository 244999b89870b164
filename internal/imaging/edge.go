package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"
)

// EdgeSize is the side of the grid edge descriptors are computed on.
const EdgeSize = 128

// sobelBias recenters the 8-bit convolution output so negative gradients
// survive the clamp to 0..255.
const sobelBias = 128

var (
	sobelX = &convolution.Kernel{
		Matrix: []float64{
			-1, 0, 1,
			-2, 0, 2,
			-1, 0, 1,
		},
		Width:  3,
		Height: 3,
	}
	sobelY = &convolution.Kernel{
		Matrix: []float64{
			-1, -2, -1,
			0, 0, 0,
			1, 2, 1,
		},
		Width:  3,
		Height: 3,
	}
)

// EdgeDescriptor computes the gradient-magnitude descriptor of img.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - size: Side of the square grid. Zero or negative selects EdgeSize.
//
// Returns a size*size vector, row-major, with unit L2 norm. An image with no
// gradients at all (a flat fill) yields the zero vector.
//
// # Algorithm
//
//  1. Cover-resize to size x size and convert to grayscale
//  2. Convolve with the horizontal and vertical 3x3 Sobel kernels, storing
//     each response offset by sobelBias in an 8-bit channel
//  3. magnitude = hypot(gx - bias, gy - bias) per pixel
//  4. L2-normalize the whole vector
func EdgeDescriptor(img image.Image, size int) []float64 {
	if size <= 0 {
		size = EdgeSize
	}

	gray := imaging.Grayscale(imaging.Fill(img, size, size, imaging.Center, resample))
	opts := &convolution.Options{Bias: sobelBias}
	gx := convolution.Convolve(gray, sobelX, opts)
	gy := convolution.Convolve(gray, sobelY, opts)

	desc := make([]float64, size*size)
	for y := 0; y < size; y++ {
		rowX := gx.Pix[y*gx.Stride:]
		rowY := gy.Pix[y*gy.Stride:]
		for x := 0; x < size; x++ {
			dx := float64(rowX[x*4]) - sobelBias
			dy := float64(rowY[x*4]) - sobelBias
			desc[y*size+x] = math.Hypot(dx, dy)
		}
	}

	if norm := floats.Norm(desc, 2); norm > 0 {
		floats.Scale(1/norm, desc)
	}
	return desc
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Vectors of different length are compared over their common
// prefix. Two zero vectors are identical (1); a zero vector against a
// non-zero one scores 0.
func CosineSimilarity(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	a, b = a[:n], b[:n]

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	switch {
	case na == 0 && nb == 0:
		return 1
	case na == 0 || nb == 0:
		return 0
	}

	cos := floats.Dot(a, b) / (na * nb)
	if cos != cos {
		return 0
	}
	return math.Max(-1, math.Min(1, cos))
}
