package imaging

import (
	"fmt"
	"image"
	"math/bits"

	"github.com/disintegration/imaging"
)

// PerceptualHash computes the 64-bit difference hash (dHash) of img.
//
// The image is stretched to a 9x8 grayscale grid. For each of the 8 rows,
// each of the 8 adjacent horizontal pairs contributes one bit, set when the
// left pixel is brighter than the right one. Bits are packed row-major with
// the first comparison in the most significant position.
func PerceptualHash(img image.Image) uint64 {
	g := imaging.Grayscale(imaging.Resize(img, 9, 8, resample))

	var h uint64
	for y := 0; y < 8; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < 8; x++ {
			h <<= 1
			if row[x*4] > row[(x+1)*4] {
				h |= 1
			}
		}
	}
	return h
}

// HashSimilarity returns the fraction of matching bits between two hashes.
func HashSimilarity(a, b uint64) float64 {
	return float64(64-bits.OnesCount64(a^b)) / 64
}

// HashHex formats a hash the way it is shown to clients.
func HashHex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
