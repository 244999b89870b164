package imaging

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"
)

// Histogram grid defaults.
const (
	HueBins        = 16
	SatBins        = 8
	HistogramThumb = 128
)

// ColorHistogram computes a 2-D hue/saturation histogram of img.
//
// Parameters:
//   - img: Source image. Alpha is ignored; normalize first to flatten it.
//   - hueBins: Number of hue bins over 0-360 degrees. Zero selects HueBins.
//   - satBins: Number of saturation bins over 0-1. Zero selects SatBins.
//
// Returns a hueBins*satBins vector indexed as hue*satBins+sat whose entries
// sum to 1.
//
// # Color Conversion
//
// The image is cover-resized to 128x128 and each pixel is converted RGB -> HSV.
// Achromatic pixels (gray, white, black) have hue 0 and saturation 0, so they
// all land in the first bin.
func ColorHistogram(img image.Image, hueBins, satBins int) []float64 {
	if hueBins <= 0 {
		hueBins = HueBins
	}
	if satBins <= 0 {
		satBins = SatBins
	}

	thumb := imaging.Fill(img, HistogramThumb, HistogramThumb, imaging.Center, resample)
	hist := make([]float64, hueBins*satBins)

	for y := 0; y < HistogramThumb; y++ {
		row := thumb.Pix[y*thumb.Stride:]
		for x := 0; x < HistogramThumb; x++ {
			p := row[x*4:]
			c := colorful.Color{
				R: float64(p[0]) / 255.0,
				G: float64(p[1]) / 255.0,
				B: float64(p[2]) / 255.0,
			}
			h, s, _ := c.Hsv()
			hi := clamp(int(h/360.0*float64(hueBins)), 0, hueBins-1)
			si := clamp(int(s*float64(satBins)), 0, satBins-1)
			hist[hi*satBins+si]++
		}
	}

	if sum := floats.Sum(hist); sum > 0 {
		floats.Scale(1/sum, hist)
	}
	return hist
}

// HistogramSimilarity returns the Bhattacharyya coefficient of two normalized
// histograms: 1 for identical distributions, 0 for disjoint ones.
func HistogramSimilarity(a, b []float64) float64 {
	n := min(len(a), len(b))
	var bc float64
	for i := 0; i < n; i++ {
		if a[i] > 0 && b[i] > 0 {
			bc += math.Sqrt(a[i] * b[i])
		}
	}
	return clamp01(bc)
}

// PeakBin returns the index and mass of the fullest histogram bin.
func PeakBin(hist []float64) (int, float64) {
	if len(hist) == 0 {
		return -1, 0
	}
	i := floats.MaxIdx(hist)
	return i, hist[i]
}
