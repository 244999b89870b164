package imaging

import (
	"image"
)

// FeatureTriplet is the precomputed descriptor set for one raster. It is
// immutable once computed; callers must not modify the slices.
type FeatureTriplet struct {
	Hash      uint64    `json:"-"`
	Histogram []float64 `json:"-"`
	Edge      []float64 `json:"-"`
}

// ComputeFeatures derives the full triplet for img.
func ComputeFeatures(img image.Image) FeatureTriplet {
	return FeatureTriplet{
		Hash:      PerceptualHash(img),
		Histogram: ColorHistogram(img, HueBins, SatBins),
		Edge:      EdgeDescriptor(img, EdgeSize),
	}
}

// Similarity holds the per-signal scores between two triplets, each in [0, 1].
type Similarity struct {
	Edge  float64 `json:"edge"`
	Color float64 `json:"color"`
	Hash  float64 `json:"hash"`
}

// Compare scores two triplets signal by signal.
func Compare(a, b FeatureTriplet) Similarity {
	return Similarity{
		Edge:  clamp01(CosineSimilarity(a.Edge, b.Edge)),
		Color: HistogramSimilarity(a.Histogram, b.Histogram),
		Hash:  HashSimilarity(a.Hash, b.Hash),
	}
}
