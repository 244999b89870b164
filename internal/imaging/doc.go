// Package imaging provides the pixel and feature primitives used by stamp
// matching.
//
// Every function here is pure: it reads its inputs, allocates its own
// buffers, and keeps no state between calls. They are safe to call
// concurrently on the same image as long as nobody mutates that image.
//
// # Normalization
//
// ResizeNormalize is the canonical first step. It flattens transparency onto
// white and bounds the longer side to a maximum dimension without upscaling,
// so features computed for documents of different native resolutions are
// comparable.
//
// # Features
//
// A FeatureTriplet combines three cheap descriptors:
//   - Hash: 64-bit difference hash (dHash) over a 9x8 grayscale grid
//   - Histogram: 16x8 hue/saturation histogram normalized to sum 1
//   - Edge: L2-normalized Sobel gradient magnitudes over a 128x128 grid
//
// # Similarities
//
// All similarities are symmetric and return values in [0, 1]:
//   - HashSimilarity: fraction of matching hash bits
//   - CosineSimilarity: dot product over norms (callers clamp to [0, 1])
//   - HistogramSimilarity: Bhattacharyya coefficient
//   - SSIM: single-window structural similarity on 128x128 grayscale
//   - NCC: zero-mean normalized cross-correlation of edge descriptors
//
// None of them ever return NaN or Inf; degenerate inputs score 0.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with the origin at the top-left corner.
// Rectangles are half-open: Min is inclusive, Max is exclusive.
package imaging
