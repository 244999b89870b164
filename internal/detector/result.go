package detector

import (
	"image"
	"math"
)

// BoundingBox is an axis-aligned rectangle in the coordinate space of the
// normalized page the stamp was found on.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func boxFromRect(r image.Rectangle) *BoundingBox {
	return &BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// DetectionResult is the externally visible outcome of one detection.
//
// Every field is always serialized. Page, Stamp, BBox, NCC and SSIM are
// null when not applicable. Success is false only for hard failures, in
// which case Error carries the message.
type DetectionResult struct {
	Success bool         `json:"success"`
	Match   bool         `json:"match"`
	Score   float64      `json:"score"`
	Page    *int         `json:"page"`
	Stamp   *string      `json:"stamp"`
	Margin  float64      `json:"margin"`
	BBox    *BoundingBox `json:"bbox"`
	NCC     *float64     `json:"ncc"`
	SSIM    *float64     `json:"ssim"`
	Reason  string       `json:"reason"`
	Note    string       `json:"note"`
	Error   string       `json:"error,omitempty"`
	TimeMs  int64        `json:"timeMs"`
	RunID   string       `json:"runId"`
}

// Outcome is a short label for metrics and logs.
func (r *DetectionResult) Outcome() string {
	switch {
	case !r.Success:
		return "error"
	case r.Match:
		return "match"
	case r.Reason != "":
		return r.Reason
	default:
		return "no-match"
	}
}

// round3 rounds to three decimals, as scores are reported.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func ptr[T any](v T) *T {
	return &v
}
