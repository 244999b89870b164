// Package locator finds where on a page a stamp most likely sits and
// confirms the region with patch-level NCC and SSIM.
package locator

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/ironsheep/stamp-detector/internal/budget"
	"github.com/ironsheep/stamp-detector/internal/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// minWindow is the smallest search window side, in downsampled pixels.
const minWindow = 64

// Options configures the sliding-window search.
type Options struct {
	DownsampleWidth int
	BaseSize        int
	Scales          []float64
	Stride          int
	MaxPatches      int
	TopK            int
	Workers         int
}

// DefaultOptions returns the stock search grid.
func DefaultOptions() Options {
	return Options{
		DownsampleWidth: 900,
		BaseSize:        160,
		Scales:          []float64{0.6, 0.8, 1.0, 1.25},
		Stride:          28,
		MaxPatches:      360,
		TopK:            6,
		Workers:         4,
	}
}

// Window is a scored search window in page coordinates.
type Window struct {
	Rect  image.Rectangle `json:"-"`
	Score float64         `json:"score"`
}

// Result is the outcome of Locate.
type Result struct {
	// BBox is the best window mapped to page coordinates; valid when Found.
	BBox  image.Rectangle
	Found bool
	Score float64

	// Candidates are the top windows, best first.
	Candidates []Window

	Evaluated int
	Truncated bool
}

type window struct {
	r     image.Rectangle
	score float64
}

// Locate scans page for the region whose edge descriptor best matches
// stampEdge.
//
// The page is downsampled to at most DownsampleWidth wide (never upscaled).
// For each scale a square window of max(64, round(BaseSize*scale)) is slid
// at Stride. At most MaxPatches windows are scored across all scales, and the
// scan stops when the budget runs out, keeping what was scored. Every
// returned rectangle lies inside page.Bounds().
func Locate(ctx context.Context, page *image.NRGBA, stampEdge []float64, opts Options, b *budget.Budget) Result {
	var res Result
	if page == nil || page.Bounds().Empty() || len(stampEdge) == 0 {
		return res
	}
	if opts.Stride < 1 {
		opts.Stride = 1
	}
	if opts.TopK < 1 {
		opts.TopK = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	ds := downsample(page, opts.DownsampleWidth)
	dsB := ds.Bounds()

	rects := grid(dsB, opts)
	scored := make([]window, len(rects))
	done := make([]bool, len(rects))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, r := range rects {
		g.Go(func() error {
			if b.Over() {
				return nil
			}
			desc := imaging.EdgeDescriptor(ds.SubImage(r), imaging.EdgeSize)
			scored[i] = window{r: r, score: imaging.CosineSimilarity(stampEdge, desc)}
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	var wins []window
	for i, ok := range done {
		if ok {
			wins = append(wins, scored[i])
		}
	}
	res.Evaluated = len(wins)
	res.Truncated = b.Exhausted()
	if len(wins) == 0 {
		return res
	}

	sort.SliceStable(wins, func(i, j int) bool {
		if wins[i].score != wins[j].score {
			return wins[i].score > wins[j].score
		}
		if wins[i].r.Min.Y != wins[j].r.Min.Y {
			return wins[i].r.Min.Y < wins[j].r.Min.Y
		}
		return wins[i].r.Min.X < wins[j].r.Min.X
	})
	if len(wins) > opts.TopK {
		wins = wins[:opts.TopK]
	}

	pb := page.Bounds()
	sx := float64(pb.Dx()) / float64(dsB.Dx())
	sy := float64(pb.Dy()) / float64(dsB.Dy())
	for _, w := range wins {
		r := imaging.ClampRect(mapBack(w.r, dsB.Min, pb.Min, sx, sy), pb)
		if r.Empty() {
			continue
		}
		res.Candidates = append(res.Candidates, Window{Rect: r, Score: w.score})
	}
	if len(res.Candidates) > 0 {
		res.BBox = res.Candidates[0].Rect
		res.Score = res.Candidates[0].Score
		res.Found = true
	}
	return res
}

// grid enumerates the search windows in scan order, capped at MaxPatches.
func grid(b image.Rectangle, opts Options) []image.Rectangle {
	var rects []image.Rectangle
	for _, s := range opts.Scales {
		side := max(minWindow, int(math.Round(float64(opts.BaseSize)*s)))
		for y := b.Min.Y; y+side <= b.Max.Y; y += opts.Stride {
			for x := b.Min.X; x+side <= b.Max.X; x += opts.Stride {
				if opts.MaxPatches > 0 && len(rects) >= opts.MaxPatches {
					return rects
				}
				rects = append(rects, image.Rect(x, y, x+side, y+side))
			}
		}
	}
	return rects
}

// downsample scales page to at most width pixels wide, keeping aspect.
func downsample(page *image.NRGBA, width int) *image.NRGBA {
	b := page.Bounds()
	if width <= 0 || b.Dx() <= width {
		return page
	}
	h := max(1, int(math.Round(float64(b.Dy())*float64(width)/float64(b.Dx()))))
	dst := image.NewNRGBA(image.Rect(0, 0, width, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), page, b, draw.Src, nil)
	return dst
}

// mapBack converts a downsampled rectangle to page coordinates.
func mapBack(r image.Rectangle, dsMin, pageMin image.Point, sx, sy float64) image.Rectangle {
	x0 := float64(r.Min.X - dsMin.X)
	y0 := float64(r.Min.Y - dsMin.Y)
	x1 := float64(r.Max.X - dsMin.X)
	y1 := float64(r.Max.Y - dsMin.Y)
	return image.Rect(
		pageMin.X+int(math.Round(x0*sx)),
		pageMin.Y+int(math.Round(y0*sy)),
		pageMin.X+int(math.Round(x1*sx)),
		pageMin.Y+int(math.Round(y1*sy)),
	)
}
