// Package matcher ranks page x stamp pairs in two stages.
//
// Stage 1 scores every page against every stamp with a cheap fused score,
// taking the best over the stamp's variants. Stage 2 adds global SSIM for the
// top K pairs only and re-ranks them.
package matcher

import (
	"context"
	"image"
	"sort"
	"sync/atomic"

	"github.com/ironsheep/stamp-detector/internal/budget"
	"github.com/ironsheep/stamp-detector/internal/imaging"
	"github.com/ironsheep/stamp-detector/internal/stamps"
	"golang.org/x/sync/errgroup"
)

// Weights of the fused scores. SSIM is zero for the quick stage.
type Weights struct {
	Edge  float64
	Color float64
	Hash  float64
	SSIM  float64
}

var (
	QuickWeights  = Weights{Edge: 0.42, Color: 0.38, Hash: 0.20}
	RefineWeights = Weights{Edge: 0.35, Color: 0.25, Hash: 0.20, SSIM: 0.20}
)

// Fuse combines component scores with w.
func (w Weights) Fuse(c Components) float64 {
	return w.Edge*c.Edge + w.Color*c.Color + w.Hash*c.Hash + w.SSIM*c.SSIM
}

// Components are the per-signal similarities of a candidate.
type Components struct {
	Edge    float64            `json:"edge"`
	Color   float64            `json:"color"`
	Hash    float64            `json:"hash"`
	SSIM    float64            `json:"ssim"`
	Variant stamps.VariantKind `json:"variant"`
}

// Candidate is one scored page x stamp pair.
type Candidate struct {
	PageIndex  int        `json:"page_index"`
	StampName  string     `json:"stamp"`
	Quick      float64    `json:"quick"`
	Fused      float64    `json:"fused"`
	Components Components `json:"components"`
}

// Result is the outcome of Match.
type Result struct {
	// Ranked holds the SSIM-refined candidates, best first.
	Ranked []Candidate

	// Evaluated counts the page x stamp pairs scored in stage 1.
	Evaluated int

	// Truncated is set when the budget ran out before all work finished.
	Truncated bool
}

// Top returns the best candidate, or nil.
func (r *Result) Top() *Candidate {
	if r == nil || len(r.Ranked) == 0 {
		return nil
	}
	return &r.Ranked[0]
}

// RunnerUp returns the best candidate for a stamp other than Top's, or nil.
// The same stamp on another page (or on the rendered copy of a page) is not
// a rival.
func (r *Result) RunnerUp() *Candidate {
	top := r.Top()
	if top == nil {
		return nil
	}
	for i := 1; i < len(r.Ranked); i++ {
		if r.Ranked[i].StampName != top.StampName {
			return &r.Ranked[i]
		}
	}
	return nil
}

// Margin is Top - RunnerUp, with a missing runner-up scoring 0.
func (r *Result) Margin() float64 {
	top := r.Top()
	if top == nil {
		return 0
	}
	if second := r.RunnerUp(); second != nil {
		return top.Fused - second.Fused
	}
	return top.Fused
}

// Options controls matcher fan-out.
type Options struct {
	TopK    int
	Workers int
}

// Matcher scores pages against a stamp store.
type Matcher struct {
	opts Options
}

// New returns a Matcher. TopK below 1 selects 6.
func New(opts Options) *Matcher {
	if opts.TopK < 1 {
		opts.TopK = 6
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Matcher{opts: opts}
}

// PageFeatures is the precomputed signal set of one page.
type PageFeatures struct {
	imaging.FeatureTriplet
	Gray []float64
}

// Features computes the features of every page in parallel. Pages skipped
// because the budget ran out are left nil.
func (m *Matcher) Features(ctx context.Context, pages []image.Image, b *budget.Budget) []*PageFeatures {
	out := make([]*PageFeatures, len(pages))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i, p := range pages {
		g.Go(func() error {
			if b.Over() || p == nil {
				return nil
			}
			out[i] = &PageFeatures{
				FeatureTriplet: imaging.ComputeFeatures(p),
				Gray:           imaging.GrayVector(p, imaging.SSIMSize),
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Match runs both stages. It never fails: budget exhaustion or missing
// inputs produce a shorter (possibly empty) ranking with Truncated set when
// the deadline was the cause.
func (m *Matcher) Match(ctx context.Context, pages []image.Image, store *stamps.Store, b *budget.Budget) *Result {
	res := &Result{}
	refs := store.References()
	if len(pages) == 0 || len(refs) == 0 {
		return res
	}

	feats := m.Features(ctx, pages, b)
	quick, evaluated := m.quick(ctx, feats, refs, b)
	res.Evaluated = evaluated

	res.Ranked = m.refine(ctx, shortList(quick, m.opts.TopK), feats, store, b)
	res.Truncated = b.Exhausted()
	return res
}

// quick scores every available page against every stamp.
func (m *Matcher) quick(ctx context.Context, feats []*PageFeatures, refs []*stamps.Reference, b *budget.Budget) ([]Candidate, int) {
	cands := make([]*Candidate, len(feats)*len(refs))
	var evaluated atomic.Int64

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for pi, pf := range feats {
		if pf == nil {
			continue
		}
		for si, ref := range refs {
			g.Go(func() error {
				if b.Over() {
					return nil
				}
				c := QuickScore(pf.FeatureTriplet, ref)
				c.PageIndex = pi
				cands[pi*len(refs)+si] = &c
				evaluated.Add(1)
				return nil
			})
		}
	}
	_ = g.Wait()

	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c != nil {
			out = append(out, *c)
		}
	}
	sortCandidates(out, func(c Candidate) float64 { return c.Quick })
	return out, int(evaluated.Load())
}

// shortList keeps the k best quick candidates. When they all belong to one
// stamp, the best candidate of any other stamp is appended so the margin is
// measured against a real rival on the refined scale.
func shortList(quick []Candidate, k int) []Candidate {
	if len(quick) <= k {
		return quick
	}
	out := append([]Candidate(nil), quick[:k]...)
	lead := out[0].StampName
	for _, c := range out[1:] {
		if c.StampName != lead {
			return out
		}
	}
	for _, c := range quick[k:] {
		if c.StampName != lead {
			return append(out, c)
		}
	}
	return out
}

// refine adds SSIM to the short list and re-ranks by the refined score.
func (m *Matcher) refine(ctx context.Context, quick []Candidate, feats []*PageFeatures, store *stamps.Store, b *budget.Budget) []Candidate {
	done := make([]bool, len(quick))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for i := range quick {
		g.Go(func() error {
			if b.Over() {
				return nil
			}
			ref, ok := store.Get(quick[i].StampName)
			if !ok {
				return nil
			}
			quick[i].Components.SSIM = imaging.SSIMGray(feats[quick[i].PageIndex].Gray, ref.Gray)
			quick[i].Fused = RefineWeights.Fuse(quick[i].Components)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Candidate, 0, len(quick))
	for i, c := range quick {
		if done[i] {
			out = append(out, c)
		}
	}
	sortCandidates(out, func(c Candidate) float64 { return c.Fused })
	return out
}

// QuickScore is the best-over-variants stage 1 score of page vs ref.
func QuickScore(page imaging.FeatureTriplet, ref *stamps.Reference) Candidate {
	best := Candidate{StampName: ref.Name, Quick: -1}
	for _, v := range ref.Variants {
		s := imaging.Compare(v.Features, page)
		comp := Components{Edge: s.Edge, Color: s.Color, Hash: s.Hash, Variant: v.Kind}
		if q := QuickWeights.Fuse(comp); q > best.Quick {
			best.Quick = q
			best.Fused = q
			best.Components = comp
		}
	}
	if best.Quick < 0 {
		best.Quick, best.Fused = 0, 0
	}
	return best
}

// sortCandidates orders by score descending, then page, then stamp name, so
// rankings do not depend on goroutine scheduling.
func sortCandidates(cs []Candidate, score func(Candidate) float64) {
	sort.SliceStable(cs, func(i, j int) bool {
		si, sj := score(cs[i]), score(cs[j])
		if si != sj {
			return si > sj
		}
		if cs[i].PageIndex != cs[j].PageIndex {
			return cs[i].PageIndex < cs[j].PageIndex
		}
		return cs[i].StampName < cs[j].StampName
	})
}
