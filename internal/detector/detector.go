// Package detector runs the full stamp detection pipeline: document
// normalization, two-stage coarse matching, localization with patch
// verification, and the decision policy, all under one time budget.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ironsheep/stamp-detector/internal/budget"
	"github.com/ironsheep/stamp-detector/internal/config"
	"github.com/ironsheep/stamp-detector/internal/document"
	"github.com/ironsheep/stamp-detector/internal/locator"
	"github.com/ironsheep/stamp-detector/internal/matcher"
	"github.com/ironsheep/stamp-detector/internal/stamps"
	"github.com/sirupsen/logrus"
)

// Soft outcome notes.
const (
	NoteNoStamps = "No stamps loaded."
	NoteNoImages = "No images found in document."
)

// ErrUnknownStamp is returned by Locate for a stamp name not in the store.
var ErrUnknownStamp = errors.New("unknown stamp")

// Detector owns the active stamp store and the pipeline collaborators. It is
// safe for concurrent use; detections only read the store snapshot they
// started with.
type Detector struct {
	cfg        *config.Config
	store      atomic.Pointer[stamps.Store]
	loadMu     sync.Mutex
	normalizer *document.Normalizer
	matcher    *matcher.Matcher
	thresholds Thresholds
	locOpts    locator.Options
	log        logrus.FieldLogger
}

// Option customizes a Detector.
type Option func(*Detector)

// WithNormalizer replaces the document normalizer, mainly for tests.
func WithNormalizer(n *document.Normalizer) Option {
	return func(d *Detector) { d.normalizer = n }
}

// WithLogger sets the base logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Detector) { d.log = l }
}

// New builds a Detector from cfg with the production collaborators:
// pdfcpu extraction, MuPDF rendering (cgo builds) and DOCX media reading.
func New(cfg *config.Config, opts ...Option) *Detector {
	d := &Detector{
		cfg:        cfg,
		thresholds: ThresholdsFromConfig(cfg),
		matcher:    matcher.New(matcher.Options{TopK: cfg.CoarseTopK, Workers: cfg.Workers}),
		locOpts: locator.Options{
			DownsampleWidth: cfg.LocDownsampleWidth,
			BaseSize:        cfg.LocBaseSize,
			Scales:          cfg.LocScales,
			Stride:          cfg.LocStride,
			MaxPatches:      cfg.LocMaxPatches,
			TopK:            cfg.LocTopK,
			Workers:         cfg.Workers,
		},
		log: logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(d)
	}
	if d.normalizer == nil {
		d.normalizer = document.NewNormalizer(
			NormalizerOptions(cfg),
			document.NewPDFCPUExtractor(),
			document.NewPageRenderer(),
			document.DOCXExtractor{},
		)
	}
	d.normalizer = d.normalizer.WithLogger(d.log)
	return d
}

// NormalizerOptions extracts the document options from cfg.
func NormalizerOptions(cfg *config.Config) document.Options {
	return document.Options{
		MaxPages:       cfg.MaxPages,
		MaxDimension:   cfg.MaxDimension,
		RenderAlways:   cfg.RenderAlways,
		RenderFallback: cfg.RenderFallback,
		RenderDPI:      cfg.RenderDPI,
		RenderTopPages: cfg.RenderTopPages,
	}
}

// StampOptions extracts the stamp store options from cfg.
func StampOptions(cfg *config.Config) stamps.Options {
	return stamps.Options{
		MaxStamps:    cfg.MaxStamps,
		MaxDimension: cfg.MaxDimension,
		Workers:      cfg.Workers,
		Robust:       cfg.RobustAugments,
		BlurSigma:    cfg.AugBlurSigma,
		JPEGQuality:  cfg.AugJPEGQuality,
		Grayscale:    cfg.AugGrayscale,
	}
}

// Store returns the active stamp store, or nil before the first load.
func (d *Detector) Store() *stamps.Store {
	return d.store.Load()
}

// Stamps returns the active store, loading the configured directory first
// if nothing was initialized yet. It never returns nil.
func (d *Detector) Stamps(ctx context.Context) *stamps.Store {
	return d.ensureStore(ctx)
}

// InitStamps loads the stamp store from dir unless one from the same
// directory is already active. An empty dir selects the configured one.
// Failures are logged and leave an empty store in place.
func (d *Detector) InitStamps(ctx context.Context, dir string) error {
	if dir == "" {
		dir = d.cfg.StampDir
	}
	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	if s := d.store.Load(); s != nil && s.Dir() == dir {
		return nil
	}
	_, err := d.load(ctx, dir)
	return err
}

// ReloadStamps builds a fresh store from dir and swaps it in. Detections in
// flight keep using the store they started with.
func (d *Detector) ReloadStamps(ctx context.Context, dir string) (*stamps.Store, error) {
	if dir == "" {
		dir = d.cfg.StampDir
	}
	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	return d.load(ctx, dir)
}

// load must be called with loadMu held.
func (d *Detector) load(ctx context.Context, dir string) (*stamps.Store, error) {
	store, err := stamps.Load(ctx, dir, StampOptions(d.cfg))
	if err != nil {
		d.log.WithError(err).WithField("dir", dir).Error("Failed to load stamps")
	}
	d.store.Store(store)
	referencesLoaded.Set(float64(store.Len()))
	return store, err
}

// ensureStore returns the active store, loading the configured directory
// if nothing was initialized yet.
func (d *Detector) ensureStore(ctx context.Context) *stamps.Store {
	if s := d.store.Load(); s != nil {
		return s
	}
	d.loadMu.Lock()
	defer d.loadMu.Unlock()
	if s := d.store.Load(); s != nil {
		return s
	}
	store, _ := d.load(ctx, d.cfg.StampDir)
	return store
}

// pass is the outcome of scoring one page list.
type pass struct {
	pages    []document.Page
	match    *matcher.Result
	located  *locator.Result
	verified *locator.Verification
	decision Decision
}

func (p *pass) topScore() float64 {
	if top := p.match.Top(); top != nil {
		return top.Fused
	}
	return 0
}

// DetectOnBuffer runs the pipeline over one document buffer.
//
// It never returns an error: hard failures (unsupported or unreadable
// documents) come back with Success false. Budget exhaustion is a soft
// outcome reported through Reason and Note.
func (d *Detector) DetectOnBuffer(ctx context.Context, data []byte, mime string) *DetectionResult {
	start := time.Now()
	runID := uuid.New().String()
	log := d.log.WithFields(logrus.Fields{
		"run_id": runID,
		"mime":   mime,
		"bytes":  len(data),
	})

	res := d.detect(ctx, data, mime, log)
	res.RunID = runID
	res.TimeMs = time.Since(start).Milliseconds()
	observe(res)

	log.WithFields(logrus.Fields{
		"outcome": res.Outcome(),
		"score":   res.Score,
		"time_ms": res.TimeMs,
	}).Info("Detection finished")
	return res
}

func (d *Detector) detect(ctx context.Context, data []byte, mime string, log logrus.FieldLogger) *DetectionResult {
	b := budget.New(ctx, d.cfg.TimeBudget)

	store := d.ensureStore(ctx)
	if store.Len() == 0 {
		return softResult(ReasonNoStamps, NoteNoStamps)
	}

	doc, err := d.normalizer.Normalize(ctx, data, mime, b)
	if err != nil {
		log.WithError(err).Warn("Document normalization failed")
		return &DetectionResult{Success: false, Error: err.Error(), Reason: "error"}
	}
	log = log.WithFields(logrus.Fields{"kind": doc.Kind.String(), "pages": len(doc.Pages)})
	if len(doc.Pages) == 0 {
		return softResult(ReasonNoImages, NoteNoImages)
	}

	best := d.runPass(ctx, doc.Pages, store, b, log)

	if doc.Kind == document.KindPDF && !best.decision.Match && b.Allows(d.cfg.RenderPassMinBudget) {
		rendered, err := d.normalizer.Render(ctx, data, doc, b)
		switch {
		case err != nil:
			log.WithError(err).Debug("Render-only pass skipped")
		case len(rendered) > 0:
			second := d.runPass(ctx, rendered, store, b, log.WithField("pass", "render"))
			if second.decision.Match || second.topScore() > best.topScore() {
				best = second
			}
		}
	}

	return d.buildResult(best, b)
}

// runPass matches pages against store, localizes the best candidate when it
// is promising and there is time, and applies the policy.
func (d *Detector) runPass(ctx context.Context, pages []document.Page, store *stamps.Store, b *budget.Budget, log logrus.FieldLogger) *pass {
	imgs := make([]image.Image, len(pages))
	for i, p := range pages {
		imgs[i] = p.Image
	}

	p := &pass{pages: pages, match: d.matcher.Match(ctx, imgs, store, b)}
	top := p.match.Top()
	if top != nil && top.Fused >= d.cfg.PrelocThreshold && b.Allows(d.cfg.LocatorMinBudget) {
		d.localize(ctx, p, store, b, log)
	}

	ev := Evidence{Margin: p.match.Margin()}
	if top != nil {
		ev.HasTop = true
		ev.Top = top.Fused
	}
	if p.verified != nil {
		ev.Localized = true
		ev.NCC = p.verified.NCC
		ev.SSIM = p.verified.SSIM
	}
	p.decision = d.thresholds.Decide(ev)

	log.WithFields(logrus.Fields{
		"candidates": len(p.match.Ranked),
		"evaluated":  p.match.Evaluated,
		"top":        p.topScore(),
		"reason":     p.decision.Reason,
	}).Debug("Pass scored")
	return p
}

func (d *Detector) localize(ctx context.Context, p *pass, store *stamps.Store, b *budget.Budget, log logrus.FieldLogger) {
	top := p.match.Top()
	ref, ok := store.Get(top.StampName)
	if !ok {
		return
	}
	page := p.pages[top.PageIndex].Image

	loc := locator.Locate(ctx, page, ref.Primary().Edge, d.locOpts, b)
	p.located = &loc
	if !loc.Found {
		return
	}
	v, err := locator.Verify(page, loc.BBox, ref.Base)
	if err != nil {
		log.WithError(err).Debug("Patch verification skipped")
		return
	}
	p.verified = &v
}

func (d *Detector) buildResult(p *pass, b *budget.Budget) *DetectionResult {
	res := &DetectionResult{
		Success: true,
		Match:   p.decision.Match,
		Reason:  string(p.decision.Reason),
		Note:    d.decisionNote(p.decision.Reason),
	}

	if top := p.match.Top(); top != nil {
		res.Score = round3(top.Fused)
		res.Page = ptr(top.PageIndex + 1)
		res.Stamp = ptr(top.StampName)
		res.Margin = round3(p.match.Margin())
	}
	if p.verified != nil && p.located != nil {
		res.BBox = boxFromRect(p.located.BBox)
		res.NCC = ptr(round3(p.verified.NCC))
		res.SSIM = ptr(round3(p.verified.SSIM))
	}

	if !res.Match && b.Exhausted() {
		res.Reason = string(ReasonBudget)
		res.Note = fmt.Sprintf("Time budget exhausted (%dms) before a confident result. | %s", d.cfg.TimeBudget.Milliseconds(), res.Note)
	}
	return res
}

func (d *Detector) decisionNote(r Reason) string {
	return fmt.Sprintf("%s | hybrid(images+render) | TH_HI=%s, TH_LO=%s", r, threshold(d.thresholds.Hi), threshold(d.thresholds.Lo))
}

// threshold prints v with at least two decimals and no rounding.
func threshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if dot := strings.IndexByte(s, '.'); dot < 0 || len(s)-dot-1 < 2 {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return s
}

func softResult(r Reason, note string) *DetectionResult {
	return &DetectionResult{Success: true, Reason: string(r), Note: note}
}

// LocateResult is the outcome of locating one stamp on one image.
type LocateResult struct {
	Stamp     string                `json:"stamp"`
	Found     bool                  `json:"found"`
	Score     float64               `json:"score"`
	BBox      *BoundingBox          `json:"bbox"`
	Verified  *locator.Verification `json:"verification"`
	Evaluated int                   `json:"evaluated"`
	Truncated bool                  `json:"truncated"`
}

// Locate runs only the locator and verifier for a named stamp on page,
// under a fresh time budget.
func (d *Detector) Locate(ctx context.Context, page *image.NRGBA, stampName string) (*LocateResult, error) {
	store := d.ensureStore(ctx)
	ref, ok := store.Get(stampName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStamp, stampName)
	}

	b := budget.New(ctx, d.cfg.TimeBudget)
	loc := locator.Locate(ctx, page, ref.Primary().Edge, d.locOpts, b)
	out := &LocateResult{
		Stamp:     stampName,
		Found:     loc.Found,
		Score:     round3(loc.Score),
		Evaluated: loc.Evaluated,
		Truncated: loc.Truncated,
	}
	if !loc.Found {
		return out, nil
	}
	out.BBox = boxFromRect(loc.BBox)
	if v, err := locator.Verify(page, loc.BBox, ref.Base); err == nil {
		v.NCC, v.SSIM = round3(v.NCC), round3(v.SSIM)
		out.Verified = &v
	}
	return out, nil
}
