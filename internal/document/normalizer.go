package document

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/stamp-detector/internal/budget"
	"github.com/ironsheep/stamp-detector/internal/imaging"
	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupportedDocumentType is returned for buffers that are neither a
	// PDF, a DOCX package nor a raster image.
	ErrUnsupportedDocumentType = errors.New("unsupported document type")

	// ErrExtractionFailed is returned when a container cannot be parsed or
	// rendered at all.
	ErrExtractionFailed = errors.New("document extraction failed")

	// ErrRenderUnavailable is returned by renderers built without a
	// rasterization backend.
	ErrRenderUnavailable = errors.New("pdf rendering unavailable in this build")
)

// Source records where a page raster came from.
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceRender   Source = "render"
	SourcePackage  Source = "package"
	SourceImage    Source = "image"
)

// Extracted is a raw raster handed back by a collaborator. PageNumber is the
// 1-based source page when the container has pages, 0 otherwise.
type Extracted struct {
	PageNumber int
	Image      image.Image
}

// EmbeddedExtractor pulls the raster images embedded in the first maxPages
// pages of a PDF.
type EmbeddedExtractor interface {
	ExtractImages(ctx context.Context, pdf []byte, maxPages int) ([]Extracted, error)
}

// PageRenderer rasterizes the first maxPages pages of a PDF at dpi.
type PageRenderer interface {
	RenderPages(ctx context.Context, pdf []byte, dpi float64, maxPages int) ([]Extracted, error)
}

// PackageExtractor reads up to maxEntries raster entries from a DOCX package.
type PackageExtractor interface {
	ExtractImages(docx []byte, maxEntries int) ([]Extracted, error)
}

// Page is one normalized raster of a document. Index is its position in the
// returned list; "page" in results refers to Index+1.
type Page struct {
	Index      int
	PageNumber int
	Source     Source
	Image      *image.NRGBA
}

// Document is the normalized form of an input buffer.
type Document struct {
	Kind  Kind
	Pages []Page
}

// Rendered returns the pages produced by the page renderer.
func (d *Document) Rendered() []Page {
	var out []Page
	for _, p := range d.Pages {
		if p.Source == SourceRender {
			out = append(out, p)
		}
	}
	return out
}

// Options controls how the Normalizer treats PDFs and caps output size.
type Options struct {
	MaxPages       int
	MaxDimension   int
	RenderAlways   bool
	RenderFallback bool
	RenderDPI      float64
	RenderTopPages int
}

// Normalizer converts document buffers into normalized page lists.
type Normalizer struct {
	opts     Options
	embedded EmbeddedExtractor
	renderer PageRenderer
	pkg      PackageExtractor
	log      logrus.FieldLogger
}

// NewNormalizer wires the collaborators. A nil renderer disables rendering.
func NewNormalizer(opts Options, embedded EmbeddedExtractor, renderer PageRenderer, pkg PackageExtractor) *Normalizer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = imaging.DefaultMaxDimension
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 12
	}
	if opts.RenderTopPages <= 0 {
		opts.RenderTopPages = 1
	}
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = 144
	}
	return &Normalizer{
		opts:     opts,
		embedded: embedded,
		renderer: renderer,
		pkg:      pkg,
		log:      logrus.StandardLogger(),
	}
}

// WithLogger returns a copy of n that logs through l.
func (n *Normalizer) WithLogger(l logrus.FieldLogger) *Normalizer {
	c := *n
	c.log = l
	return &c
}

// CanRender reports whether a second, render-only PDF pass is possible.
func (n *Normalizer) CanRender() bool {
	return n.renderer != nil && n.opts.RenderFallback
}

// Normalize detects the container type of data and returns its pages.
//
// For PDFs the embedded images of up to MaxPages pages come first, followed
// by rendered pages when RenderAlways is set or nothing was embedded. An
// empty page list is a valid result; callers report it as a soft outcome.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, mime string, b *budget.Budget) (*Document, error) {
	kind := DetectKind(data, mime)
	doc := &Document{Kind: kind}

	var err error
	switch kind {
	case KindPDF:
		doc.Pages, err = n.normalizePDF(ctx, data, b)
	case KindDOCX:
		doc.Pages, err = n.normalizeDOCX(data)
	case KindImage:
		doc.Pages, err = n.normalizeImage(data)
	default:
		return nil, fmt.Errorf("%w (mime %q)", ErrUnsupportedDocumentType, mime)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Render rasterizes the leading pages of a PDF for a render-only pass.
// Pages already rendered by Normalize are reused.
func (n *Normalizer) Render(ctx context.Context, data []byte, doc *Document, b *budget.Budget) ([]Page, error) {
	if doc != nil {
		if pages := doc.Rendered(); len(pages) > 0 {
			return reindex(pages), nil
		}
	}
	if !n.CanRender() {
		return nil, ErrRenderUnavailable
	}
	if b.Over() {
		return nil, nil
	}
	rctx, cancel := b.Bound(ctx)
	defer cancel()
	raw, err := n.renderer.RenderPages(rctx, data, n.opts.RenderDPI, n.renderLimit())
	if err != nil {
		return nil, err
	}
	return n.normalizeAll(raw, SourceRender, 0), nil
}

func (n *Normalizer) normalizePDF(ctx context.Context, data []byte, b *budget.Budget) ([]Page, error) {
	var pages []Page
	var extractErr error

	if n.embedded != nil {
		raw, err := n.embedded.ExtractImages(ctx, data, n.opts.MaxPages)
		if err != nil {
			extractErr = err
			n.log.WithError(err).Warn("Embedded image extraction failed")
		}
		pages = n.normalizeAll(raw, SourceEmbedded, 0)
	}

	if !n.CanRender() || (!n.opts.RenderAlways && len(pages) > 0) {
		return n.failIfEmpty(pages, extractErr)
	}
	if b.Over() {
		return pages, nil
	}

	rctx, cancel := b.Bound(ctx)
	defer cancel()
	raw, err := n.renderer.RenderPages(rctx, data, n.opts.RenderDPI, n.renderLimit())
	if err != nil {
		n.log.WithError(err).Warn("Page rendering failed")
		if len(pages) == 0 && !errors.Is(err, ErrRenderUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
		}
		return n.failIfEmpty(pages, extractErr)
	}
	pages = append(pages, n.normalizeAll(raw, SourceRender, len(pages))...)
	return pages, nil
}

// failIfEmpty turns an extraction error into a hard failure only when it
// left us with nothing to score.
func (n *Normalizer) failIfEmpty(pages []Page, err error) ([]Page, error) {
	if len(pages) == 0 && err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return pages, nil
}

func (n *Normalizer) normalizeDOCX(data []byte) ([]Page, error) {
	if n.pkg == nil {
		return nil, fmt.Errorf("%w: no package extractor", ErrUnsupportedDocumentType)
	}
	raw, err := n.pkg.ExtractImages(data, n.opts.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return n.normalizeAll(raw, SourcePackage, 0), nil
}

func (n *Normalizer) normalizeImage(data []byte) ([]Page, error) {
	img, _, err := imaging.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	norm, err := imaging.ResizeNormalize(img, n.opts.MaxDimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return []Page{{Index: 0, PageNumber: 1, Source: SourceImage, Image: norm}}, nil
}

// normalizeAll resizes every raster, skipping those that cannot be
// normalized, and numbers them from offset. At most MaxPages are kept.
func (n *Normalizer) normalizeAll(raw []Extracted, src Source, offset int) []Page {
	pages := make([]Page, 0, len(raw))
	for _, e := range raw {
		if len(pages) >= n.opts.MaxPages {
			break
		}
		if e.Image == nil {
			continue
		}
		norm, err := imaging.ResizeNormalize(e.Image, n.opts.MaxDimension)
		if err != nil {
			n.log.WithError(err).WithField("source", src).Debug("Skipping raster")
			continue
		}
		pages = append(pages, Page{
			Index:      offset + len(pages),
			PageNumber: e.PageNumber,
			Source:     src,
			Image:      norm,
		})
	}
	return pages
}

func (n *Normalizer) renderLimit() int {
	return min(n.opts.MaxPages, n.opts.RenderTopPages)
}

func reindex(pages []Page) []Page {
	out := make([]Page, len(pages))
	for i, p := range pages {
		p.Index = i
		out[i] = p
	}
	return out
}
