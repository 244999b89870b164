//go:build cgo

package document

import (
	"context"

	"github.com/gen2brain/go-fitz"
	"github.com/pkg/errors"
)

// FitzRenderer rasterizes PDF pages with MuPDF.
type FitzRenderer struct{}

// NewPageRenderer returns the MuPDF-backed renderer.
func NewPageRenderer() PageRenderer {
	return FitzRenderer{}
}

// RenderPages renders pages 1..maxPages at dpi. Rendering stops early when
// ctx is done, returning the pages finished so far.
func (FitzRenderer) RenderPages(ctx context.Context, pdf []byte, dpi float64, maxPages int) ([]Extracted, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, errors.Wrap(err, "opening pdf for rendering")
	}
	defer doc.Close()

	count := doc.NumPage()
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}

	out := make([]Extracted, 0, count)
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return out, errors.Wrapf(err, "rendering page %d", i+1)
		}
		out = append(out, Extracted{PageNumber: i + 1, Image: img})
	}
	return out, nil
}
