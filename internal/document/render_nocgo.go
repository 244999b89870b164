//go:build !cgo

package document

import "context"

type unavailableRenderer struct{}

// NewPageRenderer returns a renderer that always fails with
// ErrRenderUnavailable; MuPDF needs cgo.
func NewPageRenderer() PageRenderer {
	return unavailableRenderer{}
}

func (unavailableRenderer) RenderPages(context.Context, []byte, float64, int) ([]Extracted, error) {
	return nil, ErrRenderUnavailable
}
