package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PDFCPUExtractor extracts image XObjects with pdfcpu.
//
// pdfcpu walks page resources, not content streams, so inline images
// (BI/ID/EI) are not returned. Those PDFs are covered by the render pass.
type PDFCPUExtractor struct {
	conf *model.Configuration
}

// NewPDFCPUExtractor returns an extractor using relaxed validation.
func NewPDFCPUExtractor() *PDFCPUExtractor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPUExtractor{conf: conf}
}

// ExtractImages returns the decoded images of pages 1..maxPages in page
// order, and in object order within a page. Images that fail to decode are
// skipped.
func (x *PDFCPUExtractor) ExtractImages(ctx context.Context, pdf []byte, maxPages int) ([]Extracted, error) {
	count, err := api.PageCount(bytes.NewReader(pdf), x.conf)
	if err != nil {
		return nil, errors.Wrap(err, "reading pdf page count")
	}
	if count == 0 {
		return nil, nil
	}
	if maxPages > 0 && count > maxPages {
		count = maxPages
	}

	selected := []string{fmt.Sprintf("1-%d", count)}
	pages, err := api.ExtractImagesRaw(bytes.NewReader(pdf), selected, x.conf)
	if err != nil {
		return nil, errors.Wrap(err, "extracting pdf images")
	}

	var out []Extracted
	for _, byObj := range pages {
		if ctx.Err() != nil {
			break
		}
		objNrs := make([]int, 0, len(byObj))
		for nr := range byObj {
			objNrs = append(objNrs, nr)
		}
		sort.Ints(objNrs)

		for _, nr := range objNrs {
			pi := byObj[nr]
			img, err := decodeModelImage(pi)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{
					"page":   pi.PageNr,
					"object": nr,
					"type":   pi.FileType,
				}).Debug("Skipping undecodable pdf image")
				continue
			}
			out = append(out, Extracted{PageNumber: pi.PageNr, Image: img})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func decodeModelImage(pi model.Image) (image.Image, error) {
	if pi.Reader == nil {
		return nil, errors.New("image has no data")
	}
	data, err := io.ReadAll(pi)
	if err != nil {
		return nil, errors.Wrap(err, "reading image stream")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s image", pi.FileType)
	}
	return img, nil
}
