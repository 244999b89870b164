package document

import (
	"archive/zip"
	"bytes"
	"image"
	"io"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var docxMedia = regexp.MustCompile(`(?i)^word/media/.+\.(png|jpe?g|webp|gif|bmp)$`)

// DOCXExtractor reads raster entries from word/media.
type DOCXExtractor struct{}

// ExtractImages decodes up to maxEntries media images sorted by entry name.
func (DOCXExtractor) ExtractImages(docx []byte, maxEntries int) ([]Extracted, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return nil, errors.Wrap(err, "opening docx package")
	}

	var files []*zip.File
	for _, f := range zr.File {
		if docxMedia.MatchString(f.Name) {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	if maxEntries > 0 && len(files) > maxEntries {
		files = files[:maxEntries]
	}

	out := make([]Extracted, 0, len(files))
	for _, f := range files {
		img, err := decodeZipEntry(f)
		if err != nil {
			logrus.WithError(err).WithField("entry", f.Name).Debug("Skipping docx media entry")
			continue
		}
		out = append(out, Extracted{Image: img})
	}
	return out, nil
}

func decodeZipEntry(f *zip.File) (image.Image, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening entry")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "reading entry")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decoding entry")
	}
	return img, nil
}
