package document

import (
	"archive/zip"
	"bytes"
	"image"
	"strings"
)

// Kind is the detected container type of a document buffer.
type Kind int

const (
	KindUnknown Kind = iota
	KindPDF
	KindDOCX
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindImage:
		return "image"
	default:
		return "unknown"
	}
}

var (
	pdfMagic = []byte("%PDF")
	zipMagic = []byte("PK")
)

const (
	contentTypesEntry = "[Content_Types].xml"
	genericMime       = "application/octet-stream"
)

// DetectKind classifies data by magic bytes first and falls back to the
// declared media type when the bytes are inconclusive. Rasters with no
// declared type, or the generic octet-stream type, are sniffed.
func DetectKind(data []byte, mime string) Kind {
	mime = strings.ToLower(strings.TrimSpace(mime))

	switch {
	case IsPDF(data):
		return KindPDF
	case IsDOCX(data):
		return KindDOCX
	case strings.Contains(mime, "pdf"):
		return KindPDF
	case strings.Contains(mime, "word"):
		return KindDOCX
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case (mime == "" || mime == genericMime) && isRaster(data):
		return KindImage
	}
	return KindUnknown
}

// IsPDF reports whether data starts with the PDF header.
func IsPDF(data []byte) bool {
	return len(data) > len(pdfMagic) && bytes.HasPrefix(data, pdfMagic)
}

// IsDOCX reports whether data is a ZIP container holding an OOXML
// content-types part.
func IsDOCX(data []byte) bool {
	if !bytes.HasPrefix(data, zipMagic) {
		return false
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == contentTypesEntry {
			return true
		}
	}
	return false
}

// isRaster reports whether any registered image decoder recognizes data.
func isRaster(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
