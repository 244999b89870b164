// Package document turns an uploaded business document into the ordered list
// of normalized raster pages the detector scores.
//
// Container parsing is delegated to narrow collaborator interfaces:
//
//   - EmbeddedExtractor pulls raster images out of a PDF (pdfcpu)
//   - PageRenderer rasterizes PDF pages at a DPI (MuPDF via go-fitz, cgo only)
//   - PackageExtractor reads the media folder of a DOCX package
//
// The Normalizer decides which collaborators run for a given buffer and
// passes every raster through imaging.ResizeNormalize before returning it.
package document
