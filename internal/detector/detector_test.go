package detector

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ironsheep/stamp-detector/internal/config"
	"github.com/ironsheep/stamp-detector/internal/document"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/sirupsen/logrus"
)

func createRingImage(size int, ink color.RGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	cx, cy := float64(size)/2, float64(size)/2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			bar := math.Abs(float64(y)-cy) < float64(size)*0.05 && d < float64(size)*0.35
			if (d >= float64(size)*0.35 && d <= float64(size)*0.45) || bar {
				img.Set(x, y, ink)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func createSquareImage(size int, ink color.RGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	m := size / 5
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			inOuter := x >= m && x < size-m && y >= m && y < size-m
			inInner := x >= 2*m && x < size-2*m && y >= 2*m && y < size-2*m
			if inOuter && !inInner {
				img.Set(x, y, ink)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// stampDir writes the two reference stamps used across scenarios and
// returns the directory plus the raw bytes of the red stamp.
func stampDir(t *testing.T) (string, []byte) {
	t.Helper()
	dir := t.TempDir()
	red := encodePNG(t, createRingImage(400, color.RGBA{200, 20, 20, 255}))
	blue := encodePNG(t, createSquareImage(400, color.RGBA{20, 20, 200, 255}))
	if err := os.WriteFile(filepath.Join(dir, "approved.png"), red, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "received.png"), blue, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, red
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.StampDir = dir
	cfg.TimeBudget = 60 * time.Second
	cfg.Workers = 4
	return cfg
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func newDetector(t *testing.T, cfg *config.Config, opts ...Option) *Detector {
	t.Helper()
	d := New(cfg, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err := d.InitStamps(context.Background(), cfg.StampDir); err != nil {
		t.Fatalf("InitStamps failed: %v", err)
	}
	return d
}

type fakeExtractor struct{ images []document.Extracted }

func (f fakeExtractor) ExtractImages(context.Context, []byte, int) ([]document.Extracted, error) {
	return f.images, nil
}

type fakeRenderer struct {
	pages []document.Extracted
	calls *int
}

func (f fakeRenderer) RenderPages(context.Context, []byte, float64, int) ([]document.Extracted, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.pages, nil
}

var fakePDF = []byte("%PDF-1.4\n%fake\n")

func TestDetect_IdenticalImage(t *testing.T) {
	dir, red := stampDir(t)
	cfg := testConfig(dir)
	d := newDetector(t, cfg)

	res := d.DetectOnBuffer(context.Background(), red, "image/png")
	if !res.Success || !res.Match {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.Score < cfg.ThresholdHi {
		t.Errorf("score %v below THRESHOLD_HI", res.Score)
	}
	if res.Stamp == nil || *res.Stamp != "approved.png" {
		t.Errorf("stamp: got %v, want approved.png", res.Stamp)
	}
	if res.Page == nil || *res.Page != 1 {
		t.Errorf("page: got %v, want 1", res.Page)
	}
	if res.Reason != string(ReasonStrong) {
		t.Errorf("reason: got %q", res.Reason)
	}
	if !strings.HasPrefix(res.Note, "strong-coarse | hybrid(images+render) | TH_HI=0.88, TH_LO=0.80") {
		t.Errorf("note: got %q", res.Note)
	}
	if res.Margin <= 0 || res.Margin > res.Score {
		t.Errorf("margin out of range: %v", res.Margin)
	}
	if res.RunID == "" {
		t.Error("run id should be set")
	}
	if res.BBox != nil {
		b := res.BBox
		if b.X < 0 || b.Y < 0 || b.X+b.Width > 400 || b.Y+b.Height > 400 {
			t.Errorf("bbox %+v leaves the page", b)
		}
		if res.NCC == nil || res.SSIM == nil {
			t.Error("ncc and ssim should accompany a bbox")
		}
	}
}

func TestDetect_ZeroBudget(t *testing.T) {
	dir, red := stampDir(t)
	cfg := testConfig(dir)
	cfg.TimeBudget = 0
	d := newDetector(t, cfg)

	start := time.Now()
	res := d.DetectOnBuffer(context.Background(), red, "image/png")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("zero budget detection took %v", elapsed)
	}
	if !res.Success || res.Match {
		t.Fatalf("expected soft no-match, got %+v", res)
	}
	if res.Reason != string(ReasonBudget) || !strings.Contains(res.Note, "budget") {
		t.Errorf("budget exhaustion should be reported, got reason %q note %q", res.Reason, res.Note)
	}
}

func TestDetect_NoStamps(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))
	d := New(cfg, WithLogger(quietLogger()))
	if err := d.InitStamps(context.Background(), cfg.StampDir); err != nil {
		t.Fatalf("InitStamps should not fail for a missing directory: %v", err)
	}

	res := d.DetectOnBuffer(context.Background(), encodePNG(t, createRingImage(64, color.RGBA{0, 0, 0, 255})), "image/png")
	if !res.Success || res.Match {
		t.Fatalf("expected soft no-match, got %+v", res)
	}
	if res.Note != NoteNoStamps {
		t.Errorf("note: got %q, want %q", res.Note, NoteNoStamps)
	}
}

func TestDetect_LazyInit(t *testing.T) {
	dir, red := stampDir(t)
	d := New(testConfig(dir), WithLogger(quietLogger()))
	if d.Store() != nil {
		t.Fatal("store should be empty before first use")
	}
	res := d.DetectOnBuffer(context.Background(), red, "image/png")
	if !res.Match {
		t.Errorf("lazy init should load stamps, got %+v", res)
	}
	if d.Store().Len() != 2 {
		t.Errorf("store: got %d stamps, want 2", d.Store().Len())
	}
}

func TestDetect_PDFWithoutImagesFallbackDisabled(t *testing.T) {
	dir, _ := stampDir(t)
	cfg := testConfig(dir)
	cfg.RenderFallback = false
	calls := 0
	n := document.NewNormalizer(NormalizerOptions(cfg), fakeExtractor{}, fakeRenderer{calls: &calls}, document.DOCXExtractor{})
	d := newDetector(t, cfg, WithNormalizer(n))

	res := d.DetectOnBuffer(context.Background(), fakePDF, "application/pdf")
	if !res.Success || res.Match {
		t.Fatalf("expected soft no-match, got %+v", res)
	}
	if res.Note != NoteNoImages {
		t.Errorf("note: got %q, want %q", res.Note, NoteNoImages)
	}
	if calls != 0 {
		t.Errorf("renderer should not run, got %d calls", calls)
	}
}

func TestDetect_PDFRenderPass(t *testing.T) {
	dir, _ := stampDir(t)
	cfg := testConfig(dir)
	cfg.RenderAlways = false
	calls := 0
	blank := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	n := document.NewNormalizer(
		NormalizerOptions(cfg),
		fakeExtractor{images: []document.Extracted{{PageNumber: 1, Image: blank}}},
		fakeRenderer{
			pages: []document.Extracted{{PageNumber: 1, Image: createRingImage(400, color.RGBA{200, 20, 20, 255})}},
			calls: &calls,
		},
		nil,
	)
	d := newDetector(t, cfg, WithNormalizer(n))

	res := d.DetectOnBuffer(context.Background(), fakePDF, "")
	if calls != 1 {
		t.Errorf("render calls: got %d, want 1", calls)
	}
	if !res.Success || !res.Match {
		t.Fatalf("render pass should find the stamp, got %+v", res)
	}
	if *res.Stamp != "approved.png" {
		t.Errorf("stamp: got %q", *res.Stamp)
	}
}

const docxMime = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// buildDOCX packages media as word/media entries of a minimal document.
func buildDOCX(t *testing.T, media map[string][]byte) []byte {
	t.Helper()
	files := map[string][]byte{
		"[Content_Types].xml": []byte("<Types/>"),
		"word/document.xml":   []byte("<w:document/>"),
	}
	for name, data := range media {
		files["word/media/"+name] = data
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect_DOCXHalfScale(t *testing.T) {
	dir, _ := stampDir(t)
	d := newDetector(t, testConfig(dir))

	half := imaging.Resize(createRingImage(400, color.RGBA{200, 20, 20, 255}), 200, 200, imaging.Lanczos)
	docx := buildDOCX(t, map[string][]byte{"image1.png": encodePNG(t, half)})

	res := d.DetectOnBuffer(context.Background(), docx, docxMime)
	if !res.Success || !res.Match {
		t.Fatalf("expected a match for the half-scale copy, got %+v", res)
	}
	if *res.Stamp != "approved.png" {
		t.Errorf("stamp: got %q", *res.Stamp)
	}
}

func TestDetect_StampRepeatedOnPages(t *testing.T) {
	dir, red := stampDir(t)
	cfg := testConfig(dir)
	d := newDetector(t, cfg)

	docx := buildDOCX(t, map[string][]byte{"image1.png": red, "image2.png": red})
	res := d.DetectOnBuffer(context.Background(), docx, docxMime)
	if !res.Success || !res.Match {
		t.Fatalf("a repeated stamp is not ambiguous, got %+v", res)
	}
	if res.Reason != string(ReasonStrong) {
		t.Errorf("reason: got %q, want %q", res.Reason, ReasonStrong)
	}
	if res.Margin < cfg.MarginMin {
		t.Errorf("margin %v should be measured against the other stamp", res.Margin)
	}
}

func TestDetect_EmbeddedPDF(t *testing.T) {
	dir, red := stampDir(t)
	cfg := testConfig(dir)
	d := newDetector(t, cfg)

	var pdf bytes.Buffer
	if err := api.ImportImages(nil, &pdf, []io.Reader{bytes.NewReader(red)}, nil, nil); err != nil {
		t.Fatalf("failed to build pdf: %v", err)
	}

	// cgo builds also render the page, which puts the same stamp on the
	// candidate list twice
	res := d.DetectOnBuffer(context.Background(), pdf.Bytes(), "application/pdf")
	if !res.Success || !res.Match {
		t.Fatalf("expected a match, got %+v", res)
	}
	if res.Page == nil || *res.Page != 1 {
		t.Errorf("page: got %v, want 1", res.Page)
	}
	if *res.Stamp != "approved.png" {
		t.Errorf("stamp: got %q", *res.Stamp)
	}
	if res.Margin < cfg.MarginMin {
		t.Errorf("margin: got %v", res.Margin)
	}
}

func TestDetect_NoteShowsThresholdsInForce(t *testing.T) {
	dir, red := stampDir(t)
	cfg := testConfig(dir)
	cfg.ThresholdHi = 0.875
	d := newDetector(t, cfg)

	res := d.DetectOnBuffer(context.Background(), red, "image/png")
	if !strings.Contains(res.Note, "TH_HI=0.875, TH_LO=0.80") {
		t.Errorf("note: got %q", res.Note)
	}
}

func TestDetect_Unsupported(t *testing.T) {
	dir, _ := stampDir(t)
	d := newDetector(t, testConfig(dir))
	res := d.DetectOnBuffer(context.Background(), []byte("just text"), "text/plain")
	if res.Success {
		t.Fatal("unsupported input should be a hard failure")
	}
	if !strings.Contains(res.Error, "unsupported document type") {
		t.Errorf("error: got %q", res.Error)
	}
}

func TestDetect_ResultShape(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing"))
	d := newDetector(t, cfg)
	res := d.DetectOnBuffer(context.Background(), []byte("x"), "image/png")

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"success", "match", "score", "page", "stamp", "margin", "bbox", "ncc", "ssim", "note", "timeMs"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("field %q missing from %s", k, raw)
		}
	}
	if _, ok := fields["error"]; ok {
		t.Error("error should be omitted on success")
	}
}

func TestInitStamps_Idempotent(t *testing.T) {
	dir, _ := stampDir(t)
	d := newDetector(t, testConfig(dir))
	first := d.Store()
	if err := d.InitStamps(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if d.Store() != first {
		t.Error("InitStamps with the same directory should keep the store")
	}

	reloaded, err := d.ReloadStamps(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if reloaded == first || d.Store() != reloaded {
		t.Error("ReloadStamps should swap in a new store")
	}
}

func TestLocate(t *testing.T) {
	dir, _ := stampDir(t)
	cfg := testConfig(dir)
	// the default cap is spent on the smallest scale for an 800x600 page
	cfg.LocMaxPatches = 0
	d := newDetector(t, cfg)

	page := image.NewNRGBA(image.Rect(0, 0, 800, 600))
	for i := range page.Pix {
		page.Pix[i] = 0xff
	}
	stamp := createRingImage(160, color.RGBA{200, 20, 20, 255})
	truth := image.Rect(336, 196, 496, 356)
	for y := 0; y < 160; y++ {
		for x := 0; x < 160; x++ {
			page.Set(truth.Min.X+x, truth.Min.Y+y, stamp.At(x, y))
		}
	}

	res, err := d.Locate(context.Background(), page, "approved.png")
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if !res.Found || res.BBox == nil {
		t.Fatalf("expected a bbox, got %+v", res)
	}
	c := image.Pt(res.BBox.X+res.BBox.Width/2, res.BBox.Y+res.BBox.Height/2)
	if !c.In(truth) {
		t.Errorf("bbox %+v center outside %v", res.BBox, truth)
	}

	if _, err := d.Locate(context.Background(), page, "nope.png"); err == nil {
		t.Error("unknown stamp should fail")
	}
}
