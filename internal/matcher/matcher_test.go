package matcher

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/ironsheep/stamp-detector/internal/budget"
	"github.com/ironsheep/stamp-detector/internal/stamps"
)

func createRingImage(size int, ink color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cx, cy := float64(size)/2, float64(size)/2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			if d >= float64(size)*0.35 && d <= float64(size)*0.45 {
				img.Set(x, y, ink)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// createSquareImage draws a hollow square outline.
func createSquareImage(size int, ink color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
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

func buildStore(t *testing.T, imgs map[string]image.Image) *stamps.Store {
	t.Helper()
	var refs []*stamps.Reference
	for name, img := range imgs {
		ref, err := stamps.NewReference(name, img, stamps.DefaultOptions())
		if err != nil {
			t.Fatalf("NewReference(%s) failed: %v", name, err)
		}
		refs = append(refs, ref)
	}
	return stamps.NewStore("test", refs)
}

func TestWeights_Sum(t *testing.T) {
	ones := Components{Edge: 1, Color: 1, Hash: 1, SSIM: 1}
	if got := QuickWeights.Fuse(ones); math.Abs(got-1) > 1e-12 {
		t.Errorf("quick weights sum: got %v, want 1", got)
	}
	if got := RefineWeights.Fuse(ones); math.Abs(got-1) > 1e-12 {
		t.Errorf("refine weights sum: got %v, want 1", got)
	}
}

func TestMatch_IdentifiesStamp(t *testing.T) {
	red := createRingImage(160, color.RGBA{200, 20, 20, 255})
	blue := createSquareImage(160, color.RGBA{20, 20, 200, 255})
	store := buildStore(t, map[string]image.Image{"red.png": red, "blue.png": blue})

	m := New(Options{TopK: 6, Workers: 4})
	res := m.Match(context.Background(), []image.Image{blue, red}, store, budget.New(context.Background(), 10*time.Second))

	if res.Evaluated != 4 {
		t.Errorf("evaluated: got %d, want 4", res.Evaluated)
	}
	if len(res.Ranked) != 4 {
		t.Fatalf("ranked: got %d, want 4", len(res.Ranked))
	}
	top := res.Top()
	if top.Fused < 0.95 {
		t.Errorf("identical page should score near 1, got %v", top.Fused)
	}
	if top.Components.SSIM < 0.99 {
		t.Errorf("identical page SSIM: got %v", top.Components.SSIM)
	}
	identical := (top.PageIndex == 0 && top.StampName == "blue.png") ||
		(top.PageIndex == 1 && top.StampName == "red.png")
	if !identical {
		t.Errorf("top: got page %d stamp %q, want an identical pair", top.PageIndex, top.StampName)
	}
	if second := res.RunnerUp(); second.Fused < 0.95 {
		t.Errorf("runner-up should be the other identical pair, got %+v", second)
	}
	if res.Truncated {
		t.Error("result should not be truncated")
	}
	for i := 1; i < len(res.Ranked); i++ {
		if res.Ranked[i].Fused > res.Ranked[i-1].Fused {
			t.Fatalf("ranking not descending at %d", i)
		}
	}
}

func TestMatch_TopK(t *testing.T) {
	store := buildStore(t, map[string]image.Image{
		"a.png": createRingImage(96, color.RGBA{200, 0, 0, 255}),
		"b.png": createRingImage(96, color.RGBA{0, 200, 0, 255}),
		"c.png": createSquareImage(96, color.RGBA{0, 0, 200, 255}),
	})
	pages := []image.Image{
		createRingImage(96, color.RGBA{200, 0, 0, 255}),
		createSquareImage(96, color.RGBA{0, 0, 0, 255}),
		createRingImage(120, color.RGBA{90, 90, 0, 255}),
	}
	res := New(Options{TopK: 2, Workers: 2}).Match(context.Background(), pages, store, nil)
	if res.Evaluated != 9 {
		t.Errorf("evaluated: got %d, want 9", res.Evaluated)
	}
	// two survivors, plus one rival stamp when both belong to the same stamp
	if n := len(res.Ranked); n < 2 || n > 3 {
		t.Errorf("ranked: got %d, want 2 or 3", n)
	}
	if res.RunnerUp() == nil {
		t.Error("short list should always carry a rival stamp")
	}
}

func TestMatch_Deterministic(t *testing.T) {
	store := buildStore(t, map[string]image.Image{
		"a.png": createRingImage(96, color.RGBA{200, 0, 0, 255}),
		"b.png": createSquareImage(96, color.RGBA{0, 200, 0, 255}),
	})
	pages := []image.Image{
		createSquareImage(100, color.RGBA{10, 10, 10, 255}),
		createRingImage(100, color.RGBA{30, 30, 200, 255}),
	}
	m := New(Options{TopK: 6, Workers: 8})
	first := m.Match(context.Background(), pages, store, nil)
	for i := 0; i < 5; i++ {
		again := m.Match(context.Background(), pages, store, nil)
		for j := range first.Ranked {
			a, b := first.Ranked[j], again.Ranked[j]
			if a.PageIndex != b.PageIndex || a.StampName != b.StampName || a.Fused != b.Fused {
				t.Fatalf("run %d rank %d differs: %+v vs %+v", i, j, a, b)
			}
		}
	}
}

func TestMatch_ZeroBudget(t *testing.T) {
	store := buildStore(t, map[string]image.Image{"a.png": createRingImage(64, color.RGBA{200, 0, 0, 255})})
	b := budget.New(context.Background(), 0)
	res := New(Options{}).Match(context.Background(), []image.Image{createRingImage(64, color.RGBA{200, 0, 0, 255})}, store, b)
	if len(res.Ranked) != 0 || res.Evaluated != 0 {
		t.Errorf("expected no work, got %d ranked %d evaluated", len(res.Ranked), res.Evaluated)
	}
	if !res.Truncated {
		t.Error("zero budget result should be truncated")
	}
	if res.Top() != nil || res.Margin() != 0 {
		t.Error("empty result should have no top and zero margin")
	}
}

func TestMatch_EmptyInputs(t *testing.T) {
	m := New(Options{})
	if res := m.Match(context.Background(), nil, stamps.Empty("x"), nil); len(res.Ranked) != 0 {
		t.Error("no pages should yield no candidates")
	}
	store := buildStore(t, map[string]image.Image{"a.png": createRingImage(64, color.RGBA{200, 0, 0, 255})})
	if res := m.Match(context.Background(), nil, store, nil); len(res.Ranked) != 0 {
		t.Error("no pages should yield no candidates")
	}
}

func TestResult_Margin(t *testing.T) {
	tests := []struct {
		name   string
		ranked []Candidate
		want   float64
		rival  string
	}{
		{"single candidate", []Candidate{{StampName: "a", Fused: 0.9}}, 0.9, ""},
		{"two stamps", []Candidate{{StampName: "a", Fused: 0.9}, {StampName: "b", Fused: 0.85}}, 0.05, "b"},
		{
			"same stamp on every page",
			[]Candidate{{StampName: "a", PageIndex: 0, Fused: 1}, {StampName: "a", PageIndex: 1, Fused: 1}},
			1, "",
		},
		{
			"rival behind repeats",
			[]Candidate{
				{StampName: "a", PageIndex: 0, Fused: 0.95},
				{StampName: "a", PageIndex: 1, Fused: 0.94},
				{StampName: "b", PageIndex: 0, Fused: 0.60},
			},
			0.35, "b",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Result{Ranked: tt.ranked}
			if got := r.Margin(); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("margin: got %v, want %v", got, tt.want)
			}
			second := r.RunnerUp()
			switch {
			case tt.rival == "" && second != nil:
				t.Errorf("runner-up: got %+v, want none", second)
			case tt.rival != "" && (second == nil || second.StampName != tt.rival):
				t.Errorf("runner-up: got %+v, want %s", second, tt.rival)
			}
		})
	}
}

func TestShortList_KeepsRival(t *testing.T) {
	quick := []Candidate{
		{StampName: "a", PageIndex: 0, Quick: 0.9},
		{StampName: "a", PageIndex: 1, Quick: 0.9},
		{StampName: "a", PageIndex: 2, Quick: 0.8},
		{StampName: "b", PageIndex: 0, Quick: 0.4},
		{StampName: "c", PageIndex: 0, Quick: 0.3},
	}

	got := shortList(quick, 2)
	if len(got) != 3 || got[2].StampName != "b" {
		t.Errorf("short list: got %+v, want two of a then b", got)
	}
	if mixed := shortList(quick[2:], 2); len(mixed) != 2 {
		t.Errorf("mixed short list should not grow: got %+v", mixed)
	}
	if all := shortList(quick, 10); len(all) != len(quick) {
		t.Errorf("short list under k: got %d, want %d", len(all), len(quick))
	}
}

func TestQuickScore_BestVariant(t *testing.T) {
	img := createRingImage(128, color.RGBA{200, 20, 20, 255})
	ref, err := stamps.NewReference("r.png", img, stamps.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	c := QuickScore(ref.Primary(), ref)
	if c.Components.Variant != stamps.VariantBase {
		t.Errorf("identical page should pick the base variant, got %q", c.Components.Variant)
	}
	if math.Abs(c.Quick-1) > 1e-9 {
		t.Errorf("quick score: got %v, want 1", c.Quick)
	}
}
