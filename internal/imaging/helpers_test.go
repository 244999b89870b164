package imaging

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// createSolidImage creates a solid color test image
func createSolidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createPatternImage creates a quadrant pattern: red top-left, green top-right,
// blue bottom-left, white bottom-right
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			if x < width/2 && y < height/2 {
				c = color.RGBA{255, 0, 0, 255}
			} else if x >= width/2 && y < height/2 {
				c = color.RGBA{0, 255, 0, 255}
			} else if x < width/2 && y >= height/2 {
				c = color.RGBA{0, 0, 255, 255}
			} else {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// createRingImage draws a thick colored ring with a cross bar on white,
// a rough stand-in for a rubber stamp impression.
func createRingImage(size int, ink color.RGBA) *image.RGBA {
	img := createSolidImage(size, size, color.White)
	cx, cy := float64(size)/2, float64(size)/2
	outer := float64(size) * 0.45
	inner := float64(size) * 0.35
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			d := math.Hypot(float64(x)-cx, float64(y)-cy)
			inBar := math.Abs(float64(y)-cy) < float64(size)*0.05 && d < inner
			if (d >= inner && d <= outer) || inBar {
				img.Set(x, y, ink)
			}
		}
	}
	return img
}

// createGradientImage creates a horizontal luminance ramp, bright on the
// left when descending is true.
func createGradientImage(width, height int, descending bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			if descending {
				v = 255 - v
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// writePNG writes img into dir and returns the path.
func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func absFloat(f float64) float64 {
	return math.Abs(f)
}

func assertUnit(t *testing.T, name string, v float64) {
	t.Helper()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Fatalf("%s: got non-finite %v", name, v)
	}
	if v < 0 || v > 1 {
		t.Errorf("%s: got %v, want within [0,1]", name, v)
	}
}
