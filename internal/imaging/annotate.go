package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
)

// AnnotatedImage is a page with a detection box drawn on it.
type AnnotatedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// defaultBoxColor is opaque magenta, rare on scanned paperwork.
var defaultBoxColor = color.RGBA{255, 0, 255, 255}

// AnnotateBox draws box on a copy of img with a score label above its
// top-left corner and returns it as base64 PNG.
//
// Parameters:
//   - img: Page the box was found on.
//   - box: Rectangle in img coordinates. It is clipped to the image.
//   - score: Printed with two decimals; negative values print no label.
//   - colorHex: "#RRGGBB" or "#RRGGBBAA". Empty or invalid selects magenta.
//   - thickness: Outline width in pixels, at least 1.
func AnnotateBox(img image.Image, box image.Rectangle, score float64, colorHex string, thickness int) (*AnnotatedImage, error) {
	bounds := img.Bounds()
	boxColor, err := parseHexColor(colorHex)
	if err != nil {
		boxColor = defaultBoxColor
	}
	thickness = max(1, thickness)

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	r := box.Intersect(bounds)
	if !r.Empty() {
		ink := image.NewUniform(boxColor)
		for i := 0; i < thickness; i++ {
			edges := []image.Rectangle{
				image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1),
				image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i),
				image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y),
				image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y),
			}
			for _, e := range edges {
				draw.Draw(result, e.Intersect(r), ink, image.Point{}, draw.Over)
			}
		}
		if score >= 0 {
			label := strconv.FormatFloat(score, 'f', 2, 64)
			// above the box when there is room, inside it otherwise
			y := r.Min.Y - 9
			if y < bounds.Min.Y {
				y = r.Min.Y + thickness + 1
			}
			drawLabel(result, r.Min.X+1, y, label, color.RGBA{255, 255, 255, 255}, color.RGBA{boxColor.R, boxColor.G, boxColor.B, 220})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, result); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &AnnotatedImage{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// 3x5 pixel glyphs for score labels.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
	'.': {"000", "000", "000", "000", "010"},
}

// drawLabel draws text on a filled background at (x, y), clipped to img.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	const charWidth, labelHeight = 4, 7
	labelWidth := len(text) * charWidth
	bounds := img.Bounds()

	draw.Draw(img, image.Rect(x-1, y-1, x+labelWidth, y+labelHeight).Intersect(bounds), image.NewUniform(bg), image.Point{}, draw.Over)

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, pixel := range line {
				p := image.Pt(cx+col, y+row)
				if pixel == '1' && p.In(bounds) {
					img.Set(p.X, p.Y, fg)
				}
			}
		}
		cx += charWidth
	}
}
