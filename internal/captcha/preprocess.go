package captcha

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// captcha endpoints serve any of these
	_ "image/gif"
	_ "image/jpeg"
)

// ChromaKey selects the pixels that belong to the captcha text. Everything
// outside the band is flattened to the background.
type ChromaKey struct {
	RedAbove   uint8
	GreenAbove uint8
	GreenBelow uint8
	BlueBelow  uint8
}

func (k ChromaKey) keeps(c color.NRGBA) bool {
	return c.R > k.RedAbove &&
		c.G > k.GreenAbove && c.G < k.GreenBelow &&
		c.B < k.BlueBelow
}

// Filter is the image cleanup applied before classification.
type Filter struct {
	Key ChromaKey
	// Threshold splits grayscale values into text (below) and background.
	Threshold uint8
	// Border is the margin in pixels that is always forced to background.
	Border int
}

// DefaultFilter keeps the orange glyphs the portal draws and drops its noise
// lines and frame.
var DefaultFilter = Filter{
	Key: ChromaKey{
		RedAbove:   200,
		GreenAbove: 100,
		GreenBelow: 220,
		BlueBelow:  80,
	},
	Threshold: 200,
	Border:    10,
}

// Preprocess decodes a captcha image, applies f and returns the cleaned
// black-on-white image encoded as PNG.
func Preprocess(data []byte, f Filter) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode captcha image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	out := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			value := uint8(255)

			inBorder := x < f.Border || x >= width-f.Border ||
				y < f.Border || y >= height-f.Border
			if !inBorder {
				c := color.NRGBAModel.Convert(src.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				if f.Key.keeps(c) {
					gray := color.GrayModel.Convert(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}).(color.Gray)
					if gray.Y < f.Threshold {
						value = 0
					}
				}
			}

			out.SetGray(x, y, color.Gray{Y: value})
		}
	}

	var buf bytes.Buffer
	err = png.Encode(&buf, out)
	if err != nil {
		return nil, fmt.Errorf("encode cleaned captcha: %w", err)
	}
	return buf.Bytes(), nil
}
