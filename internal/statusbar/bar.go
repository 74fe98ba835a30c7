package statusbar

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/vaultos/vaultwm/internal/logger"
)

// Default colors: green on near-black
var (
	DefaultForeground = color.RGBA{0x00, 0xFF, 0x41, 0xFF}
	DefaultBackground = color.RGBA{0x0A, 0x0F, 0x0A, 0xFF}
)

const ellipsis = "..."

// Bar renders status text into an image of fixed size
type Bar struct {
	width   int
	height  int
	face    font.Face
	fg      color.RGBA
	bg      color.RGBA
	padding int
}

// NewBar creates a bar. A non-empty fontPath names a TrueType/OpenType
// font; if it cannot be loaded the built-in bitmap font is used.
func NewBar(width, height int, fontPath string, fg, bg color.RGBA) *Bar {
	b := &Bar{
		width:   width,
		height:  height,
		face:    basicfont.Face7x13,
		fg:      fg,
		bg:      bg,
		padding: 10,
	}
	if fontPath != "" {
		face, err := LoadFace(fontPath, float64(height)*0.5)
		if err != nil {
			logger.WithComponent("statusbar").Warn().Err(err).Str("font", fontPath).
				Msg("Font load failed, using built-in font")
		} else {
			b.face = face
		}
	}
	return b
}

// LoadFace parses a font file at the given point size
func LoadFace(path string, size float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font: %w", err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}
	return face, nil
}

// Size returns the bar dimensions
func (b *Bar) Size() (int, int) {
	return b.width, b.height
}

// Resize changes the bar dimensions, e.g. after an output change
func (b *Bar) Resize(width, height int) {
	b.width, b.height = width, height
}

// SetColors changes foreground and background
func (b *Bar) SetColors(fg, bg color.RGBA) {
	b.fg, b.bg = fg, bg
}

// Fit shortens text with an ellipsis until it fits inside the padding
func (b *Bar) Fit(text string) string {
	avail := fixed.I(b.width - 2*b.padding)
	if font.MeasureString(b.face, text) <= avail {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		s := string(runes) + ellipsis
		if font.MeasureString(b.face, s) <= avail {
			return s
		}
	}
	return ""
}

// Render draws text left-aligned and vertically centered
func (b *Bar) Render(text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{b.bg}, image.Point{}, draw.Src)

	metrics := b.face.Metrics()
	textHeight := metrics.Ascent + metrics.Descent
	baseline := (fixed.I(b.height)-textHeight)/2 + metrics.Ascent

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(b.fg),
		Face: b.face,
		Dot:  fixed.Point26_6{X: fixed.I(b.padding), Y: baseline},
	}
	d.DrawString(b.Fit(text))
	return img
}
