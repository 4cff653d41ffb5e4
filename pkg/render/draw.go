package render

import (
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

type Align uint8

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
)

func fillRect(dst *image.RGBA, rect image.Rectangle, c color.Color) {
	draw.Draw(dst, rect, image.NewUniform(c), image.Point{}, draw.Over)
}

func drawImage(dst *image.RGBA, at image.Point, src image.Image) {
	rect := image.Rectangle{Min: at, Max: at.Add(src.Bounds().Size())}
	draw.Draw(dst, rect, src, src.Bounds().Min, draw.Over)
}

// drawText draws s with its baseline at y. x is the left edge, center or
// right edge depending on align.
func drawText(dst *image.RGBA, face font.Face, x, y int, s string, c color.Color, align Align) int {
	width := font.MeasureString(face, s).Ceil()
	switch align {
	case AlignCenter:
		x -= width / 2
	case AlignRight:
		x -= width
	}

	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(s)
	return width
}

// drawLines draws wrapped lines starting with the first baseline at y and
// returns the baseline after the last line.
func drawLines(dst *image.RGBA, face font.Face, x, y int, lineHeight int, lines []string, c color.Color) int {
	for _, line := range lines {
		drawText(dst, face, x, y, line, c, AlignLeft)
		y += lineHeight
	}
	return y
}

// drawBar draws a track with share (0..1) of it filled.
func drawBar(dst *image.RGBA, rect image.Rectangle, share float64, c color.Color) {
	fillRect(dst, rect, Track)
	if share <= 0 {
		return
	}
	if share > 1 {
		share = 1
	}

	filled := rect
	filled.Max.X = rect.Min.X + int(float64(rect.Dx())*share)
	fillRect(dst, filled, c)
}

// scaleImage fits src into a size x size square.
func scaleImage(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	width, height := size, size
	if bounds.Dx() > bounds.Dy() {
		height = size * bounds.Dy() / bounds.Dx()
	} else if bounds.Dy() > bounds.Dx() {
		width = size * bounds.Dx() / bounds.Dy()
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	offset := image.Pt((size-width)/2, (size-height)/2)
	target := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(width, height))}
	xdraw.CatmullRom.Scale(dst, target, src, bounds, draw.Over, nil)
	return dst
}
