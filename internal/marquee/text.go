package marquee

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// renderText draws msg in white, centered, on a transparent canvas.
func renderText(msg string, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	face := basicfont.Face7x13

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
	}

	metrics := face.Metrics()
	textWidth := d.MeasureString(msg).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()

	x := floorDiv(width-textWidth, 2)
	y := floorDiv(height-textHeight, 2) + metrics.Ascent.Ceil()

	d.Dot = fixed.P(x, y)
	d.DrawString(msg)

	return img
}
