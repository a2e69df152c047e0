// Package ledcolor holds the four-channel color value shared by the button
// engine and the marquee compositor, plus the channel-order permutations used
// when a board wires its LEDs in something other than RGB order.
package ledcolor

import "fmt"

// Color is a red/green/blue/brightness quadruple. Values are full 8-bit; the
// hardware masks are applied only when a frame is packed for the wire.
type Color struct {
	Red        uint8
	Green      uint8
	Blue       uint8
	Brightness uint8
}

// Off is the all-zero color every LED starts with.
var Off = Color{}

// New returns a Color from its four channels.
func New(red, green, blue, brightness uint8) Color {
	return Color{Red: red, Green: green, Blue: blue, Brightness: brightness}
}

// String renders the color as "rgbl(r,g,b,l)" for logs.
func (c Color) String() string {
	return fmt.Sprintf("rgbl(%d,%d,%d,%d)", c.Red, c.Green, c.Blue, c.Brightness)
}

// Lerp interpolates each channel linearly from "from" towards "to" and
// truncates toward zero. ratio is clamped to [0, 1].
func Lerp(from, to Color, ratio float64) Color {
	if ratio < 0 {
		ratio = 0
	} else if ratio > 1 {
		ratio = 1
	}

	return Color{
		Red:        lerpChannel(from.Red, to.Red, ratio),
		Green:      lerpChannel(from.Green, to.Green, ratio),
		Blue:       lerpChannel(from.Blue, to.Blue, ratio),
		Brightness: lerpChannel(from.Brightness, to.Brightness, ratio),
	}
}

func lerpChannel(from, to uint8, ratio float64) uint8 {
	v := float64(from) + float64(int(to)-int(from))*ratio

	return uint8(v)
}
