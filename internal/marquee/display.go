// Package marquee drives the pixel matrix marquee: an RGBA frame buffer that
// images are alpha blended into, and a playback task for animations.
package marquee

import (
	"fmt"
	"strings"
)

// Display describes a supported matrix board.
type Display struct {
	Name   string
	Width  int
	Height int
}

var (
	GalacticUnicorn = Display{Name: "GALACTIC_UNICORN", Width: 53, Height: 11}
	Interstate75    = Display{Name: "I75_128X32", Width: 128, Height: 32}
)

// DisplayByName looks a board up by its config name.
func DisplayByName(name string) (Display, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case GalacticUnicorn.Name:
		return GalacticUnicorn, nil
	case Interstate75.Name:
		return Interstate75, nil
	default:
		return Display{}, fmt.Errorf("unknown marquee display %q", name)
	}
}

// BufferSize is the size in bytes of one full RGBA frame.
func (d Display) BufferSize() int {
	return d.Width * d.Height * 4
}

func (d Display) String() string {
	return fmt.Sprintf("%s (%dx%d)", d.Name, d.Width, d.Height)
}
