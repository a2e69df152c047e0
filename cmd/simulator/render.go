package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/layout"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/marquee"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
)

// frameSink stands in for a serial transport and keeps the latest frame.
type frameSink struct {
	mu     sync.Mutex
	last   []byte
	frames int
}

func (s *frameSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.last = append(s.last[:0], payload...)
	s.frames++

	return nil
}

// Snapshot returns a copy of the latest frame and the number received.
func (s *frameSink) Snapshot() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.last...), s.frames
}

// demoLayout maps a cols x rows grid of buttons, one coordinate per button,
// onto the first LED of each button.
func demoLayout(cols, rows, ledsPerButton int) *layout.Layout {
	buttons := make(map[string]int, cols*rows)
	coords := make(map[layout.Coord]int, cols*rows)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			n := y*cols + x
			buttons[fmt.Sprintf("B%d", n+1)] = n
			coords[layout.Coord{X: x, Y: y}] = n * ledsPerButton
		}
	}

	return layout.New(buttons, coords, ledsPerButton)
}

func scale(v uint8, gain float64) uint8 {
	return uint8(min(255, float64(v)*gain))
}

// renderButtons draws one cell per mapped coordinate, unmapped cells blank.
func renderButtons(w io.Writer, l *layout.Layout, frame []byte, gain float64) {
	bounds, ok := l.Bounds()
	if !ok {
		fmt.Fprintln(w, "(no mapped coordinates)")

		return
	}

	var b strings.Builder

	for y := bounds.Min.Y; y <= bounds.Max.Y; y++ {
		for x := bounds.Min.X; x <= bounds.Max.X; x++ {
			led, ok := l.LED(layout.Coord{X: x, Y: y})
			if !ok || (led+1)*multiverse.BytesPerLED > len(frame) {
				b.WriteString("    ")

				continue
			}

			c := multiverse.LEDAt(frame, led)
			fmt.Fprintf(&b, "\033[48;2;%d;%d;%dm   \033[0m ", scale(c.Red, gain), scale(c.Green, gain), scale(c.Blue, gain))
		}

		b.WriteString("\n")
	}

	io.WriteString(w, b.String())
}

// renderMarquee draws an RGBA frame two pixel rows per text line using the
// upper half block.
func renderMarquee(w io.Writer, d marquee.Display, frame []byte) {
	if len(frame) < d.BufferSize() {
		fmt.Fprintln(w, "(no marquee frame)")

		return
	}

	px := func(x, y int) (uint8, uint8, uint8) {
		if y >= d.Height {
			return 0, 0, 0
		}

		i := (y*d.Width + x) * 4

		return frame[i], frame[i+1], frame[i+2]
	}

	var b strings.Builder

	for y := 0; y < d.Height; y += 2 {
		for x := 0; x < d.Width; x++ {
			tr, tg, tb := px(x, y)
			br, bg, bb := px(x, y+1)
			fmt.Fprintf(&b, "\033[38;2;%d;%d;%dm\033[48;2;%d;%d;%dm▀", tr, tg, tb, br, bg, bb)
		}

		b.WriteString("\033[0m\n")
	}

	io.WriteString(w, b.String())
}
