package buttons

import (
	"math"
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
	"github.com/timfallmk/pixel-multiverse-daemon/internal/multiverse"
)

// Status is the animation state of one LED.
type Status struct {
	Mode       Mode
	To         ledcolor.Color
	From       ledcolor.Color
	Transition time.Duration
	Ticks      int
}

// resolve returns the color for the current tick count. Fade may switch the
// LED to Normal and FadeSweep may rewind Ticks; nothing else is modified.
func (s *Status) resolve(refreshRate float64) ledcolor.Color {
	switch s.Mode {
	case Blink, SyncBlink:
		cycle := refreshRate * s.Transition.Seconds()
		if cycle <= 0 {
			return s.To
		}

		if math.Mod(float64(s.Ticks), cycle) < cycle/2 {
			return s.To
		}

		return s.From
	case Fade:
		total := refreshRate * s.Transition.Seconds()
		if float64(s.Ticks) >= total {
			s.Mode = Normal

			return s.To
		}

		return ledcolor.Lerp(s.From, s.To, float64(s.Ticks)/total)
	case FadeSweep:
		total := refreshRate * s.Transition.Seconds()
		if float64(s.Ticks) >= total {
			s.Ticks = 0

			return s.From
		}

		half := total / 2
		t := float64(s.Ticks)

		if t < half {
			return ledcolor.Lerp(s.From, s.To, t/half)
		}

		return ledcolor.Lerp(s.From, s.To, (total-t)/half)
	default:
		return s.To
	}
}

// engine owns the LED states and the packed frame. It is not safe for
// concurrent use; Buttons serializes access.
type engine struct {
	refreshRate float64
	leds        []Status
	frame       []byte
	masks       multiverse.Masks
	order       ledcolor.Order
}

func newEngine(numLEDs int, refreshRate float64, masks multiverse.Masks, order ledcolor.Order) *engine {
	return &engine{
		refreshRate: refreshRate,
		leds:        make([]Status, numLEDs),
		frame:       make([]byte, numLEDs*multiverse.BytesPerLED),
		masks:       masks,
		order:       order,
	}
}

// tick advances every LED by one tick and repacks the frame.
func (e *engine) tick() {
	for i := range e.leds {
		e.leds[i].Ticks++
		c := e.leds[i].resolve(e.refreshRate)
		multiverse.PutLED(e.frame, i, e.order.Apply(c), e.masks)
	}
}

func (e *engine) snapshot() []byte {
	out := make([]byte, len(e.frame))
	copy(out, e.frame)

	return out
}
