package buttons

import (
	"time"

	"github.com/timfallmk/pixel-multiverse-daemon/internal/ledcolor"
)

// Setting is a mode change to apply to one or more LEDs. Fields that are
// not set keep the LED's current value when the setting is applied.
type Setting struct {
	mode       Mode
	to         *ledcolor.Color
	from       *ledcolor.Color
	transition *time.Duration
}

// NewSetting starts a Setting for mode.
func NewSetting(mode Mode) Setting {
	return Setting{mode: mode}
}

// To sets the target color: the steady color for Normal, the "on" color for
// blinking, the end color for fades.
func (s Setting) To(c ledcolor.Color) Setting {
	s.to = &c

	return s
}

// From sets the "off" color for blinking and the start color for fades.
func (s Setting) From(c ledcolor.Color) Setting {
	s.from = &c

	return s
}

// Over sets the blink period or fade duration.
func (s Setting) Over(d time.Duration) Setting {
	s.transition = &d

	return s
}

// Mode returns the mode the setting switches to.
func (s Setting) Mode() Mode {
	return s.mode
}

// Solid returns a Normal setting showing c.
func Solid(c ledcolor.Color) Setting {
	return NewSetting(Normal).To(c)
}

// Blinking alternates on and off, each for half of period.
func Blinking(on, off ledcolor.Color, period time.Duration) Setting {
	return NewSetting(Blink).To(on).From(off).Over(period)
}

// SyncBlinking is Blinking with the SyncBlink mode.
func SyncBlinking(on, off ledcolor.Color, period time.Duration) Setting {
	return NewSetting(SyncBlink).To(on).From(off).Over(period)
}

// Fading fades once from "from" to "to" over d.
func Fading(from, to ledcolor.Color, d time.Duration) Setting {
	return NewSetting(Fade).From(from).To(to).Over(d)
}

// Sweeping fades from "from" to "to" and back over d, repeating.
func Sweeping(from, to ledcolor.Color, d time.Duration) Setting {
	return NewSetting(FadeSweep).From(from).To(to).Over(d)
}

func (s Setting) apply(st *Status) {
	st.Mode = s.mode

	if s.to != nil {
		st.To = *s.to
	}

	if s.from != nil {
		st.From = *s.from
	}

	if s.transition != nil {
		st.Transition = *s.transition
	}

	if s.mode != Normal {
		st.Ticks = 0
	}
}
