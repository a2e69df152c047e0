// Package buttons drives the arcade button LED board: a per-LED animation
// state machine, the refresh loop that pushes frames over serial, and the
// attract mode light show.
package buttons

import (
	"fmt"
	"strings"
)

// Mode selects how an LED's color is computed on every tick.
type Mode int

const (
	// Normal shows the target color.
	Normal Mode = iota
	// Blink alternates between the target and source colors, half a
	// transition period each.
	Blink
	// SyncBlink behaves like Blink. All LEDs share one tick source, so
	// SyncBlink LEDs set together stay in phase.
	SyncBlink
	// Fade moves from the source color to the target color once, then
	// becomes Normal.
	Fade
	// FadeSweep fades source to target and back, forever.
	FadeSweep
)

var modeNames = [...]string{
	Normal:    "normal",
	Blink:     "blink",
	SyncBlink: "sync blink",
	Fade:      "fade",
	FadeSweep: "fade sweep",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}

	return modeNames[m]
}

// ParseMode accepts the mode names used in config files and by the event
// dispatcher. Spaces, underscores and hyphens are interchangeable.
func ParseMode(name string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("_", " ", "-", " ").Replace(n)

	for m, s := range modeNames {
		if s == n {
			return Mode(m), nil
		}
	}

	return Normal, fmt.Errorf("unknown LED mode %q", name)
}
